// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"strconv"
	"strings"

	"github.com/mpellar/vigil/internal/logging"
	"github.com/mpellar/vigil/internal/models"
)

// EvaluateConditions reports whether every condition holds against the
// event's parameter map. A notifier with no conditions always matches.
//
// Positive operators match when any listed value satisfies them; the
// negated operators (is not, does not contain) require every listed value
// to pass, otherwise "is not A" with a second value B would match
// everything.
func EvaluateConditions(conditions []models.NotifierCondition, params map[string]string) bool {
	for _, c := range conditions {
		if !evaluateCondition(c, params) {
			return false
		}
	}
	return true
}

func evaluateCondition(c models.NotifierCondition, params map[string]string) bool {
	actual := params[c.Field]

	switch c.Operator {
	case models.OperatorIs:
		return anyValue(c.Values, func(v string) bool {
			return strings.EqualFold(actual, v)
		})
	case models.OperatorIsNot:
		return allValues(c.Values, func(v string) bool {
			return !strings.EqualFold(actual, v)
		})
	case models.OperatorContains:
		return anyValue(c.Values, func(v string) bool {
			return strings.Contains(strings.ToLower(actual), strings.ToLower(v))
		})
	case models.OperatorNotContains:
		return allValues(c.Values, func(v string) bool {
			return !strings.Contains(strings.ToLower(actual), strings.ToLower(v))
		})
	case models.OperatorBeginsWith:
		return anyValue(c.Values, func(v string) bool {
			return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(v))
		})
	case models.OperatorEndsWith:
		return anyValue(c.Values, func(v string) bool {
			return strings.HasSuffix(strings.ToLower(actual), strings.ToLower(v))
		})
	case models.OperatorGreater, models.OperatorGreaterEq, models.OperatorLess, models.OperatorLessEq:
		return compareNumeric(actual, c.Operator, c.Values)
	default:
		logging.Warn().
			Str("field", c.Field).
			Str("operator", c.Operator).
			Msg("Unknown condition operator, condition fails")
		return false
	}
}

// compareNumeric parses both sides as floats. An unparseable side fails
// the comparison rather than matching by accident.
func compareNumeric(actual, op string, values []string) bool {
	left, err := strconv.ParseFloat(strings.TrimSpace(actual), 64)
	if err != nil {
		return false
	}
	return anyValue(values, func(v string) bool {
		right, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return false
		}
		switch op {
		case models.OperatorGreater:
			return left > right
		case models.OperatorGreaterEq:
			return left >= right
		case models.OperatorLess:
			return left < right
		case models.OperatorLessEq:
			return left <= right
		}
		return false
	})
}

func anyValue(values []string, match func(string) bool) bool {
	for _, v := range values {
		if match(v) {
			return true
		}
	}
	return false
}

func allValues(values []string, match func(string) bool) bool {
	for _, v := range values {
		if !match(v) {
			return false
		}
	}
	return true
}
