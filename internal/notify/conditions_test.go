// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"testing"

	"github.com/mpellar/vigil/internal/models"
)

func cond(field, op string, values ...string) models.NotifierCondition {
	return models.NotifierCondition{Field: field, Operator: op, Values: values}
}

func TestEvaluateConditionsOperators(t *testing.T) {
	params := map[string]string{
		"media_type":       "movie",
		"user":             "Alice",
		"title":            "The Matrix Reloaded",
		"progress_percent": "85",
		"player":           "Plex Web",
	}

	tests := []struct {
		name string
		cond models.NotifierCondition
		want bool
	}{
		{"is match", cond("media_type", models.OperatorIs, "movie"), true},
		{"is case insensitive", cond("user", models.OperatorIs, "alice"), true},
		{"is any value", cond("media_type", models.OperatorIs, "episode", "movie"), true},
		{"is no match", cond("media_type", models.OperatorIs, "episode"), false},
		{"is not match", cond("media_type", models.OperatorIsNot, "episode"), true},
		{"is not excluded", cond("media_type", models.OperatorIsNot, "movie"), false},
		{"is not requires every value", cond("media_type", models.OperatorIsNot, "episode", "movie"), false},
		{"contains case insensitive", cond("title", models.OperatorContains, "matrix"), true},
		{"contains no match", cond("title", models.OperatorContains, "inception"), false},
		{"does not contain", cond("title", models.OperatorNotContains, "inception"), true},
		{"does not contain requires every value", cond("title", models.OperatorNotContains, "inception", "matrix"), false},
		{"begins with", cond("title", models.OperatorBeginsWith, "the "), true},
		{"begins with no match", cond("title", models.OperatorBeginsWith, "matrix"), false},
		{"ends with", cond("title", models.OperatorEndsWith, "Reloaded"), true},
		{"greater", cond("progress_percent", models.OperatorGreater, "80"), true},
		{"greater boundary", cond("progress_percent", models.OperatorGreater, "85"), false},
		{"greater equal boundary", cond("progress_percent", models.OperatorGreaterEq, "85"), true},
		{"less", cond("progress_percent", models.OperatorLess, "80"), false},
		{"less equal", cond("progress_percent", models.OperatorLessEq, "85"), true},
		{"numeric any value", cond("progress_percent", models.OperatorGreater, "90", "80"), true},
		{"numeric unparseable actual", cond("player", models.OperatorGreater, "5"), false},
		{"numeric unparseable value", cond("progress_percent", models.OperatorGreater, "high"), false},
		{"unknown operator", cond("media_type", "matches", "movie"), false},
		{"missing field is", cond("nonexistent", models.OperatorIs, "x"), false},
		{"missing field is not", cond("nonexistent", models.OperatorIsNot, "x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConditions([]models.NotifierCondition{tt.cond}, params)
			if got != tt.want {
				t.Errorf("condition %+v: got %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestEvaluateConditionsCombined(t *testing.T) {
	params := map[string]string{"media_type": "movie", "user": "alice"}

	both := []models.NotifierCondition{
		cond("media_type", models.OperatorIs, "movie"),
		cond("user", models.OperatorIs, "alice"),
	}
	if !EvaluateConditions(both, params) {
		t.Error("expected two matching conditions to pass")
	}

	mixed := []models.NotifierCondition{
		cond("media_type", models.OperatorIs, "movie"),
		cond("user", models.OperatorIs, "bob"),
	}
	if EvaluateConditions(mixed, params) {
		t.Error("expected one failing condition to fail the whole set")
	}

	if !EvaluateConditions(nil, params) {
		t.Error("expected an empty condition set to pass")
	}
}
