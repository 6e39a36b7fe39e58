// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"strings"

	"github.com/mpellar/vigil/internal/models"
)

// RenderText substitutes {parameter} placeholders in a template with
// values from the parameter map. Placeholders with no matching parameter
// are left literal so a typo is visible in the delivered text instead of
// silently vanishing.
func RenderText(template string, params map[string]string) string {
	if template == "" || len(params) == 0 {
		return template
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// RenderMessage resolves the notifier's subject and body templates for a
// trigger and renders both against the parameter map.
func RenderMessage(n *models.Notifier, trigger string, params map[string]string) (subject, body string) {
	subject = RenderText(n.SubjectFor(trigger), params)
	body = RenderText(n.BodyFor(trigger), params)
	return subject, body
}
