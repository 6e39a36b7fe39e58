// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"testing"

	"github.com/mpellar/vigil/internal/models"
)

func TestRenderText(t *testing.T) {
	params := map[string]string{
		"user":   "alice",
		"title":  "Dune",
		"player": "Plex Web",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"substitutes placeholders", "{user} started {title} on {player}", "alice started Dune on Plex Web"},
		{"unknown placeholder stays literal", "{user} hit {unknown_field}", "alice hit {unknown_field}"},
		{"repeated placeholder", "{user} and {user}", "alice and alice"},
		{"no placeholders", "plain text", "plain text"},
		{"empty template", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderText(tt.template, params)
			if got != tt.want {
				t.Errorf("RenderText(%q): got %q, want %q", tt.template, got, tt.want)
			}
		})
	}

	if got := RenderText("{user}", nil); got != "{user}" {
		t.Errorf("nil params: got %q, want template unchanged", got)
	}
}

func TestRenderMessage(t *testing.T) {
	n := &models.Notifier{
		Subjects: map[string]string{models.TriggerPlay: "Now playing on {server_name}"},
		Bodies:   map[string]string{models.TriggerPlay: "{user} started {title}"},
	}
	params := map[string]string{
		"server_name": "Home",
		"user":        "alice",
		"title":       "Dune",
		"player":      "Plex Web",
	}

	subject, body := RenderMessage(n, models.TriggerPlay, params)
	if subject != "Now playing on Home" {
		t.Errorf("subject: got %q", subject)
	}
	if body != "alice started Dune" {
		t.Errorf("body: got %q", body)
	}

	// A trigger with no configured templates renders the defaults.
	subject, body = RenderMessage(n, models.TriggerStop, params)
	if subject != "Vigil (Home)" {
		t.Errorf("default subject: got %q", subject)
	}
	if body != "alice (Plex Web) has stopped Dune." {
		t.Errorf("default body: got %q", body)
	}
}
