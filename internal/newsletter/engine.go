// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package newsletter

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"
	"unicode/utf8"
)

// TemplateEngine renders newsletter templates. HTML bodies go through
// html/template so item titles and summaries are escaped; plaintext
// bodies and subjects use text/template.
type TemplateEngine struct {
	funcMap template.FuncMap
}

// NewTemplateEngine creates an engine with the standard function set.
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{funcMap: templateFuncs()}
}

// templateFuncs builds the helper set shared by all template kinds.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2")
		},
		"formatDateFull": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
		"formatNumber": groupThousands,
		"truncate":     truncateRunes,
		"pluralize": func(n int, singular, plural string) string {
			if n == 1 {
				return singular
			}
			return plural
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}
}

// RenderHTML renders an HTML body template against the content data.
func (e *TemplateEngine) RenderHTML(tmpl string, data *ContentData) (string, error) {
	t, err := template.New("newsletter").Funcs(e.funcMap).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse newsletter template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render newsletter template: %w", err)
	}
	return buf.String(), nil
}

// RenderText renders a plaintext body template against the content data.
func (e *TemplateEngine) RenderText(tmpl string, data *ContentData) (string, error) {
	t, err := texttemplate.New("newsletter_text").Funcs(texttemplate.FuncMap(e.funcMap)).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse newsletter text template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render newsletter text template: %w", err)
	}
	return buf.String(), nil
}

// RenderSubject renders a subject line and trims surrounding space.
func (e *TemplateEngine) RenderSubject(tmpl string, data *ContentData) (string, error) {
	t, err := texttemplate.New("subject").Funcs(texttemplate.FuncMap(e.funcMap)).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse subject template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render subject template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ValidateTemplate checks template syntax without rendering. Custom
// bodies stored on a schedule are validated with this before saving.
func (e *TemplateEngine) ValidateTemplate(tmpl string) error {
	if _, err := template.New("validate").Funcs(e.funcMap).Parse(tmpl); err != nil {
		return fmt.Errorf("invalid template syntax: %w", err)
	}
	return nil
}

// truncateRunes shortens a string to at most max runes, appending an
// ellipsis when anything was cut.
func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// groupThousands formats an integer with comma separators.
func groupThousands(n int) string {
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}
