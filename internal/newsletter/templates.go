// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package newsletter

import (
	"fmt"

	"github.com/mpellar/vigil/internal/models"
)

// DefaultSubjectTemplate is used when a schedule has no subject of its
// own.
const DefaultSubjectTemplate = "{{.ServerName}} - Recently Added ({{.DateRangeDisplay}})"

// BuiltinTemplate returns the HTML and plaintext bodies for a built-in
// template name. Schedules may override the HTML body with a custom
// template stored on the schedule itself.
func BuiltinTemplate(name string) (bodyHTML, bodyText string, err error) {
	switch name {
	case models.NewsletterTemplateRecentlyAdded:
		return recentlyAddedHTML, recentlyAddedText, nil
	default:
		return "", "", fmt.Errorf("unknown newsletter template: %s", name)
	}
}

// Thumb paths from the media server are relative and need an
// authenticated session, so the built-in layout uses text rows rather
// than poster images.
const recentlyAddedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.ServerName}} - Recently Added</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #191a1c; color: #eee; margin: 0; padding: 20px; }
    .container { max-width: 600px; margin: 0 auto; background: #282a2d; border-radius: 8px; overflow: hidden; }
    .header { background: #e5a00d; padding: 28px 24px; text-align: center; }
    .header h1 { margin: 0; color: #191a1c; font-size: 22px; }
    .header p { margin: 8px 0 0; color: rgba(25,26,28,0.75); font-size: 13px; }
    .content { padding: 20px 24px; }
    .section { margin-bottom: 28px; }
    .section h2 { color: #e5a00d; font-size: 16px; margin: 0 0 12px; border-bottom: 1px solid #3d3f42; padding-bottom: 8px; }
    .row { padding: 10px 12px; background: #1f2123; border-radius: 6px; margin-bottom: 8px; }
    .row .title { font-weight: 600; font-size: 14px; color: #fff; margin: 0; }
    .row .meta { font-size: 12px; color: #999; margin: 4px 0 0; }
    .row .summary { font-size: 12px; color: #bbb; margin: 6px 0 0; }
    .footer { background: #1f2123; padding: 16px 24px; text-align: center; font-size: 11px; color: #777; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>{{.ServerName}}</h1>
      <p>Recently Added - {{.DateRangeDisplay}}</p>
    </div>
    <div class="content">
      {{if .Movies}}
      <div class="section">
        <h2>Movies ({{len .Movies}})</h2>
        {{range .Movies}}
        <div class="row">
          <p class="title">{{.Title}}{{if .Year}} ({{.Year}}){{end}}</p>
          <p class="meta">{{.LibraryName}} - added {{formatDate .AddedAt}}</p>
          {{if .Summary}}<p class="summary">{{truncate .Summary 180}}</p>{{end}}
        </div>
        {{end}}
      </div>
      {{end}}

      {{if .Shows}}
      <div class="section">
        <h2>TV Shows ({{len .Shows}})</h2>
        {{range .Shows}}
        <div class="row">
          <p class="title">{{.Title}}</p>
          <p class="meta">{{.EpisodeCount}} new {{pluralize .EpisodeCount "episode" "episodes"}} - {{.LibraryName}}</p>
        </div>
        {{end}}
      </div>
      {{end}}

      {{if .Albums}}
      <div class="section">
        <h2>Music ({{len .Albums}})</h2>
        {{range .Albums}}
        <div class="row">
          <p class="title">{{.Artist}} - {{.Album}}</p>
          <p class="meta">{{.TrackCount}} {{pluralize .TrackCount "track" "tracks"}} - {{.LibraryName}}</p>
        </div>
        {{end}}
      </div>
      {{end}}
    </div>
    <div class="footer">
      <p>{{formatNumber .TotalItems}} {{pluralize .TotalItems "item" "items"}} added - generated {{formatDateFull .GeneratedAt}}</p>
    </div>
  </div>
</body>
</html>`

const recentlyAddedText = `{{.ServerName}} - Recently Added
{{.DateRangeDisplay}}
========================================
{{if .Movies}}
MOVIES ({{len .Movies}})
{{range .Movies}}  {{.Title}}{{if .Year}} ({{.Year}}){{end}} - {{.LibraryName}}
{{end}}{{end}}{{if .Shows}}
TV SHOWS ({{len .Shows}})
{{range .Shows}}  {{.Title}} - {{.EpisodeCount}} new {{pluralize .EpisodeCount "episode" "episodes"}}
{{end}}{{end}}{{if .Albums}}
MUSIC ({{len .Albums}})
{{range .Albums}}  {{.Artist}} - {{.Album}} ({{.TrackCount}} {{pluralize .TrackCount "track" "tracks"}})
{{end}}{{end}}
========================================
{{formatNumber .TotalItems}} {{pluralize .TotalItems "item" "items"}} added
Generated {{formatDateFull .GeneratedAt}}`
