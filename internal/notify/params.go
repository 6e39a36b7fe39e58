// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

package notify

import (
	"strconv"

	"github.com/mpellar/vigil/internal/eventstream"
)

// BuildParams flattens an event into the parameter map used by condition
// evaluation and {parameter} template rendering. Every documented
// parameter is always present so placeholders render cleanly as empty
// text when the event has no value for them.
func BuildParams(ev *eventstream.SessionEvent) map[string]string {
	p := make(map[string]string, 48)

	p["action"] = ev.Type
	p["trigger"] = ev.TriggerKind()
	p["server_name"] = ev.ServerName
	p["server_id"] = ev.ServerID
	p["datestamp"] = ev.OccurredAt.Format("2006-01-02")
	p["timestamp"] = ev.OccurredAt.Format("15:04:05")

	p["user"] = ev.Username
	p["user_id"] = intParam(ev.UserID)
	p["ip_address"] = ev.IPAddress
	p["session_key"] = ev.SessionKey

	p["player"] = ev.Player
	p["device"] = ev.Device
	p["platform"] = ev.Platform
	p["product"] = ev.Product
	p["machine_id"] = ev.MachineID
	p["location"] = ev.LocationType
	p["local"] = strconv.FormatBool(ev.Local)
	p["secure"] = strconv.FormatBool(ev.Secure)
	p["relayed"] = strconv.FormatBool(ev.Relayed)

	p["media_type"] = ev.MediaType
	p["rating_key"] = ev.RatingKey
	p["parent_rating_key"] = ev.ParentRatingKey
	p["grandparent_rating_key"] = ev.GrandparentRatingKey
	p["title"] = ev.Title
	p["parent_title"] = ev.ParentTitle
	p["grandparent_title"] = ev.GrandparentTitle
	p["show_name"] = ev.GrandparentTitle
	p["full_title"] = ev.FullTitle
	p["season_num"] = intParam(ev.ParentMediaIndex)
	p["episode_num"] = intParam(ev.MediaIndex)
	p["year"] = intParam(ev.Year)
	p["library_name"] = ev.LibraryName
	p["section_id"] = ev.SectionID
	p["content_rating"] = ev.ContentRating
	p["thumb"] = ev.Thumb

	p["transcode_decision"] = ev.TranscodeDecision
	p["video_decision"] = ev.VideoDecision
	p["audio_decision"] = ev.AudioDecision
	p["container"] = ev.Container
	p["video_codec"] = ev.VideoCodec
	p["video_resolution"] = ev.VideoResolution
	p["audio_codec"] = ev.AudioCodec
	p["audio_channels"] = intParam(ev.AudioChannels)
	p["quality_profile"] = ev.QualityProfile
	p["bandwidth"] = int64Param(ev.BandwidthKbps)

	// Durations render in whole minutes for template text.
	p["progress_percent"] = strconv.Itoa(int(ev.PercentComplete))
	p["view_offset"] = int64Param(ev.ViewOffsetMS / 60000)
	p["duration"] = int64Param(ev.DurationMS / 60000)
	p["play_duration"] = int64Param(ev.PlayDuration / 60)
	p["paused_counter"] = int64Param(ev.PausedCounter / 60)

	p["user_streams"] = strconv.Itoa(ev.Streams)
	p["error"] = ev.Error

	if len(ev.Items) > 0 {
		p["items_count"] = strconv.Itoa(len(ev.Items))
	} else {
		p["items_count"] = ""
	}

	return p
}

// intParam renders a numeric field, treating zero as unset.
func intParam(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func int64Param(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
