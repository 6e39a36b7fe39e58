// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build integration

package testinfra

import (
	"bytes"
	"net/http"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestWebhookSink_CapturesRequests(t *testing.T) {
	sink := NewWebhookSink(t)
	defer sink.Close()

	body := []byte(`{"event":"playback.start","subject":"test"}`)
	req, err := http.NewRequest(http.MethodPost, sink.URL()+"/hook", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Custom", "value")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	deliveries := sink.Deliveries()
	if len(deliveries) != 1 {
		t.Fatalf("Expected 1 delivery, got %d", len(deliveries))
	}

	d := deliveries[0]
	if d.Method != http.MethodPost {
		t.Errorf("Expected POST, got %s", d.Method)
	}
	if d.Path != "/hook" {
		t.Errorf("Expected path /hook, got %s", d.Path)
	}
	if d.Headers.Get("X-Custom") != "value" {
		t.Errorf("Expected X-Custom header, got %q", d.Headers.Get("X-Custom"))
	}
	if !bytes.Equal(d.Body, body) {
		t.Errorf("Body mismatch: got %s", d.Body)
	}

	var payload struct {
		Event   string `json:"event"`
		Subject string `json:"subject"`
	}
	if err := d.DecodeJSON(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Event != "playback.start" {
		t.Errorf("Expected event playback.start, got %s", payload.Event)
	}
}

func TestWebhookSink_ConfiguredResponse(t *testing.T) {
	sink := NewWebhookSink(t)
	defer sink.Close()
	sink.Status = http.StatusServiceUnavailable
	sink.Response = []byte(`{"error":"down for maintenance"}`)

	resp, err := http.Post(sink.URL(), "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	if !sink.WaitForDeliveries(1, time.Second) {
		t.Error("Expected delivery to be captured")
	}

	sink.Reset()
	if len(sink.Deliveries()) != 0 {
		t.Error("Expected no deliveries after Reset")
	}
}

func TestSMTPSink_AcceptsMail(t *testing.T) {
	sink := NewSMTPSink(t)
	defer sink.Close()

	msg := []byte("From: Vigil <vigil@example.com>\r\n" +
		"To: admin@example.com\r\n" +
		"Subject: Playback Started\r\n" +
		"\r\n" +
		"alice started playing The Matrix\r\n")

	err := smtp.SendMail(sink.Addr(), nil, "vigil@example.com", []string{"admin@example.com"}, msg)
	if err != nil {
		t.Fatalf("SendMail: %v", err)
	}

	if !sink.WaitForMails(1, 2*time.Second) {
		t.Fatal("Expected mail to be accepted")
	}

	mails := sink.Mails()
	if len(mails) != 1 {
		t.Fatalf("Expected 1 mail, got %d", len(mails))
	}

	m := mails[0]
	if m.From != "vigil@example.com" {
		t.Errorf("Expected envelope sender vigil@example.com, got %s", m.From)
	}
	if len(m.To) != 1 || m.To[0] != "admin@example.com" {
		t.Errorf("Expected envelope recipient admin@example.com, got %v", m.To)
	}
	if !strings.Contains(string(m.Data), "Subject: Playback Started") {
		t.Errorf("Expected subject header in data, got:\n%s", m.Data)
	}
	if !strings.Contains(string(m.Data), "The Matrix") {
		t.Errorf("Expected body text in data, got:\n%s", m.Data)
	}
}

func TestSMTPSink_MultipleRecipients(t *testing.T) {
	sink := NewSMTPSink(t)
	defer sink.Close()

	to := []string{"one@example.com", "two@example.com"}
	msg := []byte("Subject: Test\r\n\r\nbody\r\n")

	if err := smtp.SendMail(sink.Addr(), nil, "vigil@example.com", to, msg); err != nil {
		t.Fatalf("SendMail: %v", err)
	}

	if !sink.WaitForMails(1, 2*time.Second) {
		t.Fatal("Expected mail to be accepted")
	}

	m := sink.Mails()[0]
	if len(m.To) != 2 {
		t.Fatalf("Expected 2 recipients, got %d", len(m.To))
	}
	if m.To[0] != "one@example.com" || m.To[1] != "two@example.com" {
		t.Errorf("Recipient mismatch: %v", m.To)
	}
}

func TestParseSMTPPath(t *testing.T) {
	tests := []struct {
		arg  string
		want string
	}{
		{"FROM:<alice@example.com>", "alice@example.com"},
		{"FROM:<alice@example.com> BODY=8BITMIME", "alice@example.com"},
		{"TO:<bob@example.com>", "bob@example.com"},
		{"FROM:alice@example.com", "alice@example.com"},
		{"FROM:<>", ""},
	}

	for _, tt := range tests {
		if got := parseSMTPPath(tt.arg); got != tt.want {
			t.Errorf("parseSMTPPath(%q) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}
