// Vigil - Plex Media Server Monitoring and Playback Analytics
// Copyright 2026 M. Pellar (mpellar)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mpellar/vigil

//go:build integration

package testinfra

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// WebhookDelivery is one request captured by a WebhookSink.
type WebhookDelivery struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// DecodeJSON unmarshals the captured body into v.
func (d *WebhookDelivery) DecodeJSON(v interface{}) error {
	return json.Unmarshal(d.Body, v)
}

// WebhookSink is an HTTP server that records every request it receives,
// for asserting on webhook deliveries in integration tests.
//
// Status, Response, and Handler configure what callers get back; set them
// before the first delivery.
type WebhookSink struct {
	srv *httptest.Server

	mu         sync.Mutex
	deliveries []WebhookDelivery

	// Status is the HTTP status code returned to callers (default 200).
	Status int

	// Response is an optional canned response body.
	Response []byte

	// Handler overrides the canned response entirely when set.
	Handler http.HandlerFunc
}

// NewWebhookSink starts a webhook sink on a loopback address.
func NewWebhookSink(t *testing.T) *WebhookSink {
	t.Helper()

	s := &WebhookSink{
		Status: http.StatusOK,
	}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body.Close()
		}

		s.mu.Lock()
		s.deliveries = append(s.deliveries, WebhookDelivery{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Body:    body,
		})
		s.mu.Unlock()

		if s.Handler != nil {
			s.Handler(w, r)
			return
		}

		w.WriteHeader(s.Status)
		if len(s.Response) > 0 {
			w.Write(s.Response) //nolint:errcheck
		}
	}))

	return s
}

// URL returns the sink's base URL.
func (s *WebhookSink) URL() string {
	return s.srv.URL
}

// Close shuts down the sink.
func (s *WebhookSink) Close() {
	s.srv.Close()
}

// Deliveries returns a copy of all captured requests.
func (s *WebhookSink) Deliveries() []WebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WebhookDelivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

// Reset discards all captured requests.
func (s *WebhookSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = nil
}

// WaitForDeliveries polls until at least n requests are captured or the
// timeout elapses.
func (s *WebhookSink) WaitForDeliveries(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		count := len(s.deliveries)
		s.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

// CapturedMail is one message accepted by an SMTPSink.
type CapturedMail struct {
	From string
	To   []string
	Data []byte
}

// SMTPSink is a minimal SMTP server that accepts any message and records
// the envelope and body. It speaks just enough of the protocol for a
// plain client session (EHLO, AUTH, MAIL, RCPT, DATA, QUIT), which is
// what the email channel performs against a non-TLS server.
type SMTPSink struct {
	ln     net.Listener
	closed chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	mails []CapturedMail
}

// NewSMTPSink starts an SMTP sink on a loopback address.
func NewSMTPSink(t *testing.T) *SMTPSink {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("smtp sink listen: %v", err)
	}

	s := &SMTPSink{
		ln:     ln,
		closed: make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s
}

// Addr returns the sink's listen address as host:port.
func (s *SMTPSink) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the sink's listen host, for notifier SMTP configuration.
func (s *SMTPSink) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the sink's listen port, for notifier SMTP configuration.
func (s *SMTPSink) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops the listener and tears down any open sessions.
func (s *SMTPSink) Close() {
	close(s.closed)
	_ = s.ln.Close()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Mails returns a copy of all accepted messages.
func (s *SMTPSink) Mails() []CapturedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CapturedMail, len(s.mails))
	copy(out, s.mails)
	return out
}

// WaitForMails polls until at least n messages are accepted or the
// timeout elapses.
func (s *SMTPSink) WaitForMails(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		count := len(s.mails)
		s.mu.Unlock()
		if count >= n {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func (s *SMTPSink) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

// serve runs one SMTP session. Sessions are bounded by a deadline so a
// stalled client cannot wedge Close.
func (s *SMTPSink) serve(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	tc := textproto.NewConn(conn)
	reply := func(format string, args ...interface{}) {
		_ = tc.PrintfLine(format, args...)
	}

	reply("220 vigil-sink ESMTP ready")

	var from string
	var rcpts []string

	for {
		line, err := tc.ReadLine()
		if err != nil {
			return
		}

		verb := line
		arg := ""
		if i := strings.IndexByte(line, ' '); i >= 0 {
			verb, arg = line[:i], strings.TrimSpace(line[i+1:])
		}

		switch strings.ToUpper(verb) {
		case "EHLO", "HELO":
			reply("250-vigil-sink greets %s", arg)
			reply("250-AUTH PLAIN LOGIN")
			reply("250 8BITMIME")
		case "AUTH":
			reply("235 2.7.0 authentication accepted")
		case "MAIL":
			from = parseSMTPPath(arg)
			rcpts = nil
			reply("250 2.1.0 sender ok")
		case "RCPT":
			rcpts = append(rcpts, parseSMTPPath(arg))
			reply("250 2.1.5 recipient ok")
		case "DATA":
			if from == "" || len(rcpts) == 0 {
				reply("503 5.5.1 need MAIL and RCPT first")
				continue
			}
			reply("354 end data with <CRLF>.<CRLF>")
			data, err := tc.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.mails = append(s.mails, CapturedMail{From: from, To: rcpts, Data: data})
			s.mu.Unlock()
			from, rcpts = "", nil
			reply("250 2.0.0 message accepted")
		case "RSET":
			from, rcpts = "", nil
			reply("250 2.0.0 ok")
		case "NOOP":
			reply("250 2.0.0 ok")
		case "QUIT":
			reply("221 2.0.0 vigil-sink closing")
			return
		default:
			reply("502 5.5.2 command not implemented")
		}
	}
}

// parseSMTPPath extracts the address from a MAIL FROM or RCPT TO
// argument, with or without angle brackets.
func parseSMTPPath(arg string) string {
	if i := strings.IndexByte(arg, '<'); i >= 0 {
		if j := strings.IndexByte(arg[i:], '>'); j > 0 {
			return arg[i+1 : i+j]
		}
	}
	if i := strings.IndexByte(arg, ':'); i >= 0 {
		return strings.TrimSpace(arg[i+1:])
	}
	return arg
}
