// Package perflog turns a browser performance log into DevTools protocol events.
//
// Each log entry carries one DevTools notification wrapped in an envelope,
// {"message":{"method":"Network.requestWillBeSent","params":{...}},"webview":"..."}.
// The envelope may be nested, and the inner message may itself arrive as a
// JSON-encoded string.
package perflog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto"
)

// ErrMalformedEntry is returned when a log entry cannot be decoded.
var ErrMalformedEntry = errors.New("malformed performance log entry")

// maxEnvelopeDepth bounds unwrapping of nested envelopes.
const maxEnvelopeDepth = 4

// RawLogEntry is one line of the browser's performance log, in arrival order.
type RawLogEntry struct {
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Level     string `json:"level,omitempty"`
	Message   string `json:"message"`
}

// Event is a decoded DevTools notification.
type Event struct {
	Method    cdproto.MethodType
	Params    json.RawMessage
	Timestamp time.Time
}

// envelope is the outer wrapper used by the performance log.
type envelope struct {
	Message json.RawMessage `json:"message"`
	Webview string          `json:"webview,omitempty"`
}

// Parse decodes a single log entry. It does not look at event params beyond
// keeping them as raw JSON.
func Parse(raw RawLogEntry) (Event, error) {
	data := []byte(raw.Message)

	for depth := 0; ; depth++ {
		if depth > maxEnvelopeDepth {
			return Event{}, fmt.Errorf("%w: envelope nested too deep", ErrMalformedEntry)
		}

		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '"' {
			var inner string
			if err := json.Unmarshal(data, &inner); err != nil {
				return Event{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
			}
			data = []byte(inner)
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
		}
		if len(env.Message) == 0 || string(env.Message) == "null" {
			break
		}
		data = env.Message
	}

	var msg cdproto.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}
	if msg.Method == "" {
		return Event{}, fmt.Errorf("%w: missing method", ErrMalformedEntry)
	}

	params := json.RawMessage(msg.Params)
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	return Event{
		Method:    msg.Method,
		Params:    params,
		Timestamp: time.UnixMilli(raw.Timestamp),
	}, nil
}

// ParseAll parses entries in order. Malformed entries are logged and
// skipped; the rest of the batch is always returned.
func ParseAll(raws []RawLogEntry, logger *slog.Logger) []Event {
	events := make([]Event, 0, len(raws))
	skipped := 0

	for i, raw := range raws {
		ev, err := Parse(raw)
		if err != nil {
			skipped++
			logger.Warn("perflog_entry_skipped", "index", i, "error", err)
			continue
		}
		events = append(events, ev)
	}

	if skipped > 0 {
		logger.Debug("perflog_parsed", "events", len(events), "skipped", skipped)
	}
	return events
}

// Encode wraps a DevTools notification in the performance log envelope.
// Browser implementations that receive events directly use it to produce
// entries in the same shape as a driver-provided log.
func Encode(method cdproto.MethodType, params any, ts time.Time) (RawLogEntry, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return RawLogEntry{}, fmt.Errorf("encode %s params: %w", method, err)
	}

	inner, err := json.Marshal(struct {
		Method cdproto.MethodType `json:"method"`
		Params json.RawMessage    `json:"params"`
	}{method, p})
	if err != nil {
		return RawLogEntry{}, fmt.Errorf("encode %s: %w", method, err)
	}

	msg, err := json.Marshal(envelope{Message: inner})
	if err != nil {
		return RawLogEntry{}, fmt.Errorf("encode %s envelope: %w", method, err)
	}

	return RawLogEntry{
		Timestamp: ts.UnixMilli(),
		Level:     "INFO",
		Message:   string(msg),
	}, nil
}
