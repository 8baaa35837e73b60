// Package runsync rebuilds console state from a run's event stream.
//
// Every type here is owned by a single goroutine. Callers serialize access
// (the service event loop does) and no locking happens inside the package.
package runsync

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Message is a stream payload after decoding.
type Message struct {
	Name string
	Raw  string
	// Body holds the decoded JSON value when Structured is true.
	Body       any
	Structured bool
}

// Parse decodes a raw payload as JSON. Payloads that are not valid JSON are
// kept as raw text. Parse never fails.
func Parse(name, data string) Message {
	msg := Message{Name: name, Raw: data}
	if !json.Valid([]byte(data)) {
		return msg
	}

	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return msg
	}

	msg.Body = body
	msg.Structured = true
	return msg
}

// Detail renders the payload for the event log: raw text as-is, JSON strings
// unquoted, everything else indented.
func (m Message) Detail() string {
	if !m.Structured {
		return m.Raw
	}
	if s, ok := m.Body.(string); ok {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(strings.TrimSpace(m.Raw)), "", "  "); err != nil {
		return m.Raw
	}
	return buf.String()
}

// decode unmarshals a structured payload into v. Type mismatches leave the
// affected fields zero and are otherwise ignored.
func (m Message) decode(v any) {
	if !m.Structured {
		return
	}
	if _, ok := m.Body.(map[string]any); !ok {
		return
	}
	_ = json.Unmarshal([]byte(m.Raw), v)
}
