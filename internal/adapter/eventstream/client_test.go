package eventstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

func TestSubscribeParsesSSE(t *testing.T) {
	var gotPath, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: enter\ndata: {\"node\":\"InputAgent\"}\n\n")
		fmt.Fprint(w, "event: done\r\ndata: {\"final\":\"ok\"}\r\n\r\n")
		fmt.Fprint(w, "event: end\ndata: {\"run_id\":\"run-1\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var events []domain.StreamEvent
	err := client.Subscribe(ctx, "run-1", func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "/events/run-1", gotPath)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, []domain.StreamEvent{
		{Event: "enter", Data: `{"node":"InputAgent"}`},
		{Event: "done", Data: `{"final":"ok"}`},
		{Event: "end", Data: `{"run_id":"run-1"}`},
	}, events)
}

func TestSubscribeNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown run", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewClient(server.URL).Subscribe(context.Background(), "missing", func(domain.StreamEvent) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "unknown run")
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: paused\ndata: {}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewClient(server.URL).Subscribe(ctx, "run-1", func(ev domain.StreamEvent) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}
}

func TestParseSSEMultilineData(t *testing.T) {
	input := "event: workflow\ndata: {\"steps\":\ndata: []}\n\n"
	var events []domain.StreamEvent
	err := parseSSE(strings.NewReader(input), func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "{\"steps\":\n[]}", events[0].Data)
}

func TestParseSSEDefaultsAndTrailingEvent(t *testing.T) {
	input := "data: plain\n\nevent: ignored-without-data\n\nevent: error\ndata: {\"message\":\"x\"}"
	var events []domain.StreamEvent
	err := parseSSE(strings.NewReader(input), func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.StreamEvent{
		{Event: "message", Data: "plain"},
		{Event: "error", Data: `{"message":"x"}`},
	}, events)
}

func TestParseSSEHandlerError(t *testing.T) {
	stop := errors.New("stop")
	err := parseSSE(strings.NewReader("event: a\ndata: 1\n\nevent: b\ndata: 2\n\n"), func(domain.StreamEvent) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}
