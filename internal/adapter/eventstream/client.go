// Package eventstream subscribes to a run's server-sent event stream.
package eventstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

const maxLineSize = 4 << 20

// EventHandler is called for each event read from the stream.
type EventHandler func(event domain.StreamEvent) error

// Client opens event stream subscriptions against the controller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new event stream client. The HTTP client has no
// timeout; subscriptions end when their context is cancelled.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Subscribe connects to /events/{runID} and calls handler for each event
// until the server closes the stream, handler fails, or ctx is done.
// A clean close by the server returns nil.
func (c *Client) Subscribe(ctx context.Context, runID string, handler func(domain.StreamEvent) error) error {
	endpoint := c.baseURL + "/events/" + url.PathEscape(runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("event stream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return parseSSE(resp.Body, handler)
}

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		name    string
		data    []string
		hasData bool
	)
	flush := func() error {
		if !hasData {
			name = ""
			return nil
		}
		if name == "" {
			name = "message"
		}
		ev := domain.StreamEvent{Event: name, Data: strings.Join(data, "\n")}
		name, data, hasData = "", nil, false
		return handler(ev)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		// Empty line marks end of event
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		// Comments keep the connection alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
			hasData = true
		}
		// id and retry are not used
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	// Handle any remaining event
	return flush()
}
