// Command console-watch connects to the console websocket feed, prints
// snapshots and sends run commands typed at the prompt.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/protocol"
	"github.com/ShawnNotFound/20251115GreatAgent/internal/service"
)

var errQuit = errors.New("quit")

// Client represents a WebSocket client.
type Client struct {
	conn         *websocket.Conn
	connectionID string
	done         chan struct{}
}

// NewClient creates a new client and connects to the console.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// SendHello sends a hello message and waits for hello_ack.
func (c *Client) SendHello(apiKey string) error {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeHello,
			Ts:   time.Now().UnixMilli(),
		},
		APIKey: apiKey,
		ClientMeta: map[string]string{
			"client": "console-watch",
		},
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var ack protocol.HelloAckMessage
	if err := json.Unmarshal(data, &ack); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	if ack.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		_ = json.Unmarshal(data, &errMsg)
		return fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}
	if ack.Type != protocol.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", ack.Type)
	}

	c.connectionID = ack.ConnectionID
	return nil
}

// Send writes one command message.
func (c *Client) Send(msg any) error {
	return c.conn.WriteJSON(msg)
}

// ReadMessages reads and prints messages from the console.
func (c *Client) ReadMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}
			fmt.Println(formatMessage(data))
		}
	}
}

// parseCommand turns one prompt line into a command message. Plain text
// replaces the draft query.
func parseCommand(line string) (any, error) {
	base := protocol.BaseMessage{
		Ts:        time.Now().UnixMilli(),
		RequestID: "req_" + uuid.NewString(),
	}

	if !strings.HasPrefix(line, "/") {
		base.Type = protocol.TypeSetQuery
		return protocol.SetQueryMessage{BaseMessage: base, Query: line}, nil
	}

	fields := strings.Fields(line)
	verb, args := fields[0], fields[1:]
	switch verb {
	case "/quit":
		return nil, errQuit
	case "/start":
		base.Type = protocol.TypeStartRun
		return protocol.StartRunMessage{BaseMessage: base, Query: strings.Join(args, " ")}, nil
	case "/pause":
		base.Type = protocol.TypePauseRun
		return base, nil
	case "/resume":
		base.Type = protocol.TypeResumeRun
		return base, nil
	case "/stop":
		base.Type = protocol.TypeStopRun
		return base, nil
	case "/mode":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: /mode auto|human")
		}
		base.Type = protocol.TypeSetMode
		return protocol.SetModeMessage{BaseMessage: base, Mode: args[0]}, nil
	case "/decide", "/draft":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: %s <node> <index>", verb)
		}
		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", args[1])
		}
		if verb == "/draft" {
			base.Type = protocol.TypeSetDraft
			return protocol.SetDraftMessage{BaseMessage: base, Node: args[0], Index: idx}, nil
		}
		base.Type = protocol.TypeSubmitDecision
		return protocol.SubmitDecisionMessage{BaseMessage: base, Node: args[0], ChoiceIndex: idx}, nil
	}
	return nil, fmt.Errorf("unknown command %s", verb)
}

// formatMessage renders a console message as one or more readable lines.
func formatMessage(data []byte) string {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Sprintf("[invalid] %s", data)
	}

	switch base.Type {
	case protocol.TypeSnapshot:
		var msg protocol.SnapshotMessage
		var snap service.Snapshot
		if json.Unmarshal(data, &msg) != nil || json.Unmarshal(msg.State, &snap) != nil {
			return fmt.Sprintf("[snapshot] %s", data)
		}
		return formatSnapshot(&snap)
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		_ = json.Unmarshal(data, &msg)
		return fmt.Sprintf("[error] %s: %s", msg.Code, msg.Message)
	case protocol.TypeAck:
		return fmt.Sprintf("[ack] %s", base.RequestID)
	}
	return fmt.Sprintf("[%s] %s", base.Type, data)
}

func formatSnapshot(snap *service.Snapshot) string {
	run := snap.RunID
	if run == "" {
		run = "-"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[snapshot] phase=%s run=%s mode=%s", snap.Phase, run, snap.Mode)
	if snap.Notice != nil {
		fmt.Fprintf(&b, " notice=%q", snap.Notice.Text)
	}
	if snap.ErrorDetails != "" {
		fmt.Fprintf(&b, " error=%q", snap.ErrorDetails)
	}

	nodes := make([]string, 0, len(snap.Pending))
	for n := range snap.Pending {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		fmt.Fprintf(&b, "\n  pending %s:", n)
		for i, opt := range snap.Pending[n] {
			marker := " "
			if snap.Drafts[n] == i {
				marker = "*"
			}
			fmt.Fprintf(&b, " %s%d=%s", marker, i, opt)
		}
	}
	if n := len(snap.Log); n > 0 {
		last := snap.Log[n-1]
		fmt.Fprintf(&b, "\n  last event: %s %s", last.Name, last.Detail)
	}
	return b.String()
}

func main() {
	addr := flag.String("addr", "ws://localhost:8078/ws", "console websocket address")
	apiKey := flag.String("api-key", "", "API key for authentication")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if err := client.SendHello(*apiKey); err != nil {
		log.Fatalf("Hello failed: %v", err)
	}

	fmt.Printf("Connected: %s\n", client.connectionID)
	fmt.Println("Commands: /start <query> /pause /resume /stop /mode auto|human /decide <node> <i> /draft <node> <i> /quit")
	fmt.Println("Plain text replaces the draft query.")

	go client.ReadMessages()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			msg, err := parseCommand(line)
			if errors.Is(err, errQuit) {
				fmt.Println("Bye!")
				return
			}
			if err != nil {
				log.Printf("%v", err)
				continue
			}
			if err := client.Send(msg); err != nil {
				log.Printf("Send error: %v", err)
			}
		}
	}
}
