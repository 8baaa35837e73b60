package runsync

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Event is a decoded stream event. The set of implementations is closed:
// every event dispatches itself to exactly one reducer method.
type Event interface {
	Kind() domain.EventKind
	apply(r reducer)
}

// reducer has one method per event kind. Adding a kind without handling it
// here breaks the build of every reducer.
type reducer interface {
	onTrace(TraceEvent)
	onWorkflow(WorkflowEvent)
	onSegment(SegmentEvent)
	onOptions(OptionsEvent)
	onAwaitingSelection(AwaitingSelectionEvent)
	onSelection(SelectionEvent)
	onEnter(EnterEvent)
	onExit(ExitEvent)
	onPaused(PausedEvent)
	onAgentError(AgentErrorEvent)
	onResumed(ResumedEvent)
	onStopping(StoppingEvent)
	onDone(DoneEvent)
	onError(ErrorEvent)
	onEnd(EndEvent)
}

type (
	TraceEvent struct{ Meta domain.TraceMeta }

	WorkflowEvent struct{ Snapshot domain.WorkflowSnapshot }

	SegmentEvent struct {
		Node   string
		Record domain.SegmentRecord
	}

	OptionsEvent struct {
		Node    string
		Options []string
	}

	AwaitingSelectionEvent struct{ Node string }

	SelectionEvent struct {
		Node        string
		ChoiceIndex *int
	}

	EnterEvent struct{ Node string }

	ExitEvent struct {
		Node   string
		Output json.RawMessage
	}

	PausedEvent struct{}

	AgentErrorEvent struct{ Error domain.ErrorState }

	ResumedEvent struct{}

	StoppingEvent struct{}

	// DoneEvent carries the final payload verbatim.
	DoneEvent struct{ Payload Message }

	ErrorEvent struct{ Message string }

	EndEvent struct{ RunID string }
)

func (TraceEvent) Kind() domain.EventKind             { return domain.EventTrace }
func (WorkflowEvent) Kind() domain.EventKind          { return domain.EventWorkflow }
func (SegmentEvent) Kind() domain.EventKind           { return domain.EventSegment }
func (OptionsEvent) Kind() domain.EventKind           { return domain.EventOptions }
func (AwaitingSelectionEvent) Kind() domain.EventKind { return domain.EventAwaitingSelection }
func (SelectionEvent) Kind() domain.EventKind         { return domain.EventSelection }
func (EnterEvent) Kind() domain.EventKind             { return domain.EventEnter }
func (ExitEvent) Kind() domain.EventKind              { return domain.EventExit }
func (PausedEvent) Kind() domain.EventKind            { return domain.EventPaused }
func (AgentErrorEvent) Kind() domain.EventKind        { return domain.EventAgentError }
func (ResumedEvent) Kind() domain.EventKind           { return domain.EventResumed }
func (StoppingEvent) Kind() domain.EventKind          { return domain.EventStopping }
func (DoneEvent) Kind() domain.EventKind              { return domain.EventDone }
func (ErrorEvent) Kind() domain.EventKind             { return domain.EventError }
func (EndEvent) Kind() domain.EventKind               { return domain.EventEnd }

func (e TraceEvent) apply(r reducer)             { r.onTrace(e) }
func (e WorkflowEvent) apply(r reducer)          { r.onWorkflow(e) }
func (e SegmentEvent) apply(r reducer)           { r.onSegment(e) }
func (e OptionsEvent) apply(r reducer)           { r.onOptions(e) }
func (e AwaitingSelectionEvent) apply(r reducer) { r.onAwaitingSelection(e) }
func (e SelectionEvent) apply(r reducer)         { r.onSelection(e) }
func (e EnterEvent) apply(r reducer)             { r.onEnter(e) }
func (e ExitEvent) apply(r reducer)              { r.onExit(e) }
func (e PausedEvent) apply(r reducer)            { r.onPaused(e) }
func (e AgentErrorEvent) apply(r reducer)        { r.onAgentError(e) }
func (e ResumedEvent) apply(r reducer)           { r.onResumed(e) }
func (e StoppingEvent) apply(r reducer)          { r.onStopping(e) }
func (e DoneEvent) apply(r reducer)              { r.onDone(e) }
func (e ErrorEvent) apply(r reducer)             { r.onError(e) }
func (e EndEvent) apply(r reducer)               { r.onEnd(e) }

// decoders maps every stream event name to its decoder.
var decoders = map[domain.EventKind]func(Message) Event{
	domain.EventTrace: func(m Message) Event {
		var d domain.TraceEventData
		m.decode(&d)
		return TraceEvent{Meta: domain.TraceMeta{TraceID: d.TraceID, TraceURL: d.TraceURL}}
	},
	domain.EventWorkflow: func(m Message) Event {
		var d domain.WorkflowSnapshot
		m.decode(&d)
		return WorkflowEvent{Snapshot: d}
	},
	domain.EventSegment: func(m Message) Event {
		var d domain.SegmentEventData
		m.decode(&d)
		return SegmentEvent{Node: d.Node, Record: domain.SegmentRecord{
			Input:  documentOrEmpty(d.Input),
			Output: documentOrEmpty(d.Output),
		}}
	},
	domain.EventOptions: func(m Message) Event {
		var d domain.OptionsEventData
		m.decode(&d)
		labels := make([]string, 0, len(d.Options))
		for _, o := range d.Options {
			labels = append(labels, optionLabel(o))
		}
		return OptionsEvent{Node: d.Node, Options: labels}
	},
	domain.EventAwaitingSelection: func(m Message) Event {
		var d domain.NodeEventData
		m.decode(&d)
		return AwaitingSelectionEvent{Node: d.Node}
	},
	domain.EventSelection: func(m Message) Event {
		var d domain.SelectionEventData
		m.decode(&d)
		return SelectionEvent{Node: d.Node, ChoiceIndex: d.ChoiceIndex}
	},
	domain.EventEnter: func(m Message) Event {
		var d domain.NodeEventData
		m.decode(&d)
		return EnterEvent{Node: d.Node}
	},
	domain.EventExit: func(m Message) Event {
		var d domain.ExitEventData
		m.decode(&d)
		return ExitEvent{Node: d.Node, Output: d.Output}
	},
	domain.EventPaused:   func(Message) Event { return PausedEvent{} },
	domain.EventResumed:  func(Message) Event { return ResumedEvent{} },
	domain.EventStopping: func(Message) Event { return StoppingEvent{} },
	domain.EventAgentError: func(m Message) Event {
		var d domain.AgentErrorEventData
		m.decode(&d)
		if d.Message == "" {
			d.Message = "Agent error"
		}
		return AgentErrorEvent{Error: domain.ErrorState{
			Node:      d.Node,
			Message:   d.Message,
			Timestamp: strings.Trim(string(d.Ts), `"`),
		}}
	},
	domain.EventDone: func(m Message) Event { return DoneEvent{Payload: m} },
	domain.EventError: func(m Message) Event {
		var d domain.ErrorEventData
		m.decode(&d)
		if d.Message == "" {
			d.Message = "Unknown error"
		}
		return ErrorEvent{Message: d.Message}
	},
	domain.EventEnd: func(m Message) Event {
		var d domain.EndEventData
		m.decode(&d)
		return EndEvent{RunID: d.RunID}
	},
}

// Decode turns a parsed message into a typed event. It reports false for
// names outside the stream vocabulary.
func Decode(m Message) (Event, bool) {
	dec, ok := decoders[domain.EventKind(m.Name)]
	if !ok {
		return nil, false
	}
	return dec(m), true
}

func documentOrEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return domain.EmptyDocument
	}
	return append(json.RawMessage(nil), trimmed...)
}

// optionLabel renders one option for display. Structured candidates use their
// title, name or label field when present.
func optionLabel(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"title", "name", "label"} {
			if v, ok := obj[key].(string); ok && v != "" {
				return v
			}
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
