package runsync

import "github.com/ShawnNotFound/20251115GreatAgent/internal/domain"

// DefaultLogCapacity is the number of entries kept by the event log.
const DefaultLogCapacity = 160

// EventLog is a fixed-capacity ring of log entries. When full, appending
// evicts the oldest entry.
type EventLog struct {
	buf   []domain.LogEntry
	start int
	size  int
}

// NewEventLog creates a log holding at most capacity entries.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &EventLog{buf: make([]domain.LogEntry, capacity)}
}

// Append adds an entry.
func (l *EventLog) Append(e domain.LogEntry) {
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = e
		l.size++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// Entries returns a copy of the log, oldest first.
func (l *EventLog) Entries() []domain.LogEntry {
	out := make([]domain.LogEntry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of entries held.
func (l *EventLog) Len() int { return l.size }

// Cap returns the log capacity.
func (l *EventLog) Cap() int { return len(l.buf) }

// Reset drops all entries.
func (l *EventLog) Reset() {
	clear(l.buf)
	l.start = 0
	l.size = 0
}
