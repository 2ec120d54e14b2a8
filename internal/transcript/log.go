package transcript

import "sync"

// Sink receives each finalized entry exactly once, in log order. Sinks are
// used to fan entries out to the persistent store, the event publisher, and
// the presentation layer without coupling the session loop to any of them.
type Sink func(Entry)

// Log is the append-only conversation log of one session. Safe for
// concurrent use: the session loop appends while the presentation layer
// reads snapshots.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	sinks   []Sink
}

// NewLog creates an empty Log with the given sinks.
func NewLog(sinks ...Sink) *Log {
	return &Log{sinks: sinks}
}

// Append adds entries in order and notifies every sink.
func (l *Log) Append(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, entries...)
	sinks := l.sinks
	l.mu.Unlock()

	for _, e := range entries {
		for _, s := range sinks {
			s(e)
		}
	}
}

// Entries returns a snapshot of the log.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of committed entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
