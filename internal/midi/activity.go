package midi

import (
	"fmt"
	"sync"
	"time"
)

// ActivityEntry is one line of the routing activity feed shown to clients.
type ActivityEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// ActivityLog is a bounded ring buffer of recent routing activity. Oldest
// entries are evicted first. Observability only; nothing reads it back into
// routing decisions.
type ActivityLog struct {
	mu      sync.Mutex
	entries []ActivityEntry
	head    int
	full    bool
}

// NewActivityLog creates a log holding at most capacity entries.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = 100
	}
	return &ActivityLog{entries: make([]ActivityEntry, capacity)}
}

// Append records a formatted entry, evicting the oldest when full.
func (l *ActivityLog) Append(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.head] = ActivityEntry{Time: time.Now(), Message: fmt.Sprintf(format, args...)}
	l.head = (l.head + 1) % len(l.entries)
	if l.head == 0 {
		l.full = true
	}
}

// Entries returns the buffered entries, oldest first.
func (l *ActivityLog) Entries() []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]ActivityEntry, l.head)
		copy(out, l.entries[:l.head])
		return out
	}
	out := make([]ActivityEntry, 0, len(l.entries))
	out = append(out, l.entries[l.head:]...)
	out = append(out, l.entries[:l.head]...)
	return out
}
