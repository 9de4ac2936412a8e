// Package chatlog provides the ordered, id-addressed conversation log.
//
// Entries are stored in a map keyed by message id with a separate order
// slice, so a streaming update always patches by id and never by position.
// Readers get deep copies; a snapshot taken for display is never mutated
// by a later patch.
package chatlog

import (
	"errors"
	"slices"
	"sync"

	"github.com/raphaelgruber/victor/internal/models"
)

var (
	// ErrDuplicateID is returned when appending a message whose id is already present.
	ErrDuplicateID = errors.New("message id already exists")
	// ErrNotFound is returned when addressing an unknown message id.
	ErrNotFound = errors.New("message not found")
	// ErrStreamInFlight is returned when a second stream is started while one is open.
	ErrStreamInFlight = errors.New("another message is already in flight")
)

// Log is a conversation log. All methods are safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	order    []string
	entries  map[string]models.Message
	inFlight string
}

// New creates an empty log, optionally seeded with messages.
func New(seed ...models.Message) *Log {
	l := &Log{entries: make(map[string]models.Message)}
	for _, m := range seed {
		_ = l.Append(m)
	}
	return l
}

// Append adds a message at the end of the log.
func (l *Log) Append(msg models.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[msg.ID]; ok {
		return ErrDuplicateID
	}
	l.entries[msg.ID] = msg.Clone()
	l.order = append(l.order, msg.ID)
	return nil
}

// Get returns a copy of the message with the given id.
func (l *Log) Get(id string) (models.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.entries[id]
	if !ok {
		return models.Message{}, false
	}
	return m.Clone(), true
}

// Replace swaps the stored entry for msg.ID with msg.
func (l *Log) Replace(msg models.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[msg.ID]; !ok {
		return ErrNotFound
	}
	l.entries[msg.ID] = msg.Clone()
	return nil
}

// Patch applies fn to a copy of the entry and stores the result.
// The id of the entry cannot be changed by fn.
func (l *Log) Patch(id string, fn func(*models.Message)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.entries[id]
	if !ok {
		return ErrNotFound
	}
	next := cur.Clone()
	fn(&next)
	next.ID = id
	l.entries[id] = next
	return nil
}

// Remove deletes the entry with the given id. It reports whether an entry was removed.
func (l *Log) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; !ok {
		return false
	}
	delete(l.entries, id)
	l.order = slices.DeleteFunc(slices.Clone(l.order), func(s string) bool { return s == id })
	if l.inFlight == id {
		l.inFlight = ""
	}
	return true
}

// Messages returns copies of all entries in order.
func (l *Log) Messages() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id].Clone())
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Last returns the most recent entry.
func (l *Log) Last() (models.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.order) == 0 {
		return models.Message{}, false
	}
	return l.entries[l.order[len(l.order)-1]].Clone(), true
}

// BeginStream marks id as the single in-flight entry.
func (l *Log) BeginStream(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; !ok {
		return ErrNotFound
	}
	if l.inFlight != "" && l.inFlight != id {
		return ErrStreamInFlight
	}
	l.inFlight = id
	return nil
}

// EndStream clears the in-flight marker if it still points at id.
func (l *Log) EndStream(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight == id {
		l.inFlight = ""
	}
}

// InFlight returns the id of the entry currently being streamed into.
func (l *Log) InFlight() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inFlight, l.inFlight != ""
}
