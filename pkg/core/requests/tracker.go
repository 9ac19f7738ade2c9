// Package requests tracks the lifecycle of dispatched generation requests.
package requests

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Record is the latest known state of one dispatched request. Result is set
// only when Status is ready; Error only when Status is error.
type Record struct {
	ID        string    `json:"request_id"`
	Tool      string    `json:"tool"`
	CallID    string    `json:"call_id"`
	Status    Status    `json:"status"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Observer is notified after every record transition, outside the tracker lock.
type Observer func(Record)

// Tracker owns the request records for one studio session. Records are kept
// for the lifetime of the tracker.
type Tracker struct {
	mu       sync.Mutex
	records  map[string]*Record
	ids      *idSet
	now      func() time.Time
	observer Observer
}

// NewTracker creates a tracker. now may be nil. Ids are unique across every
// tracker in the process.
func NewTracker(now func() time.Time, observer Observer) *Tracker {
	return newTracker(now, observer, processIDs)
}

func newTracker(now func() time.Time, observer Observer, ids *idSet) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		records:  make(map[string]*Record),
		ids:      ids,
		now:      now,
		observer: observer,
	}
}

// idSet holds every request id issued so far.
type idSet struct {
	mu     sync.Mutex
	issued map[string]struct{}
}

var processIDs = newIDSet()

func newIDSet() *idSet {
	return &idSet{issued: make(map[string]struct{})}
}

// claim returns base, or base with the first free numeric suffix.
func (s *idSet) claim(base string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := base
	for n := 2; ; n++ {
		if _, taken := s.issued[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
	s.issued[id] = struct{}{}
	return id
}

// Begin creates a pending record for a dispatched call. The id is derived
// from the tool name, call id and dispatch time, with a numeric suffix when
// that combination was already issued anywhere in the process.
func (t *Tracker) Begin(tool, callID string) Record {
	now := t.now()
	id := t.ids.claim(fmt.Sprintf("%s-%s-%d", sanitize(tool), sanitize(callID), now.UnixMilli()))

	t.mu.Lock()
	rec := &Record{
		ID:        id,
		Tool:      tool,
		CallID:    callID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.records[id] = rec
	out := *rec
	t.mu.Unlock()

	t.notify(out)
	return out
}

// Resolve moves a pending record to ready.
func (t *Tracker) Resolve(id string, result any) (Record, error) {
	return t.settle(id, func(r *Record) {
		r.Status = StatusReady
		r.Result = result
	})
}

// Fail moves a pending record to error.
func (t *Tracker) Fail(id string, cause error) (Record, error) {
	msg := "request failed"
	if cause != nil {
		msg = cause.Error()
	}
	return t.settle(id, func(r *Record) {
		r.Status = StatusError
		r.Error = msg
	})
}

// ErrNotPending is returned when settling a record that already transitioned.
type ErrNotPending struct {
	ID     string
	Status Status
}

func (e *ErrNotPending) Error() string {
	return fmt.Sprintf("request %s already %s", e.ID, e.Status)
}

func (t *Tracker) settle(id string, apply func(*Record)) (Record, error) {
	t.mu.Lock()
	rec, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return Record{}, fmt.Errorf("request %s not found", id)
	}
	if rec.Status != StatusPending {
		out := *rec
		t.mu.Unlock()
		return out, &ErrNotPending{ID: id, Status: out.Status}
	}
	apply(rec)
	rec.UpdatedAt = t.now()
	out := *rec
	t.mu.Unlock()

	t.notify(out)
	return out, nil
}

// Get returns the current record for id.
func (t *Tracker) Get(id string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Records returns every record ordered by creation time.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pending returns how many records have not settled yet.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, rec := range t.records {
		if rec.Status == StatusPending {
			n++
		}
	}
	return n
}

func (t *Tracker) notify(rec Record) {
	if t.observer != nil {
		t.observer(rec)
	}
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '_'
		}
		return r
	}, s)
}
