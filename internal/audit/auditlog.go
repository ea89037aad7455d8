// Package audit keeps a hash-chained, in-memory record of session lifecycle
// events. Event names only: no secrets, no entry contents.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Event is one recorded transition. Chain commits to every earlier event,
// so truncation or reordering is detectable with Verify.
type Event struct {
	At    int64  `json:"at"`
	Name  string `json:"name"`
	Chain string `json:"chain"`
}

type Trail struct {
	mu     sync.Mutex
	last   []byte
	events []Event
}

func NewTrail() *Trail { return &Trail{} }

// Append records an event and returns it.
func (t *Trail) Append(name string) Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := sha256.New()
	h.Write(t.last)
	h.Write([]byte(name))
	sum := h.Sum(nil)
	t.last = sum

	e := Event{At: time.Now().Unix(), Name: name, Chain: hex.EncodeToString(sum)}
	t.events = append(t.events, e)
	return e
}

// Verify recomputes the chain and reports the first inconsistency.
func (t *Trail) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var prev []byte
	for i, e := range t.events {
		h := sha256.New()
		h.Write(prev)
		h.Write([]byte(e.Name))
		sum := h.Sum(nil)
		if hex.EncodeToString(sum) != e.Chain {
			return fmt.Errorf("audit: chain broken at event %d (%s)", i, e.Name)
		}
		prev = sum
	}
	return nil
}

// Events returns a copy of the recorded trail.
func (t *Trail) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}
