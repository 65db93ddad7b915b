// Package client implements the consumer side of the chat: an HTTP API client,
// a deduplicating per-conversation timeline and a reconnecting session.
package client

import (
	"sort"
	"sync"

	"github.com/and161185/offer-chat/internal/api"
)

// Timeline is the ordered, duplicate-free message list of one conversation.
// Messages are ordered by (CreatedAt, ID) and keyed by ID.
type Timeline struct {
	mu   sync.Mutex
	byID map[string]int
	msgs []api.Message
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{byID: make(map[string]int)}
}

func less(a, b api.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Merge inserts messages not seen before and returns how many were added.
// A known id is never duplicated; it may only gain a missing sender summary.
func (t *Timeline) Merge(msgs ...api.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if i, ok := t.byID[m.ID]; ok {
			if t.msgs[i].Sender == nil && m.Sender != nil {
				s := *m.Sender
				t.msgs[i].Sender = &s
			}
			continue
		}
		pos := sort.Search(len(t.msgs), func(i int) bool { return less(m, t.msgs[i]) })
		t.msgs = append(t.msgs, api.Message{})
		copy(t.msgs[pos+1:], t.msgs[pos:])
		t.msgs[pos] = m
		for j := pos; j < len(t.msgs); j++ {
			t.byID[t.msgs[j].ID] = j
		}
		added++
	}
	return added
}

// Messages returns a copy of the ordered list.
func (t *Timeline) Messages() []api.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]api.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Has reports whether id is already in the timeline.
func (t *Timeline) Has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byID[id]
	return ok
}
