// Package timeline merges a conversation's history snapshot and its live
// deliveries into one deduplicated sequence ordered by (created_at, id).
package timeline

import (
	"sort"

	"github.com/go-go-golems/livechat/pkg/chat"
)

// Merge returns seq with incoming inserted at its (created_at, id) position.
// seq must already be sorted. When an entry with the same id exists, seq is
// returned unchanged.
func Merge(seq []chat.Message, incoming chat.Message) []chat.Message {
	out, _ := insert(seq, incoming)
	return out
}

func insert(seq []chat.Message, m chat.Message) ([]chat.Message, bool) {
	for i := range seq {
		if seq[i].ID == m.ID {
			return seq, false
		}
	}
	return insertAt(seq, m), true
}

func insertAt(seq []chat.Message, m chat.Message) []chat.Message {
	idx := sort.Search(len(seq), func(i int) bool { return chat.Less(m, seq[i]) })
	out := make([]chat.Message, 0, len(seq)+1)
	out = append(out, seq[:idx]...)
	out = append(out, m)
	out = append(out, seq[idx:]...)
	return out
}

// Timeline is the in-memory ordered view of one conversation.
// It is not safe for concurrent use; the owning session serializes access.
type Timeline struct {
	conversationID string
	msgs           []chat.Message
	ids            map[string]struct{}
}

// New seeds a timeline from a history snapshot. The snapshot may be unsorted
// and may contain duplicates; messages of other conversations are skipped.
func New(conversationID string, history []chat.Message) *Timeline {
	t := &Timeline{
		conversationID: conversationID,
		ids:            make(map[string]struct{}, len(history)),
	}
	for _, m := range history {
		t.Merge(m)
	}
	return t
}

// Merge inserts m and reports whether the timeline changed.
func (t *Timeline) Merge(m chat.Message) bool {
	if m.ID == "" || (t.conversationID != "" && m.ConversationID != t.conversationID) {
		return false
	}
	if _, ok := t.ids[m.ID]; ok {
		return false
	}
	t.ids[m.ID] = struct{}{}
	t.msgs = insertAt(t.msgs, m)
	return true
}

// MergeAll merges every message and returns the ones that were new, in timeline order.
func (t *Timeline) MergeAll(msgs []chat.Message) []chat.Message {
	var added []chat.Message
	for _, m := range msgs {
		if t.Merge(m) {
			added = append(added, m)
		}
	}
	sort.SliceStable(added, func(i, j int) bool { return chat.Less(added[i], added[j]) })
	return added
}

// Messages returns a copy of the ordered sequence.
func (t *Timeline) Messages() []chat.Message {
	out := make([]chat.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

func (t *Timeline) Len() int { return len(t.msgs) }

func (t *Timeline) Contains(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Oldest returns the first message in timeline order.
func (t *Timeline) Oldest() (chat.Message, bool) {
	if len(t.msgs) == 0 {
		return chat.Message{}, false
	}
	return t.msgs[0], true
}

// Newest returns the last message in timeline order.
func (t *Timeline) Newest() (chat.Message, bool) {
	if len(t.msgs) == 0 {
		return chat.Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}
