package timeline

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func msg(id string, offset time.Duration) chat.Message {
	return chat.Message{ID: id, ConversationID: "c1", SenderID: "u1", RecipientID: "u2", Content: id, CreatedAt: t0.Add(offset)}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestMerge_Idempotent(t *testing.T) {
	seq := []chat.Message{msg("a", 0), msg("b", 2*time.Second)}
	m := msg("c", time.Second)

	once := Merge(seq, m)
	twice := Merge(once, m)
	require.Equal(t, once, twice)
	require.Equal(t, []string{"a", "c", "b"}, ids(twice))
}

func TestMerge_TieBreakByID(t *testing.T) {
	seq := Merge(nil, msg("b", 0))
	seq = Merge(seq, msg("a", 0))
	seq = Merge(seq, msg("c", 0))
	require.Equal(t, []string{"a", "b", "c"}, ids(seq))
}

func TestMerge_OrderAndSupersetInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	var seq []chat.Message
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("m%03d", r.Intn(200))
		m := msg(id, time.Duration(r.Intn(50))*time.Second)
		if seen[id] {
			// redeliveries carry the same payload as the first delivery
			for _, existing := range seq {
				if existing.ID == id {
					m = existing
				}
			}
		}
		prev := seq
		seq = Merge(seq, m)
		seen[id] = true

		require.True(t, sort.SliceIsSorted(seq, func(i, j int) bool { return chat.Less(seq[i], seq[j]) }))
		have := map[string]bool{}
		for _, x := range seq {
			require.False(t, have[x.ID], "duplicate id %s", x.ID)
			have[x.ID] = true
		}
		for _, p := range prev {
			require.True(t, have[p.ID], "id %s disappeared", p.ID)
		}
	}
	require.Len(t, seq, len(seen))
}

func TestTimeline_HistoryThenLiveScenario(t *testing.T) {
	tl := New("c1", []chat.Message{msg("a", 0), msg("b", 2*time.Second)})

	require.True(t, tl.Merge(msg("c", 1500*time.Millisecond)))
	require.False(t, tl.Merge(msg("a", 0)))

	require.Equal(t, []string{"a", "c", "b"}, ids(tl.Messages()))
}

func TestTimeline_SeedSortsAndDedups(t *testing.T) {
	tl := New("c1", []chat.Message{msg("b", time.Second), msg("a", 0), msg("b", time.Second)})
	require.Equal(t, []string{"a", "b"}, ids(tl.Messages()))
	require.True(t, tl.Contains("a"))
	require.Equal(t, 2, tl.Len())
}

func TestTimeline_DropsForeignConversation(t *testing.T) {
	tl := New("c1", nil)
	foreign := msg("x", 0)
	foreign.ConversationID = "c2"
	require.False(t, tl.Merge(foreign))
	require.Equal(t, 0, tl.Len())
}

func TestTimeline_MergeAllReturnsNewInOrder(t *testing.T) {
	tl := New("c1", []chat.Message{msg("b", 2*time.Second)})
	added := tl.MergeAll([]chat.Message{msg("d", 4*time.Second), msg("b", 2*time.Second), msg("a", 0)})
	require.Equal(t, []string{"a", "d"}, ids(added))

	oldest, ok := tl.Oldest()
	require.True(t, ok)
	require.Equal(t, "a", oldest.ID)
	newest, ok := tl.Newest()
	require.True(t, ok)
	require.Equal(t, "d", newest.ID)
}

func TestTimeline_MessagesIsACopy(t *testing.T) {
	tl := New("c1", []chat.Message{msg("a", 0)})
	out := tl.Messages()
	out[0].Content = "mutated"
	require.Equal(t, "a", tl.Messages()[0].Content)
}
