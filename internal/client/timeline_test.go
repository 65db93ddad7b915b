package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/offer-chat/internal/api"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, at time.Duration) api.Message {
	return api.Message{ID: id, ConversationID: "c1", SenderID: "user_a", Content: id, CreatedAt: t0.Add(at)}
}

func ids(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestTimeline_OrdersByTimeThenID(t *testing.T) {
	tl := NewTimeline()
	require.Equal(t, 3, tl.Merge(msg("b", time.Second), msg("c", 0), msg("a", time.Second)))
	require.Equal(t, []string{"c", "a", "b"}, ids(tl.Messages()))

	require.Equal(t, 1, tl.Merge(msg("x", -time.Second)))
	require.Equal(t, []string{"x", "c", "a", "b"}, ids(tl.Messages()))
	require.True(t, tl.Has("a"))
	require.False(t, tl.Has("zz"))
}

func TestTimeline_DuplicatesIgnored(t *testing.T) {
	tl := NewTimeline()
	require.Equal(t, 2, tl.Merge(msg("m1", 0), msg("m2", time.Second)))

	// The same ids arriving from the socket and from a refetch.
	dup := msg("m1", 0)
	dup.Content = "changed"
	require.Zero(t, tl.Merge(dup, msg("m2", time.Second), msg("m1", 0)))
	require.Equal(t, 2, tl.Len())
	require.Equal(t, "m1", tl.Messages()[0].Content)

	require.Zero(t, tl.Merge(api.Message{}))
}

func TestTimeline_DuplicateFillsSender(t *testing.T) {
	tl := NewTimeline()
	tl.Merge(msg("m1", 0))

	withSender := msg("m1", 0)
	withSender.Sender = &api.UserSummary{ID: "user_a", FirstName: "Ann"}
	require.Zero(t, tl.Merge(withSender))
	require.Equal(t, "Ann", tl.Messages()[0].Sender.FirstName)

	other := msg("m1", 0)
	other.Sender = &api.UserSummary{ID: "user_a", FirstName: "Changed"}
	tl.Merge(other)
	require.Equal(t, "Ann", tl.Messages()[0].Sender.FirstName)
}

func TestTimeline_MessagesIsACopy(t *testing.T) {
	tl := NewTimeline()
	tl.Merge(msg("m1", 0))
	got := tl.Messages()
	got[0].Content = "mutated"
	require.Equal(t, "m1", tl.Messages()[0].Content)
}
