package grouper

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(counterpart, thread, body string, incoming bool, minute int) RawMessage {
	return RawMessage{
		Counterpart: counterpart,
		ThreadID:    thread,
		Body:        body,
		Incoming:    incoming,
		Timestamp:   time.Date(2025, 6, 1, 10, minute, 0, 0, time.UTC),
	}
}

func TestGroup_ByCounterpartAndThread(t *testing.T) {
	msgs := []RawMessage{
		msg("+15551111111", "t1", "a", true, 1),
		msg("+15551111111", "t1", "b", false, 2),
		msg("+15551111111", "t2", "c", true, 3),
		msg("+15552222222", "t1", "d", true, 4),
	}

	convs := Group(msgs)
	require.Len(t, convs, 3)

	assert.Equal(t, "+15551111111", convs[0].Counterpart)
	assert.Equal(t, "t1", convs[0].ThreadID)
	assert.Len(t, convs[0].Messages, 2)
	assert.Equal(t, "t2", convs[1].ThreadID)
	assert.Equal(t, "+15552222222", convs[2].Counterpart)
}

func TestGroup_SortedAscendingWithinGroup(t *testing.T) {
	msgs := []RawMessage{
		msg("+15551111111", "t1", "third", true, 30),
		msg("+15551111111", "t1", "first", true, 10),
		msg("+15551111111", "t1", "second", false, 20),
	}

	convs := Group(msgs)
	require.Len(t, convs, 1)

	bodies := []string{convs[0].Messages[0].Body, convs[0].Messages[1].Body, convs[0].Messages[2].Body}
	assert.Equal(t, []string{"first", "second", "third"}, bodies)
	assert.Equal(t, msgs[0].Timestamp, convs[0].Latest)
}

func TestGroup_DirectionVote(t *testing.T) {
	// 多数入站
	convs := Group([]RawMessage{
		msg("a", "t", "1", true, 1),
		msg("a", "t", "2", true, 2),
		msg("a", "t", "3", false, 3),
	})
	require.Len(t, convs, 1)
	assert.Equal(t, DirectionIncoming, convs[0].Direction)
	assert.False(t, convs[0].InboundOnly)

	// 平票
	convs = Group([]RawMessage{
		msg("a", "t", "1", true, 1),
		msg("a", "t", "2", false, 2),
	})
	assert.Equal(t, DirectionMixed, convs[0].Direction)

	// 纯入站
	convs = Group([]RawMessage{
		msg("a", "t", "1", true, 1),
		msg("a", "t", "2", true, 2),
	})
	assert.Equal(t, DirectionIncoming, convs[0].Direction)
	assert.True(t, convs[0].InboundOnly)
}

func TestGroup_InputOrderIndependent(t *testing.T) {
	base := []RawMessage{
		msg("+15551111111", "t1", "a", true, 1),
		msg("+15551111111", "t1", "b", false, 2),
		msg("+15551111111", "t2", "c", true, 3),
		msg("+15552222222", "t9", "d", true, 4),
		msg("+15552222222", "t9", "e", false, 5),
		msg("+15553333333", "t1", "f", true, 6),
	}

	want := Group(base)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]RawMessage, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, Group(shuffled))
	}
}

func TestGroup_Empty(t *testing.T) {
	assert.Empty(t, Group(nil))
}
