package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case env := <-c.Send:
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestBroadcastReachesSubscribersOnly(t *testing.T) {
	h := NewHub(zap.NewNop())
	a, cleanupA := h.Register("conn-a", nil)
	defer cleanupA()
	b, cleanupB := h.Register("conn-b", nil)
	defer cleanupB()

	h.Subscribe("conn-a", RoomTopic("CODE1234"))
	h.Broadcast(RoomTopic("CODE1234"), "payload")

	got := drain(a)
	require.Len(t, got, 1)
	assert.Equal(t, RoomTopic("CODE1234"), got[0].Destination)
	assert.Equal(t, "payload", got[0].Payload)

	assert.Empty(t, drain(b), "non-subscriber receives nothing")
}

func TestSendToConnection(t *testing.T) {
	h := NewHub(zap.NewNop())
	c, cleanup := h.Register("conn-a", nil)
	defer cleanup()

	assert.True(t, h.SendToConnection("conn-a", QueueSessionInfo, "hello"))
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, QueueSessionInfo, got[0].Destination)

	assert.False(t, h.SendToConnection("conn-gone", QueueSessionInfo, "hello"),
		"unknown connection is a silent drop")
}

func TestUnsubscribeAllKeepsConnection(t *testing.T) {
	h := NewHub(zap.NewNop())
	c, cleanup := h.Register("conn-a", nil)
	defer cleanup()

	h.Subscribe("conn-a", RoomTopic("CODE1234"), ChatTopic("CODE1234"))
	h.UnsubscribeAll("conn-a")

	h.Broadcast(RoomTopic("CODE1234"), "payload")
	h.Broadcast(ChatTopic("CODE1234"), "payload")
	assert.Empty(t, drain(c))

	assert.True(t, h.SendToConnection("conn-a", QueueErrors, "still here"),
		"connection survives unsubscription")
}

func TestCleanupUnregisters(t *testing.T) {
	h := NewHub(zap.NewNop())
	_, cleanup := h.Register("conn-a", nil)
	h.Subscribe("conn-a", RoomTopic("CODE1234"))

	cleanup()

	assert.False(t, h.SendToConnection("conn-a", QueueErrors, "x"))
	assert.Zero(t, h.ConnectionCount())
}

func TestBroadcastFullBufferDropsForThatClientOnly(t *testing.T) {
	h := NewHub(zap.NewNop())
	slow, cleanupSlow := h.Register("conn-slow", nil)
	defer cleanupSlow()
	fast, cleanupFast := h.Register("conn-fast", nil)
	defer cleanupFast()

	topic := RoomTopic("CODE1234")
	h.Subscribe("conn-slow", topic)
	h.Subscribe("conn-fast", topic)

	for i := 0; i < cap(slow.Send); i++ {
		slow.Send <- Envelope{}
	}
	drain(fast)

	h.Broadcast(topic, "payload")

	assert.Len(t, drain(fast), 1, "fast client still receives")
	assert.Len(t, drain(slow), cap(slow.Send), "slow client's overflow was dropped")
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "/topic/room.AbCd1234", RoomTopic("AbCd1234"))
	assert.Equal(t, "/topic/room.AbCd1234.chat", ChatTopic("AbCd1234"))
	assert.Equal(t, "/topic/room.AbCd1234.playlist", PlaylistTopic("AbCd1234"))
	assert.Equal(t, "/topic/room.AbCd1234.camera-state", CameraTopic("AbCd1234"))
}
