package service

// Broadcaster is the outbound side of the room engine: room-wide topics and
// per-connection private queues. Implemented by hub.Hub.
type Broadcaster interface {
	Broadcast(topic string, payload any)
	// SendToConnection reports false when the target connection is gone;
	// callers relaying peer signals treat that as a silent drop.
	SendToConnection(connectionID, destination string, payload any) bool
	Subscribe(connectionID string, topics ...string)
	UnsubscribeAll(connectionID string)
}
