package service

import (
	"github.com/PhilippeSteinbach/WatchParty/internal/hub"
	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

// WebRTCRelay forwards signaling payloads between two connections. It keeps
// no state; a signal to a connection that already disconnected is dropped.
type WebRTCRelay struct {
	broadcaster Broadcaster
}

// NewWebRTCRelay creates the relay.
func NewWebRTCRelay(broadcaster Broadcaster) *WebRTCRelay {
	return &WebRTCRelay{broadcaster: broadcaster}
}

// Offer relays an SDP offer to the target connection.
func (r *WebRTCRelay) Offer(fromConnectionID, targetConnectionID, sdp string) {
	r.broadcaster.SendToConnection(targetConnectionID, hub.QueueWebRTCSignal,
		model.OfferSignal(fromConnectionID, sdp))
}

// Answer relays an SDP answer to the target connection.
func (r *WebRTCRelay) Answer(fromConnectionID, targetConnectionID, sdp string) {
	r.broadcaster.SendToConnection(targetConnectionID, hub.QueueWebRTCSignal,
		model.AnswerSignal(fromConnectionID, sdp))
}

// IceCandidate relays an ICE candidate to the target connection.
func (r *WebRTCRelay) IceCandidate(fromConnectionID, targetConnectionID, candidate string, sdpMid *string, sdpMLineIndex *int) {
	r.broadcaster.SendToConnection(targetConnectionID, hub.QueueWebRTCSignal,
		model.IceCandidateSignal(fromConnectionID, candidate, sdpMid, sdpMLineIndex))
}
