package model

import (
	"encoding/json"
	"time"
)

// InboundFrame is the wire envelope for client-to-server messages:
// {"type": "room.join", "payload": {...}}.
type InboundFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// JoinRoomMessage — room.join payload.
type JoinRoomMessage struct {
	RoomCode string `json:"roomCode"`
	Nickname string `json:"nickname"`
}

// PlayerStateMessage — room.player payload; broadcast back verbatim on success.
type PlayerStateMessage struct {
	Action             string  `json:"action"`
	VideoURL           *string `json:"videoUrl,omitempty"`
	CurrentTimeSeconds float64 `json:"currentTimeSeconds"`
	IsPlaying          bool    `json:"isPlaying"`
}

// Player actions accepted by the room engine.
const (
	ActionPlay        = "PLAY"
	ActionPause       = "PAUSE"
	ActionSeek        = "SEEK"
	ActionChangeVideo = "CHANGE_VIDEO"
	ActionSync        = "SYNC"
)

// PositionReportMessage — room.position.report payload.
type PositionReportMessage struct {
	CurrentTimeSeconds float64 `json:"currentTimeSeconds"`
}

// ChatMessageRequest — room.chat payload.
type ChatMessageRequest struct {
	Content string `json:"content"`
}

// ChatReactionRequest — room.chat.reaction payload.
type ChatReactionRequest struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// AddPlaylistItemRequest — room.playlist.add and room.playlist.playNow payload.
type AddPlaylistItemRequest struct {
	VideoURL string `json:"videoUrl"`
}

// BulkAddPlaylistRequest — room.playlist.add-bulk payload.
type BulkAddPlaylistRequest struct {
	VideoURLs []string `json:"videoUrls"`
}

// RemovePlaylistItemRequest — room.playlist.remove payload.
type RemovePlaylistItemRequest struct {
	ItemID string `json:"itemId"`
}

// ReorderPlaylistRequest — room.playlist.reorder payload.
type ReorderPlaylistRequest struct {
	ItemID      string `json:"itemId"`
	NewPosition int    `json:"newPosition"`
}

// PlaybackModeRequest — room.playlist.mode payload.
type PlaybackModeRequest struct {
	Mode string `json:"mode"`
}

// WebRTCOfferMessage — room.webrtc.offer payload.
type WebRTCOfferMessage struct {
	TargetConnectionID string `json:"targetConnectionId"`
	SDP                string `json:"sdp"`
}

// WebRTCAnswerMessage — room.webrtc.answer payload.
type WebRTCAnswerMessage struct {
	TargetConnectionID string `json:"targetConnectionId"`
	SDP                string `json:"sdp"`
}

// WebRTCIceCandidateMessage — room.webrtc.ice payload.
type WebRTCIceCandidateMessage struct {
	TargetConnectionID string  `json:"targetConnectionId"`
	Candidate          string  `json:"candidate"`
	SdpMid             *string `json:"sdpMid,omitempty"`
	SdpMLineIndex      *int    `json:"sdpMLineIndex,omitempty"`
}

// CameraStateRequest — room.webrtc.camera-state payload.
type CameraStateRequest struct {
	Enabled bool `json:"enabled"`
}

// ParticipantMessage is one roster entry inside a room-state broadcast.
type ParticipantMessage struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	IsHost       bool   `json:"isHost"`
	ConnectionID string `json:"connectionId"`
}

// RoomStateMessage is the full room snapshot broadcast on the room topic.
// CurrentTimeSeconds is the drift-corrected expected position, not the raw
// stored value.
type RoomStateMessage struct {
	RoomCode           string               `json:"roomCode"`
	CurrentVideoURL    *string              `json:"videoUrl"`
	CurrentTimeSeconds float64              `json:"currentTimeSeconds"`
	IsPlaying          bool                 `json:"isPlaying"`
	PlaybackMode       string               `json:"playbackMode"`
	Participants       []ParticipantMessage `json:"participants"`
}

// SessionInfoMessage tells a joining client its own connection id, needed for
// WebRTC signaling.
type SessionInfoMessage struct {
	ConnectionID string `json:"connectionId"`
}

// Correction types delivered on the sync-correction queue.
const (
	CorrectionSeek       = "SEEK"
	CorrectionRateAdjust = "RATE_ADJUST"
	CorrectionRateReset  = "RATE_RESET"
)

// SyncCorrectionMessage instructs a single client how to rejoin the shared
// timeline.
type SyncCorrectionMessage struct {
	TargetTimeSeconds float64 `json:"targetTimeSeconds"`
	PlaybackRate      float64 `json:"playbackRate"`
	CorrectionType    string  `json:"correctionType"`
}

// SeekCorrection jumps the client to the expected position.
func SeekCorrection(targetTime float64) SyncCorrectionMessage {
	return SyncCorrectionMessage{TargetTimeSeconds: targetTime, PlaybackRate: 1.0, CorrectionType: CorrectionSeek}
}

// RateAdjustCorrection nudges the client back via playback rate.
func RateAdjustCorrection(targetTime, rate float64) SyncCorrectionMessage {
	return SyncCorrectionMessage{TargetTimeSeconds: targetTime, PlaybackRate: rate, CorrectionType: CorrectionRateAdjust}
}

// ResetRateCorrection restores normal playback rate.
func ResetRateCorrection() SyncCorrectionMessage {
	return SyncCorrectionMessage{PlaybackRate: 1.0, CorrectionType: CorrectionRateReset}
}

// WebRTCSignalEnvelope is the relayed signal delivered on the target's
// webrtc-signal queue, tagged with the sender's connection id.
type WebRTCSignalEnvelope struct {
	Type             string  `json:"type"` // offer, answer, ice-candidate
	FromConnectionID string  `json:"fromConnectionId"`
	SDP              string  `json:"sdp,omitempty"`
	Candidate        string  `json:"candidate,omitempty"`
	SdpMid           *string `json:"sdpMid,omitempty"`
	SdpMLineIndex    *int    `json:"sdpMLineIndex,omitempty"`
}

// OfferSignal builds the envelope for a relayed SDP offer.
func OfferSignal(from, sdp string) WebRTCSignalEnvelope {
	return WebRTCSignalEnvelope{Type: "offer", FromConnectionID: from, SDP: sdp}
}

// AnswerSignal builds the envelope for a relayed SDP answer.
func AnswerSignal(from, sdp string) WebRTCSignalEnvelope {
	return WebRTCSignalEnvelope{Type: "answer", FromConnectionID: from, SDP: sdp}
}

// IceCandidateSignal builds the envelope for a relayed ICE candidate.
func IceCandidateSignal(from, candidate string, sdpMid *string, sdpMLineIndex *int) WebRTCSignalEnvelope {
	return WebRTCSignalEnvelope{
		Type:             "ice-candidate",
		FromConnectionID: from,
		Candidate:        candidate,
		SdpMid:           sdpMid,
		SdpMLineIndex:    sdpMLineIndex,
	}
}

// CameraStateMessage is broadcast on the camera-state topic.
type CameraStateMessage struct {
	ConnectionID string `json:"connectionId"`
	Enabled      bool   `json:"enabled"`
}

// ErrorMessage is delivered on the per-connection errors queue, or broadcast
// to the room topic for informational rejections.
type ErrorMessage struct {
	Error string `json:"error"`
}

// ChatMessageResponse is the chat DTO broadcast on the chat topic and returned
// in history.
type ChatMessageResponse struct {
	ID        string      `json:"id"`
	Nickname  string      `json:"nickname"`
	Content   string      `json:"content"`
	Reactions ReactionMap `json:"reactions"`
	SentAt    time.Time   `json:"sentAt"`
}

// PlaylistItemResponse is the playlist entry DTO.
type PlaylistItemResponse struct {
	ID              string    `json:"id"`
	VideoURL        string    `json:"videoUrl"`
	Title           string    `json:"title"`
	ThumbnailURL    string    `json:"thumbnailUrl"`
	DurationSeconds int       `json:"durationSeconds"`
	AddedBy         string    `json:"addedBy"`
	Position        int       `json:"position"`
	AddedAt         time.Time `json:"addedAt"`
}

// PlaylistResponse is the ordered playlist snapshot.
type PlaylistResponse struct {
	Items []PlaylistItemResponse `json:"items"`
}

// CreateRoomRequest is the body for POST /api/rooms.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	ControlMode string `json:"controlMode"`
}

// RoomResponse is the REST view of a room.
type RoomResponse struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Name             string    `json:"name"`
	ControlMode      string    `json:"controlMode"`
	ParticipantCount int       `json:"participantCount"`
	CreatedAt        time.Time `json:"createdAt"`
}
