package service

import (
	"math"
	"time"

	"github.com/PhilippeSteinbach/WatchParty/internal/model"
)

// Drift thresholds in seconds and the rates used to reel a client back in.
// Both seek brackets snap to the expected position; they are kept separate so
// the policy reads the same as the client contract.
const (
	driftSeekHard   = 5.0
	driftSeekSoft   = 2.0
	driftRateAdjust = 0.5

	rateCatchUp  = 1.05 // client behind the timeline
	rateSlowDown = 0.95 // client ahead of the timeline
)

// Synchronizer computes the server-side expected playback position and the
// correction, if any, for a client's reported position.
type Synchronizer struct {
	now func() time.Time
}

// NewSynchronizer creates a synchronizer using the wall clock.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{now: time.Now}
}

// ExpectedPosition extrapolates the room's playback position to now. Paused
// rooms and rooms that never had a playback mutation return the stored value.
func (s *Synchronizer) ExpectedPosition(room *model.Room) float64 {
	if !room.IsPlaying || room.StateUpdatedAt == nil {
		return room.CurrentTimeSeconds
	}
	elapsed := s.now().Sub(*room.StateUpdatedAt).Seconds()
	return room.CurrentTimeSeconds + math.Max(0, elapsed)
}

// Correction evaluates a client's reported position against the expected one
// and returns the targeted correction to send, or nil when the client is
// within tolerance or the room is not actively playing a video.
func (s *Synchronizer) Correction(room *model.Room, reportedTime float64) *model.SyncCorrectionMessage {
	if !room.IsPlaying || room.CurrentVideoURL == nil {
		return nil
	}

	expected := s.ExpectedPosition(room)
	drift := reportedTime - expected
	absDrift := math.Abs(drift)

	var correction model.SyncCorrectionMessage
	switch {
	case absDrift >= driftSeekHard:
		correction = model.SeekCorrection(expected)
	case absDrift >= driftSeekSoft:
		correction = model.SeekCorrection(expected)
	case absDrift >= driftRateAdjust:
		rate := rateSlowDown
		if drift < 0 {
			rate = rateCatchUp
		}
		correction = model.RateAdjustCorrection(expected, rate)
	default:
		return nil
	}
	return &correction
}
