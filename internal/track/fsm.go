package track

import "github.com/example/face-attendance/internal/gallery"

// Observation is one frame's evidence for a track.
type Observation struct {
	Match         gallery.Match
	LivenessScore float64
	LivenessPass  bool
}

// FSMConfig tunes the confirmation state machine.
type FSMConfig struct {
	// MatchThreshold is the minimum confidence for a frame to count
	// toward confirmation.
	MatchThreshold float64
	// FramesRequired is the confirmation window length.
	FramesRequired int
	// LivenessMaxFails is the consecutive-failure budget before a track
	// is forced to Rejected.
	LivenessMaxFails int
	// CooldownFrames is how long a rejected track stays frozen before a
	// passing-liveness frame may reset it to Detected.
	CooldownFrames int
}

// FSM advances tracks through Detected -> Verifying -> Confirmed, with
// Rejected as the sustained-liveness-failure sink. Confirmed is
// terminal for the session: the person has already been recorded, so
// later identity drift on the same spatial track changes nothing.
type FSM struct {
	cfg FSMConfig
}

// NewFSM builds a state machine with the given tuning.
func NewFSM(cfg FSMConfig) *FSM {
	if cfg.FramesRequired < 1 {
		cfg.FramesRequired = 1
	}
	if cfg.LivenessMaxFails < 1 {
		cfg.LivenessMaxFails = 1
	}
	return &FSM{cfg: cfg}
}

// FramesRequired exposes the confirmation window length for reporting.
func (f *FSM) FramesRequired() int {
	return f.cfg.FramesRequired
}

// Advance applies one frame of evidence to a track and reports whether
// the track transitioned to Confirmed on this exact frame.
func (f *FSM) Advance(tr *TrackedFace, obs Observation, frameIndex int) bool {
	tr.Confidences.Push(obs.Match.Confidence)
	tr.LivenessScore = obs.LivenessScore

	// An identity switch between consecutive frames is contaminated
	// evidence: restart counting. Confirmed tracks are left alone.
	switched := tr.State != StateConfirmed &&
		tr.IdentityID != 0 && obs.Match.Known && obs.Match.IdentityID != tr.IdentityID
	if switched {
		tr.FramesConfirmed = 0
		if tr.State == StateVerifying {
			tr.State = StateDetected
		}
	}

	if tr.State != StateConfirmed {
		if obs.Match.Known {
			tr.IdentityID = obs.Match.IdentityID
			tr.Name = obs.Match.Name
		} else {
			tr.IdentityID = 0
			tr.Name = gallery.UnknownName
		}
	}

	if obs.LivenessPass {
		tr.LivenessFails = 0
	} else {
		tr.LivenessFails++
	}

	if tr.State == StateConfirmed {
		return false
	}

	// Sustained liveness failure overrides everything short of Confirmed.
	if tr.LivenessFails >= f.cfg.LivenessMaxFails {
		if tr.State != StateRejected {
			tr.State = StateRejected
			tr.RejectedAt = frameIndex
		}
		tr.FramesConfirmed = 0
		return false
	}

	switch tr.State {
	case StateRejected:
		if obs.LivenessPass && frameIndex-tr.RejectedAt >= f.cfg.CooldownFrames {
			tr.State = StateDetected
		}
		return false

	case StateDetected:
		if obs.Match.Known && obs.Match.Confidence >= f.cfg.MatchThreshold && obs.LivenessPass {
			tr.State = StateVerifying
			tr.FramesConfirmed = 1
			if tr.FramesConfirmed >= f.cfg.FramesRequired {
				tr.State = StateConfirmed
				return true
			}
		}
		return false

	case StateVerifying:
		if obs.Match.Known && obs.Match.Confidence >= f.cfg.MatchThreshold && obs.LivenessPass {
			tr.FramesConfirmed++
			if tr.FramesConfirmed >= f.cfg.FramesRequired {
				tr.State = StateConfirmed
				return true
			}
			return false
		}
		tr.State = StateDetected
		tr.FramesConfirmed = 0
		return false

	default:
		return false
	}
}
