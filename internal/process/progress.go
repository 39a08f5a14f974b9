package process

// Progress snapshots returned by Process.Progress. Work reports a snapshot
// through its ReportFunc; the process stamps the current Status on read.

// StatusProgress is the plain snapshot used when work has reported nothing.
type StatusProgress struct {
	Status Status `json:"Status"`
}

// AutoFocusProgress is reported by AutoFocus work.
type AutoFocusProgress struct {
	Status     Status  `json:"Status"`
	Step       int     `json:"Step"`
	TotalSteps int     `json:"TotalSteps"`
	Position   int     `json:"Position"`
	HFR        float64 `json:"HFR"`
	Filter     string  `json:"Filter,omitempty"`
}

// Meridian flip phases, in order.
const (
	FlipPhaseStopGuiding   = "StopGuiding"
	FlipPhaseFlipping      = "Flipping"
	FlipPhaseSettling      = "Settling"
	FlipPhaseRecentering   = "Recentering"
	FlipPhaseResumeGuiding = "ResumeGuiding"
)

// FlipPhases lists the meridian flip phases in execution order.
var FlipPhases = []string{
	FlipPhaseStopGuiding,
	FlipPhaseFlipping,
	FlipPhaseSettling,
	FlipPhaseRecentering,
	FlipPhaseResumeGuiding,
}

// MeridianFlipProgress is reported by MeridianFlip work.
type MeridianFlipProgress struct {
	Status           Status  `json:"Status"`
	Phase            string  `json:"Phase"`
	RemainingSeconds float64 `json:"RemainingSeconds"`
}

// statusStamper is implemented by snapshots that carry a Status field.
type statusStamper interface {
	withStatus(Status) any
}

func (p AutoFocusProgress) withStatus(s Status) any {
	p.Status = s
	return p
}

func (p MeridianFlipProgress) withStatus(s Status) any {
	p.Status = s
	return p
}
