package scanning

import "time"

// ProgressPhase identifies what a progress event describes.
type ProgressPhase string

const (
	PhaseScanStarted   ProgressPhase = "scan_started"
	PhaseCheckStarted  ProgressPhase = "check_started"
	PhaseCheckFinished ProgressPhase = "check_finished"
	PhaseScanFinished  ProgressPhase = "scan_finished"
)

// Progress is a point-in-time update emitted by the Runner.
type Progress struct {
	ScanID    string        `json:"scan_id"`
	Phase     ProgressPhase `json:"phase"`
	CheckID   string        `json:"check_id,omitempty"`
	Index     int           `json:"index"`
	Total     int           `json:"total"`
	Status    string        `json:"status,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
