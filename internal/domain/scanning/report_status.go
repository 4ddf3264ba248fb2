package scanning

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a report status change violates the
// report lifecycle.
var ErrInvalidTransition = errors.New("invalid report status transition")

// ReportStatus represents where a scan report is in its lifecycle.
type ReportStatus string

const (
	// ReportStatusRunning indicates checks are still executing.
	ReportStatusRunning ReportStatus = "RUNNING"

	// ReportStatusDone indicates every selected check ran and the gate was computed.
	ReportStatusDone ReportStatus = "DONE"

	// ReportStatusCancelled indicates the scan observed a cancel request between checks.
	ReportStatusCancelled ReportStatus = "CANCELLED"

	// ReportStatusFailed indicates an error escaped per-check isolation.
	ReportStatusFailed ReportStatus = "FAILED"
)

func (s ReportStatus) String() string { return string(s) }

// Terminal reports whether no further transitions are allowed.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusDone || s == ReportStatusCancelled || s == ReportStatusFailed
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s ReportStatus) ValidateTransition(target ReportStatus) error {
	if s == ReportStatusRunning && target.Terminal() {
		return nil
	}
	return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, s, target)
}

// GateStatus is the release decision.
type GateStatus string

const (
	GatePass GateStatus = "PASS"
	GateWarn GateStatus = "WARN"
	GateFail GateStatus = "FAIL"
)

func (g GateStatus) String() string { return string(g) }
