// Package scanning orchestrates the execution of registered checks against a
// target environment and assembles their results into a gated Report.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahrav/buenobot/internal/domain/scanning"
)

// Env describes the target a check runs against.
type Env struct {
	ScanID      string
	WorkDir     string
	Environment string
	BaseURL     string
	Commit      string
}

// Check is a single independent verification. Implementations must be safe
// to call once per scan; a returned error is recorded as an error-status
// result and never aborts the scan.
type Check interface {
	Execute(ctx context.Context, env Env) (scanning.CheckResult, error)
}

// CheckFunc adapts a function to the Check interface.
type CheckFunc func(ctx context.Context, env Env) (scanning.CheckResult, error)

// Execute calls f.
func (f CheckFunc) Execute(ctx context.Context, env Env) (scanning.CheckResult, error) {
	return f(ctx, env)
}

// Factory creates a fresh Check for one scan.
type Factory func() Check

// Registration binds a check to its identity and profile membership.
type Registration struct {
	ID       string
	Name     string
	Category string
	// Quick marks the check as part of the quick profile. The full profile
	// always includes quick checks.
	Quick   bool
	Full    bool
	Factory Factory
}

// Profile selects a subset of registered checks.
type Profile string

const (
	ProfileQuick Profile = "quick"
	ProfileFull  Profile = "full"
)

// ErrUnknownProfile is returned for profile names other than quick and full.
var ErrUnknownProfile = errors.New("unknown profile")

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case ProfileQuick, ProfileFull:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
	}
}

func (r Registration) inProfile(p Profile) bool {
	switch p {
	case ProfileQuick:
		return r.Quick
	case ProfileFull:
		return r.Quick || r.Full
	default:
		return false
	}
}
