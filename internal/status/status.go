// Package status manages the per-run log directory and the machine-readable
// run_status.json record that downstream schedulers consume.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jobdesk/naukri-refresh/internal/login"
)

// dirLayout names run directories like "29-08-26_09-30_AM" so an operator
// scanning the log tree can find a run by eye.
const dirLayout = "02-01-06_03-04_PM"

// statusFileName is fixed; schedulers look for it at the run directory root.
const statusFileName = "run_status.json"

// Record is the terminal status of one run.
type Record struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// statusFor maps a login outcome onto the coarse status vocabulary the
// schedulers understand.
func statusFor(kind login.OutcomeKind) string {
	switch kind {
	case login.OutcomeSuccess:
		return "SUCCESS"
	case login.OutcomeRateLimited:
		return "RATE_LIMITED"
	case login.OutcomeOtpTimeout:
		return "OTP_TIMEOUT"
	case login.OutcomeOtpRejected:
		return "OTP_REJECTED"
	case login.OutcomeVerificationFailed:
		return "LOGIN_FAILED"
	default:
		return "FAILURE"
	}
}

// RunDir is one run's directory under the configured base. Screenshots and
// the status record both land here.
type RunDir struct {
	path string
}

// NewRunDir creates the timestamped directory for this run.
func NewRunDir(base string, now time.Time) (*RunDir, error) {
	path := filepath.Join(base, now.Format(dirLayout))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &RunDir{path: path}, nil
}

// Path returns the run directory path.
func (d *RunDir) Path() string { return d.path }

// WriteOutcome records the terminal outcome of the run. The details carry the
// last page URL and title plus any extra context the caller supplies.
func (d *RunDir) WriteOutcome(outcome login.Outcome, now time.Time, extra map[string]string) error {
	details := map[string]string{}
	if outcome.URL != "" {
		details["url"] = outcome.URL
	}
	if outcome.Title != "" {
		details["title"] = outcome.Title
	}
	for k, v := range extra {
		details[k] = v
	}
	return d.write(Record{
		Status:    statusFor(outcome.Kind),
		Message:   outcome.Detail,
		Timestamp: now.Format(time.RFC3339),
		Details:   details,
	})
}

// WriteFailure records a run that died before producing an outcome, for
// example on a configuration or browser startup error.
func (d *RunDir) WriteFailure(message string, now time.Time) error {
	return d.write(Record{
		Status:    "FAILURE",
		Message:   message,
		Timestamp: now.Format(time.RFC3339),
	})
}

func (d *RunDir) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status record: %w", err)
	}
	path := filepath.Join(d.path, statusFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write status record: %w", err)
	}
	return nil
}
