// Package history persists a JSON record of every deployment so a failed run
// can be resumed and past runs listed.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"flakeview/internal/deployer"
	"flakeview/internal/pipeline"
	"flakeview/pkg/errors"
)

// DeploymentState represents the state of a deployment
type DeploymentState string

const (
	StateCompleted DeploymentState = "completed"
	StateFailed    DeploymentState = "failed"
	StateCancelled DeploymentState = "cancelled"
)

// Scope identifies where a pipeline was deployed.
type Scope struct {
	Target   string `json:"target"`
	Account  string `json:"account,omitempty"`
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema,omitempty"`
}

func (s Scope) key() string {
	return s.Target + "/" + s.Account + "/" + s.Database + "/" + s.Schema
}

// Record is one deployment run.
type Record struct {
	ID           string          `json:"id"`
	Scope        Scope           `json:"scope"`
	Pipeline     string          `json:"pipeline"`
	Commit       string          `json:"commit,omitempty"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	State        DeploymentState `json:"state"`
	Views        []ViewExecution `json:"views"`
	Pending      []string        `json:"pending,omitempty"`
	FailedView   string          `json:"failed_view,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	PreviousID   string          `json:"previous_id,omitempty"`
}

// ViewExecution is the outcome of one view in a run.
type ViewExecution struct {
	Name         string        `json:"name"`
	Order        int           `json:"order"`
	Target       string        `json:"target"`
	Checksum     string        `json:"checksum"`
	Success      bool          `json:"success"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// NewRecord converts a finished deployment into a history record. p is the
// pipeline that was deployed; it supplies the statement checksums.
func NewRecord(report *deployer.Report, p pipeline.Pipeline, scope Scope, source string, runErr error) *Record {
	record := &Record{
		ID:        report.ID,
		Scope:     scope,
		Pipeline:  source,
		StartTime: report.Started,
		Pending:   append([]string(nil), report.Pending...),
		State:     StateCompleted,
	}
	if !report.Finished.IsZero() {
		end := report.Finished
		record.EndTime = &end
	}

	for _, res := range report.Results {
		exec := ViewExecution{
			Name:     res.Name,
			Order:    res.Index + 1,
			Target:   res.Target,
			Success:  res.Err == nil,
			Duration: res.Duration,
		}
		if v, ok := p.Lookup(res.Name); ok {
			exec.Checksum = Checksum(v.Query)
		}
		if res.Err != nil {
			exec.ErrorMessage = res.Err.Error()
			record.FailedView = res.Name
		}
		record.Views = append(record.Views, exec)
	}

	if runErr != nil {
		record.State = StateFailed
		code := errors.GetErrorCode(runErr)
		if code == errors.ErrCodeCancelled {
			record.State = StateCancelled
		}
		record.ErrorCode = string(code)
		record.ErrorMessage = rootMessage(runErr)
	}

	return record
}

// ResumeFrom returns the view a follow-up run should start from.
func (r *Record) ResumeFrom() (string, bool) {
	switch {
	case r.State == StateCompleted:
		return "", false
	case r.FailedView != "":
		return r.FailedView, true
	case len(r.Pending) > 0:
		return r.Pending[0], true
	default:
		return "", false
	}
}

// Duration is the wall time of the run.
func (r *Record) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Checksum fingerprints a statement so reruns can tell which views changed.
func Checksum(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

func rootMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
