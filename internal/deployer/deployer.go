// Package deployer applies a pipeline of view definitions to a target store,
// one statement at a time, stopping at the first failure.
package deployer

import (
	"context"
	"fmt"
	"time"

	"flakeview/internal/observability"
	"flakeview/internal/pipeline"
	"flakeview/pkg/errors"
	"github.com/google/uuid"
)

// Session is one live connection to the target store. ExecContext returns
// once the statement has completed.
type Session interface {
	ExecContext(ctx context.Context, query string) error
}

// Observer is notified around every view. i is zero based.
type Observer interface {
	ViewStarted(i, total int, v pipeline.ViewDefinition)
	ViewFinished(i, total int, v pipeline.ViewDefinition, d time.Duration, err error)
}

// Options controls a deployment.
type Options struct {
	// DryRun reports what would run without submitting anything.
	DryRun bool
	// Validate checks the pipeline before the first statement.
	Validate bool
	Observer Observer
	Logger   *observability.Logger
	// ID overrides the generated deployment ID.
	ID string
}

// Deployer runs pipelines on a session.
type Deployer struct {
	session Session
	opts    Options
	now     func() time.Time
}

// New creates a deployer. session may be nil for dry runs.
func New(session Session, opts Options) *Deployer {
	if opts.Logger == nil {
		opts.Logger = observability.GetDefaultLogger()
	}
	return &Deployer{
		session: session,
		opts:    opts,
		now:     time.Now,
	}
}

// Deploy submits each view in order and waits for it before the next one.
// The report is returned even when err is non-nil.
func (d *Deployer) Deploy(ctx context.Context, p pipeline.Pipeline) (*Report, error) {
	report := &Report{
		ID:      d.opts.ID,
		DryRun:  d.opts.DryRun,
		Started: d.now(),
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	log := d.opts.Logger.WithFields(map[string]interface{}{
		"deployment_id": report.ID,
		"views":         len(p),
		"dry_run":       d.opts.DryRun,
	})

	finish := func(err error) (*Report, error) {
		report.Finished = d.now()
		if err != nil {
			log.WithError(err).ErrorWithFields("Deployment stopped", map[string]interface{}{
				"applied": len(report.Applied()),
				"pending": len(report.Pending),
			})
		} else {
			log.InfoWithFields("Deployment finished", map[string]interface{}{
				"applied":  len(report.Applied()),
				"duration": report.Duration().String(),
			})
		}
		return report, err
	}

	if len(p) == 0 {
		return finish(errors.New(errors.ErrCodeValidationFailed, "Pipeline contains no views"))
	}

	if d.opts.Validate {
		if err := p.Validate(); err != nil {
			report.Pending = p.Names()
			return finish(err)
		}
	}

	if d.session == nil && !d.opts.DryRun {
		report.Pending = p.Names()
		return finish(errors.New(errors.ErrCodeInternal, "No session to deploy to"))
	}

	log.Info("Deployment started")
	total := len(p)

	for i, v := range p {
		if err := ctx.Err(); err != nil {
			report.Pending = p[i:].Names()
			return finish(cancelled(err, v, i, report))
		}

		if d.opts.Observer != nil {
			d.opts.Observer.ViewStarted(i, total, v)
		}

		result := ViewResult{Index: i, Name: v.Name, Target: v.Target()}
		viewLog := log.WithFields(map[string]interface{}{"view": v.Name, "position": i + 1})

		if d.opts.DryRun {
			result.Skipped = true
			viewLog.Debug("Dry run, statement not submitted")
		} else {
			start := d.now()
			result.Err = d.session.ExecContext(ctx, v.Query)
			result.Duration = d.now().Sub(start)
		}

		report.Results = append(report.Results, result)

		if d.opts.Observer != nil {
			d.opts.Observer.ViewFinished(i, total, v, result.Duration, result.Err)
		}

		if result.Err != nil {
			report.Pending = p[i+1:].Names()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(cancelled(result.Err, v, i, report))
			}
			return finish(halted(result.Err, v, i, total, report))
		}

		viewLog.InfoWithFields("View applied", map[string]interface{}{
			"duration_ms": result.Duration.Milliseconds(),
			"skipped":     result.Skipped,
		})
	}

	return finish(nil)
}

func halted(cause error, v pipeline.ViewDefinition, i, total int, report *Report) error {
	return errors.Wrap(cause, errors.ErrCodeDeploymentHalted,
		fmt.Sprintf("Deployment halted at view %q (%d of %d)", v.Name, i+1, total)).
		WithContext("view", v.Name).
		WithContext("position", i+1).
		WithContext("applied", report.Applied()).
		WithContext("pending", report.Pending).
		WithSuggestions(
			fmt.Sprintf("Fix view %q and re-run with --from %s", v.Name, v.Name),
			"Or re-run with --resume to continue from the failed view",
		)
}

func cancelled(cause error, v pipeline.ViewDefinition, i int, report *Report) error {
	return errors.Wrap(cause, errors.ErrCodeCancelled, "Deployment cancelled").
		WithContext("view", v.Name).
		WithContext("position", i+1).
		WithContext("applied", report.Applied()).
		WithContext("pending", report.Pending).
		WithSeverity(errors.SeverityWarning)
}
