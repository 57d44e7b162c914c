package deployer

import "time"

// ViewResult is the outcome of one view.
type ViewResult struct {
	Index    int
	Name     string
	Target   string
	Duration time.Duration
	Err      error
	Skipped  bool
}

// Report describes a deployment. Results holds every view that was
// attempted; Pending holds the views that never ran.
type Report struct {
	ID       string
	DryRun   bool
	Started  time.Time
	Finished time.Time
	Results  []ViewResult
	Pending  []string
}

// Applied returns the views whose statement completed.
func (r *Report) Applied() []string {
	var applied []string
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped {
			applied = append(applied, res.Name)
		}
	}
	return applied
}

// Failed returns the view that stopped the deployment, if any.
func (r *Report) Failed() *ViewResult {
	for i := range r.Results {
		if r.Results[i].Err != nil {
			return &r.Results[i]
		}
	}
	return nil
}

// Succeeded reports whether every view ran (or was skipped by a dry run).
func (r *Report) Succeeded() bool {
	return r.Failed() == nil && len(r.Pending) == 0 && len(r.Results) > 0
}

// Duration is the wall time of the deployment.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
