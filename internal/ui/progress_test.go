package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"flakeview/internal/deployer"
	"flakeview/internal/pipeline"
)

var _ deployer.Observer = (*ProgressBar)(nil)

func TestProgressBarCompleted(t *testing.T) {
	buf := capture(t)

	views := []pipeline.ViewDefinition{{Name: "flight_emissions"}, {Name: "flight_punctuality"}}
	pb := NewProgressBar(len(views), false)

	for i, v := range views {
		pb.ViewStarted(i, len(views), v)
		pb.ViewFinished(i, len(views), v, 120*time.Millisecond, nil)
	}
	pb.Finish()

	out := buf.String()
	for _, want := range []string{"[1/2] flight_emissions", "[2/2] flight_punctuality", "✓ flight_emissions (120ms)", "2 views applied"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if pb.successCount != 2 || pb.failureCount != 0 {
		t.Errorf("counts = %d/%d, want 2/0", pb.successCount, pb.failureCount)
	}
}

func TestProgressBarHalted(t *testing.T) {
	buf := capture(t)

	views := []pipeline.ViewDefinition{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	pb := NewProgressBar(len(views), false)

	pb.ViewStarted(0, 3, views[0])
	pb.ViewFinished(0, 3, views[0], time.Millisecond, nil)
	pb.ViewStarted(1, 3, views[1])
	pb.ViewFinished(1, 3, views[1], time.Millisecond, fmt.Errorf("Object 'A' does not exist\nline 2"))
	pb.Finish()

	out := buf.String()
	for _, want := range []string{"✗ b", "Object 'A' does not exist", "Deployment stopped", "1 applied", "1 failed", "1 not attempted"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "line 2") {
		t.Error("only the first line of the error is shown")
	}
}

func TestProgressBarDryRun(t *testing.T) {
	buf := capture(t)

	v := pipeline.ViewDefinition{Name: "a"}
	pb := NewProgressBar(1, true)
	pb.ViewStarted(0, 1, v)
	pb.ViewFinished(0, 1, v, 0, nil)
	pb.Finish()

	out := buf.String()
	if !strings.Contains(out, "a (dry run)") || !strings.Contains(out, "1 views planned") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		done, total int
		filled      int
	}{
		{0, 4, 0},
		{2, 4, 10},
		{4, 4, 20},
		{1, 0, 0},
	}
	for _, tt := range tests {
		got := bar(tt.done, tt.total)
		if n := strings.Count(got, "█"); n != tt.filled {
			t.Errorf("bar(%d, %d) filled %d, want %d", tt.done, tt.total, n, tt.filled)
		}
		if n := strings.Count(got, "█") + strings.Count(got, "░"); n != 20 {
			t.Errorf("bar(%d, %d) width %d, want 20", tt.done, tt.total, n)
		}
	}
}

func TestSpinnerWithoutTerminal(t *testing.T) {
	buf := capture(t)

	s := NewSpinner("Connecting to Snowflake")
	s.Start()
	s.Stop(true, "Connected")
	s.Stop(true, "ignored")

	out := buf.String()
	if !strings.Contains(out, "Connecting to Snowflake") || !strings.Contains(out, "✓ Connected") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "ignored") {
		t.Error("second Stop is a no-op")
	}
}

func TestSpinnerWithTerminal(t *testing.T) {
	buf := capture(t)
	supportsColor = true

	s := NewSpinner("Working")
	s.Start()
	time.Sleep(150 * time.Millisecond)
	s.Stop(false, "Failed")

	if out := buf.String(); !strings.Contains(out, "Failed") {
		t.Errorf("unexpected output:\n%q", out)
	}
}
