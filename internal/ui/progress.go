package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"flakeview/internal/pipeline"
)

// ProgressBar reports deployment progress one view per line. It implements
// deployer.Observer.
type ProgressBar struct {
	total     int
	current   int
	startTime time.Time
	dryRun    bool
	mu        sync.Mutex

	successCount int
	failureCount int
	currentView  string
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total int, dryRun bool) *ProgressBar {
	return &ProgressBar{
		total:     total,
		startTime: time.Now(),
		dryRun:    dryRun,
	}
}

// ViewStarted prints the view about to run.
func (p *ProgressBar) ViewStarted(i, total int, v pipeline.ViewDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = i + 1
	p.currentView = v.Name

	fmt.Fprintf(Output, "%s %s [%d/%d] %s\n",
		ColorProgress("►"),
		bar(p.current-1, p.total),
		p.current,
		p.total,
		ColorBold(truncate(v.Name, 40)),
	)
}

// ViewFinished prints the outcome of the view.
func (p *ProgressBar) ViewFinished(i, total int, v pipeline.ViewDefinition, d time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case err != nil:
		p.failureCount++
		fmt.Fprintf(Output, "  %s %s\n", ColorError("✗"), v.Name)
		fmt.Fprintf(Output, "    %s\n", ColorError(firstLine(rootCause(err))))
	case p.dryRun:
		p.successCount++
		fmt.Fprintf(Output, "  %s %s %s\n", ColorDim("○"), v.Name, ColorDim("(dry run)"))
	default:
		p.successCount++
		fmt.Fprintf(Output, "  %s %s (%s)\n", ColorSuccess("✓"), v.Name, ColorDim(FormatDuration(d)))
	}
}

// Finish prints the totals.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.startTime)
	verb := "applied"
	if p.dryRun {
		verb = "planned"
	}

	if p.failureCount == 0 && p.successCount == p.total {
		fmt.Fprintf(Output, "\n%s %d views %s in %s\n", ColorSuccess("✓"), p.successCount, verb, FormatDuration(elapsed))
		return
	}

	fmt.Fprintf(Output, "\n%s Deployment stopped after %s\n", ColorError("✗"), FormatDuration(elapsed))
	fmt.Fprintf(Output, "  %s %d %s\n", ColorSuccess("✓"), p.successCount, verb)
	if p.failureCount > 0 {
		fmt.Fprintf(Output, "  %s %d failed\n", ColorError("✗"), p.failureCount)
	}
	if pending := p.total - p.successCount - p.failureCount; pending > 0 {
		fmt.Fprintf(Output, "  %s %d not attempted\n", ColorDim("○"), pending)
	}
}

func bar(done, total int) string {
	const width = 20
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := done * width / total
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Spinner represents an animated spinner for long operations
type Spinner struct {
	frames  []string
	current int
	message string
	stop    chan bool
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(message string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message: message,
		stop:    make(chan bool),
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation. Without a terminal it prints the
// message once.
func (s *Spinner) Start() {
	if !supportsColor {
		fmt.Fprintf(Output, "%s %s\n", ColorProgress("…"), s.message)
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Fprintf(Output, "\r%s %s",
						ColorProgress(s.frames[s.current]),
						s.message,
					)
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner and prints the final status. It must follow Start.
func (s *Spinner) Stop(success bool, message string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	if supportsColor {
		fmt.Fprint(Output, "\r\033[K")
	}

	if success {
		fmt.Fprintf(Output, "%s %s\n", ColorSuccess("✓"), message)
	} else {
		fmt.Fprintf(Output, "%s %s\n", ColorError("✗"), message)
	}
}
