package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress for batch evaluations.
type ProgressReporter interface {
	// Start resets the reporter for total messages.
	Start(total int64)
	// Record counts one finished message under its decision label. An
	// empty label counts as a failure.
	Record(label string)
	// Finish draws the final line and the per-decision tally.
	Finish()
}

// BarProgress draws a single-line bar and tallies decisions.
type BarProgress struct {
	mu      sync.Mutex
	w       io.Writer
	total   int64
	done    int64
	failed  int64
	tally   map[string]int64
	started time.Time
	now     func() time.Time
}

const barWidth = 30

// NewProgressReporter writes to w, or to stderr when w is nil.
func NewProgressReporter(w io.Writer) *BarProgress {
	if w == nil {
		w = os.Stderr
	}
	return &BarProgress{w: w, tally: make(map[string]int64), now: time.Now}
}

// Start implements ProgressReporter.
func (p *BarProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.done, p.failed = 0, 0
	clear(p.tally)
	p.started = p.now()
	p.draw()
}

// Record implements ProgressReporter. Records past total are ignored.
func (p *BarProgress) Record(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done >= p.total {
		return
	}
	p.done++
	if label == "" {
		p.failed++
	} else {
		p.tally[label]++
	}
	p.draw()
}

// Finish implements ProgressReporter.
func (p *BarProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.total == 0 {
		return
	}
	p.draw()
	fmt.Fprintf(p.w, "\n%s\n", p.summary())
}

func (p *BarProgress) draw() {
	if p.total == 0 {
		return
	}
	filled := int(int64(barWidth) * p.done / p.total)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	rate := 0.0
	if elapsed := p.now().Sub(p.started).Seconds(); elapsed > 0 {
		rate = float64(p.done) / elapsed
	}
	fmt.Fprintf(p.w, "\rEvaluating: [%s] (%d/%d) %.1f msg/s", bar, p.done, p.total, rate)
}

// summary lists decisions alphabetically, failures last.
func (p *BarProgress) summary() string {
	labels := make([]string, 0, len(p.tally))
	for l := range p.tally {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	parts := make([]string, 0, len(labels)+1)
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s %d", l, p.tally[l]))
	}
	if p.failed > 0 {
		parts = append(parts, fmt.Sprintf("failed %d", p.failed))
	}
	return "Decisions: " + strings.Join(parts, ", ")
}
