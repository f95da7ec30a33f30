package cli

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestBarProgress(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		labels []string
		want   []string
		absent []string
	}{
		{
			name:   "mixed decisions",
			total:  4,
			labels: []string{"passed", "reject", "", "passed"},
			want:   []string{"Evaluating:", "(2/4)", "(4/4)", "Decisions: passed 2, reject 1, failed 1"},
		},
		{
			name:   "all passed",
			total:  2,
			labels: []string{"passed", "passed"},
			want:   []string{"Decisions: passed 2"},
			absent: []string{"failed"},
		},
		{
			name:   "empty batch",
			total:  0,
			labels: []string{"passed"},
			absent: []string{"Evaluating:", "Decisions:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			p := NewProgressReporter(buf)

			p.Start(tt.total)
			for _, l := range tt.labels {
				p.Record(l)
			}
			p.Finish()

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output = %q, want %q", out, w)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(out, a) {
					t.Errorf("output = %q, should not contain %q", out, a)
				}
			}
		})
	}
}

func TestBarProgressRate(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewProgressReporter(buf)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	p.now = func() time.Time { return now }

	p.Start(4)
	now = start.Add(2 * time.Second)
	p.Record("passed")
	p.Record("passed")

	if !strings.Contains(buf.String(), "(2/4) 1.0 msg/s") {
		t.Errorf("output = %q, want 1.0 msg/s", buf.String())
	}
}

func TestBarProgressRecordCapped(t *testing.T) {
	p := NewProgressReporter(&bytes.Buffer{})
	p.Start(1)
	p.Record("passed")
	p.Record("reject")

	if p.done != 1 || p.tally["reject"] != 0 {
		t.Errorf("done = %d, tally = %v", p.done, p.tally)
	}
}

func TestBarProgressConcurrent(t *testing.T) {
	p := NewProgressReporter(&bytes.Buffer{})
	p.Start(100)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				p.Record("passed")
			}
		}()
	}
	wg.Wait()

	if p.done != 100 || p.tally["passed"] != 100 {
		t.Errorf("done = %d, tally = %v", p.done, p.tally)
	}
}
