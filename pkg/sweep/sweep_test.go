package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"mercator-hq/ascent/pkg/store"
	"mercator-hq/ascent/pkg/tier"
	"mercator-hq/ascent/pkg/trigger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturePublisher struct {
	mu     sync.Mutex
	ids    []int64
	failOn map[int64]bool
}

func (p *capturePublisher) Publish(_ context.Context, msg trigger.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[msg.DistributorID] {
		return errors.New("broker down")
	}
	if msg.Source != trigger.SourceSweep {
		return errors.New("unexpected source " + msg.Source)
	}
	p.ids = append(p.ids, msg.DistributorID)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) sorted() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]int64(nil), p.ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type countingRecorder struct {
	mu      sync.Mutex
	runs    int
	skipped int
	last    Report
}

func (r *countingRecorder) RecordSweep(dispatched, failed int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.last = Report{Dispatched: dispatched, Failed: failed, Elapsed: elapsed}
}

func (r *countingRecorder) RecordSweepSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

// seed creates distributors 1..n; even IDs on tier 2, odd on tier 1.
func seed(t *testing.T, n int) *store.Memory {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory(nil)
	for _, tr := range []tier.Tier{{ID: 1, Rank: 1, Name: "Member"}, {ID: 2, Rank: 2, Name: "Agent"}} {
		if err := st.SaveTier(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}
	for id := int64(1); id <= int64(n); id++ {
		tierID := int64(1)
		if id%2 == 0 {
			tierID = 2
		}
		if err := st.CreateDistributor(ctx, id, tierID); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func TestSweeper_Run(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		batchSize int
		want      int
		wantFirst int64
	}{
		{"all distributors in several pages", Request{}, 3, 10, 1},
		{"single page", Request{}, 100, 10, 1},
		{"tier filter", Request{TierID: 2}, 2, 5, 2},
		{"limit", Request{Limit: 4}, 3, 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &capturePublisher{}
			rec := &countingRecorder{}
			s := New(seed(t, 10), pub, Options{BatchSize: tt.batchSize, Concurrency: 2, Recorder: rec, Logger: discardLogger()})

			report, err := s.Run(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if report.Dispatched != tt.want || report.Failed != 0 {
				t.Errorf("expected %d dispatched, got %+v", tt.want, report)
			}
			ids := pub.sorted()
			if len(ids) != tt.want || ids[0] != tt.wantFirst {
				t.Errorf("unexpected ids %v", ids)
			}
			for i := 1; i < len(ids); i++ {
				if ids[i] == ids[i-1] {
					t.Errorf("distributor %d dispatched twice", ids[i])
				}
			}
			if rec.runs != 1 || rec.last.Dispatched != tt.want {
				t.Errorf("unexpected recorder state %+v", rec)
			}
		})
	}
}

func TestSweeper_CountsFailures(t *testing.T) {
	pub := &capturePublisher{failOn: map[int64]bool{3: true, 7: true}}
	s := New(seed(t, 10), pub, Options{BatchSize: 4, Logger: discardLogger()})

	report, err := s.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Dispatched != 8 || report.Failed != 2 {
		t.Errorf("expected 8 dispatched and 2 failed, got %+v", report)
	}
}

func TestSweeper_Debounce(t *testing.T) {
	rec := &countingRecorder{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(seed(t, 2), &capturePublisher{}, Options{
		Debounce: time.Hour,
		Recorder: rec,
		Logger:   discardLogger(),
		Now:      func() time.Time { return now },
	})

	if _, err := s.Run(context.Background(), Request{}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	now = now.Add(59 * time.Minute)
	if _, err := s.Run(context.Background(), Request{}); !errors.Is(err, ErrDebounced) {
		t.Fatalf("expected ErrDebounced inside the window, got %v", err)
	}
	if rec.skipped != 1 || rec.runs != 1 {
		t.Errorf("expected 1 run and 1 skip, got %+v", rec)
	}

	now = now.Add(2 * time.Minute)
	report, err := s.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run() after the window error = %v", err)
	}
	if report.Dispatched != 2 {
		t.Errorf("expected 2 dispatched after the window, got %+v", report)
	}
	if rec.skipped != 1 || rec.runs != 2 {
		t.Errorf("expected 2 runs and 1 skip, got %+v", rec)
	}
}

type failingStore struct{ tier.DistributorStore }

func (failingStore) ListDistributorIDs(context.Context, tier.DistributorQuery) ([]int64, error) {
	return nil, errors.New("connection reset")
}

func TestSweeper_ListError(t *testing.T) {
	s := New(failingStore{}, &capturePublisher{}, Options{Logger: discardLogger()})
	if _, err := s.Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected list error")
	}
}

func TestSweeper_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(seed(t, 3), &capturePublisher{}, Options{Logger: discardLogger()})
	if _, err := s.Run(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantErr     bool
		wantRunning bool
	}{
		{"daily", "0 2 * * *", false, true},
		{"every five minutes", "*/5 * * * *", false, true},
		{"invalid", "not a schedule", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(seed(t, 1), &capturePublisher{}, Options{Logger: discardLogger()})
			sched := NewScheduler(s, tt.schedule, Request{}, discardLogger())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := sched.Start(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			if sched.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", sched.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && sched.NextRun() == nil {
				t.Error("NextRun() returned nil for running scheduler")
			}

			sched.Stop()
			if sched.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	s := New(seed(t, 1), &capturePublisher{}, Options{Logger: discardLogger()})
	sched := NewScheduler(s, "0 2 * * *", Request{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for sched.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sched.IsRunning() {
		t.Error("scheduler still running after context cancelled")
	}
}
