package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"mercator-hq/ascent/pkg/config"
	"mercator-hq/ascent/pkg/tier"
	"mercator-hq/ascent/pkg/upgrade"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type step struct {
	result *upgrade.Result
	err    error
}

// fakeUpgrader replays steps in order and repeats the last one.
type fakeUpgrader struct {
	mu    sync.Mutex
	steps []step
	calls int
	refs  []int
}

func (f *fakeUpgrader) CheckAndUpgrade(_ context.Context, _ int64, opts ...upgrade.UpgradeOption) (*upgrade.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, len(opts))
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	return f.steps[i].result, f.steps[i].err
}

type recorder struct {
	mu        sync.Mutex
	outcomes  map[string]int
	published map[string]int
	failed    int
}

func newRecorder() *recorder {
	return &recorder{outcomes: map[string]int{}, published: map[string]int{}}
}

func (r *recorder) RecordMessage(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *recorder) RecordPublish(source string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.published[source]++
}

var (
	upgraded = &upgrade.Result{
		Outcome: upgrade.OutcomeUpgraded,
		Record: &tier.HistoryRecord{
			ID:           "h-1",
			PreviousTier: tier.Tier{ID: 1, Rank: 1, Name: "Member"},
			NewTier:      tier.Tier{ID: 2, Rank: 2, Name: "Agent"},
		},
	}
	noMatch  = &upgrade.Result{Outcome: upgrade.OutcomeNoMatch}
	conflict = &upgrade.Result{Outcome: upgrade.OutcomeConflict}
	errConf  = tier.NewTransitionError(7, tier.ErrVersionConflict)
)

func TestMessage_EncodeDecode(t *testing.T) {
	msg := NewMessage(42, SourceWithdrawal, "wd-9")
	if msg.ID == "" {
		t.Fatal("expected generated id")
	}
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if got.ID != msg.ID || got.DistributorID != 42 || got.Reference != "wd-9" || got.Source != SourceWithdrawal {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestDecodeMessage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"missing distributor", `{"id":"x"}`},
		{"zero distributor", `{"id":"x","distributor_id":0}`},
		{"negative distributor", `{"id":"x","distributor_id":-3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMessage([]byte(tt.data)); !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("expected ErrInvalidMessage, got %v", err)
			}
		})
	}
}

func TestHandler_Handle(t *testing.T) {
	storageErr := tier.NewTransitionError(7, errors.New("disk full"))

	tests := []struct {
		name        string
		msg         Message
		steps       []step
		maxAttempts int
		wantErr     bool
		wantCalls   int
		wantOutcome string
	}{
		{
			name:        "upgraded",
			msg:         NewMessage(7, SourceSweep, ""),
			steps:       []step{{upgraded, nil}},
			wantCalls:   1,
			wantOutcome: "upgraded",
		},
		{
			name:        "no match",
			msg:         NewMessage(7, SourceSweep, ""),
			steps:       []step{{noMatch, nil}},
			wantCalls:   1,
			wantOutcome: "no_match",
		},
		{
			name:        "not found is acknowledged",
			msg:         NewMessage(7, SourceSweep, ""),
			steps:       []step{{&upgrade.Result{Outcome: upgrade.OutcomeFailed}, tier.NewNotFoundError("distributor", 7)}},
			wantCalls:   1,
			wantOutcome: OutcomeNotFound,
		},
		{
			name:        "conflict then success",
			msg:         NewMessage(7, SourceSweep, ""),
			steps:       []step{{conflict, errConf}, {upgraded, nil}},
			maxAttempts: 3,
			wantCalls:   2,
			wantOutcome: "upgraded",
		},
		{
			name:        "conflict exhausts attempts",
			msg:         NewMessage(7, SourceSweep, ""),
			steps:       []step{{conflict, errConf}},
			maxAttempts: 3,
			wantErr:     true,
			wantCalls:   3,
			wantOutcome: "conflict",
		},
		{
			name:        "storage failure is returned",
			msg:         NewMessage(7, SourceSweep, ""),
			steps:       []step{{&upgrade.Result{Outcome: upgrade.OutcomeFailed}, storageErr}},
			maxAttempts: 3,
			wantErr:     true,
			wantCalls:   1,
			wantOutcome: "failed",
		},
		{
			name:        "invalid message is dropped",
			msg:         Message{ID: "x"},
			steps:       []step{{upgraded, nil}},
			wantCalls:   0,
			wantOutcome: OutcomeInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpgrader{steps: tt.steps}
			rec := newRecorder()
			h := NewHandler(up, tt.maxAttempts, rec, discardLogger())

			err := h.Handle(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if up.calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, up.calls)
			}
			if rec.outcomes[tt.wantOutcome] != 1 {
				t.Errorf("expected outcome %q recorded, got %v", tt.wantOutcome, rec.outcomes)
			}
		})
	}
}

func TestHandler_PassesReference(t *testing.T) {
	up := &fakeUpgrader{steps: []step{{noMatch, nil}}}
	h := NewHandler(up, 1, nil, discardLogger())

	_ = h.Handle(context.Background(), NewMessage(7, SourceWithdrawal, "wd-1"))
	_ = h.Handle(context.Background(), NewMessage(7, SourceSweep, ""))

	if len(up.refs) != 2 || up.refs[0] != 1 || up.refs[1] != 0 {
		t.Errorf("expected reference option only on first call, got %v", up.refs)
	}
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	rec := newRecorder()
	p := newKafkaPublisher(w, 0, rec, discardLogger())

	if err := p.Publish(context.Background(), NewMessage(42, SourceCommission, "c-1")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	if string(w.messages[0].Key) != "42" {
		t.Errorf("expected key 42, got %q", w.messages[0].Key)
	}
	var decoded Message
	if err := json.Unmarshal(w.messages[0].Value, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.Reference != "c-1" {
		t.Errorf("expected reference c-1, got %q", decoded.Reference)
	}
	if rec.published[SourceCommission] != 1 {
		t.Errorf("expected publish recorded, got %v", rec.published)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close() error = %v, closed = %v", err, w.closed)
	}
}

func TestKafkaPublisher_Errors(t *testing.T) {
	rec := newRecorder()
	p := newKafkaPublisher(&fakeWriter{err: errors.New("broker down")}, 0, rec, discardLogger())

	if err := p.Publish(context.Background(), NewMessage(1, SourceSweep, "")); err == nil {
		t.Error("expected write error")
	}
	if err := p.Publish(context.Background(), Message{}); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
	if rec.failed != 2 {
		t.Errorf("expected 2 failed publishes, got %d", rec.failed)
	}
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.KafkaConfig
	}{
		{"no brokers", config.KafkaConfig{Topic: "t"}},
		{"no topic", config.KafkaConfig{Brokers: []string{"b:9092"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewKafkaPublisher(tt.cfg, nil, discardLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}

	h := NewHandler(&fakeUpgrader{steps: []step{{noMatch, nil}}}, 1, nil, discardLogger())
	if _, err := NewKafkaConsumer(config.KafkaConfig{Brokers: []string{"b:9092"}, Topic: "t"}, h, discardLogger()); err == nil {
		t.Error("expected missing group id error")
	}
}

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func encoded(t *testing.T, offset int64, msg Message) kafka.Message {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Value: data}
}

func TestKafkaConsumer_CommitsHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		encoded(t, 1, NewMessage(7, SourceSweep, "")),
		{Offset: 2, Value: []byte("garbage")},
		encoded(t, 3, NewMessage(8, SourceSweep, "")),
	}}
	up := &fakeUpgrader{steps: []step{{noMatch, nil}}}
	c := newKafkaConsumer(r, NewHandler(up, 1, nil, discardLogger()), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for {
		r.mu.Lock()
		n := len(r.committed)
		r.mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if up.calls != 2 {
		t.Errorf("expected 2 handled messages, got %d", up.calls)
	}
}

func TestKafkaConsumer_StopsOnHandlerError(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{encoded(t, 5, NewMessage(7, SourceSweep, ""))}}
	up := &fakeUpgrader{steps: []step{{&upgrade.Result{Outcome: upgrade.OutcomeFailed}, errors.New("db gone")}}}
	c := newKafkaConsumer(r, NewHandler(up, 1, nil, discardLogger()), discardLogger())

	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected handler error")
	}
	if len(r.committed) != 0 {
		t.Errorf("expected no commits, got %v", r.committed)
	}
}

type capturePublisher struct {
	msgs []Message
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, msg Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestListener(t *testing.T) {
	tests := []struct {
		name    string
		call    func(*Listener, LedgerEvent) bool
		event   LedgerEvent
		pubErr  error
		want    bool
		wantSrc string
	}{
		{"completed withdrawal", (*Listener).withdrawal, LedgerEvent{EntryID: "w1", DistributorID: 7, Status: "completed"}, nil, true, SourceWithdrawal},
		{"pending withdrawal", (*Listener).withdrawal, LedgerEvent{EntryID: "w2", DistributorID: 7, Status: "pending"}, nil, false, ""},
		{"settled commission", (*Listener).commission, LedgerEvent{EntryID: "c1", DistributorID: 7, Status: "SETTLED"}, nil, true, SourceCommission},
		{"frozen commission", (*Listener).commission, LedgerEvent{EntryID: "c2", DistributorID: 7, Status: "frozen"}, nil, false, ""},
		{"missing distributor", (*Listener).commission, LedgerEvent{EntryID: "c3", Status: "settled"}, nil, false, ""},
		{"publish error is swallowed", (*Listener).withdrawal, LedgerEvent{EntryID: "w3", DistributorID: 7, Status: "completed"}, errors.New("down"), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &capturePublisher{err: tt.pubErr}
			l := NewListener(p, discardLogger())
			if got := tt.call(l, tt.event); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			if !tt.want {
				return
			}
			if len(p.msgs) != 1 || p.msgs[0].Source != tt.wantSrc || p.msgs[0].Reference != tt.event.EntryID {
				t.Errorf("unexpected messages %+v", p.msgs)
			}
		})
	}
}

func (l *Listener) withdrawal(ev LedgerEvent) bool { return l.OnWithdrawal(context.Background(), ev) }
func (l *Listener) commission(ev LedgerEvent) bool { return l.OnCommission(context.Background(), ev) }

func TestInlinePublisher(t *testing.T) {
	up := &fakeUpgrader{steps: []step{{upgraded, nil}}}
	rec := newRecorder()
	p := NewInlinePublisher(NewHandler(up, 1, rec, discardLogger()), rec)

	if err := p.Publish(context.Background(), NewMessage(7, SourceCLI, "")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if up.calls != 1 || rec.published[SourceCLI] != 1 || rec.outcomes["upgraded"] != 1 {
		t.Errorf("unexpected state: calls=%d published=%v outcomes=%v", up.calls, rec.published, rec.outcomes)
	}
}
