package trigger

import "context"

// InlinePublisher runs the handler in the caller's goroutine. It is used
// when no broker is configured and by the CLI.
type InlinePublisher struct {
	handler  *Handler
	recorder Recorder
}

// NewInlinePublisher creates a publisher that calls handler directly.
func NewInlinePublisher(handler *Handler, recorder Recorder) *InlinePublisher {
	return &InlinePublisher{handler: handler, recorder: recorderOrNop(recorder)}
}

// Publish handles msg immediately and returns the handler's error.
func (p *InlinePublisher) Publish(ctx context.Context, msg Message) error {
	err := p.handler.Handle(ctx, msg)
	p.recorder.RecordPublish(msg.Source, err)
	return err
}

// Close is a no-op.
func (p *InlinePublisher) Close() error { return nil }
