package notifier

import (
	"context"

	logx "belltower/pkg/logx"
)

// Sink is a delivery target for resolved triggers. Sinks stay inside the
// process; broadcasting to playback devices is somebody else's job.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, t Trigger) error
}

// LogSink announces triggers on the structured log.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Deliver(_ context.Context, t Trigger) error {
	s.Log.Info("trigger",
		logx.String("event", t.EventID),
		logx.String("name", t.Name),
		logx.String("type", t.Type),
		logx.String("day", t.Day.String()),
		logx.String("at", t.At.String()),
		logx.String("voice", t.VoiceID),
	)
	return nil
}

// FuncSink adapts a function to the Sink interface; handy in tests and
// for small integrations.
type FuncSink struct {
	SinkName string
	Fn       func(ctx context.Context, t Trigger) error
}

func (s FuncSink) Name() string {
	if s.SinkName == "" {
		return "func"
	}
	return s.SinkName
}

func (s FuncSink) Deliver(ctx context.Context, t Trigger) error {
	if s.Fn == nil {
		return nil
	}
	return s.Fn(ctx, t)
}
