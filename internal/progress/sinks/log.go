package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/chirag2653/website-to-skill-folder/internal/progress"
)

// LogSink emits structured logs for progress streams. It is the default sink
// for CLI runs, where a metrics endpoint is usually not running.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("site", evt.Site),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Identifier != "" {
			fields = append(fields, zap.String("identifier", evt.Identifier))
		}
		if evt.Total > 0 {
			fields = append(fields,
				zap.Int("completed", evt.Completed),
				zap.Int("total", evt.Total))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
