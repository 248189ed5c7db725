package notify

import (
	"context"
	"log/slog"
)

// LogDispatcher writes events to the structured log. It backs local
// development and acts as the always-on channel next to Kafka and mail.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher creates a dispatcher that logs every event.
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, event Event) error {
	d.logger.InfoContext(ctx, "visit notification",
		"kind", event.Kind,
		"audience", event.Audience,
		"priority", event.Priority,
		"visit_id", event.VisitID,
		"visit_code", event.VisitCode,
		"building_id", event.BuildingID,
		"request_id", event.RequestID,
	)
	return nil
}
