package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithRoom returns a logger with room context fields attached.
// Use this for all logging tied to one bot's room.
func WithRoom(roomID, roomType string) *slog.Logger {
	return slog.With(
		"room_id", roomID,
		"room_type", roomType,
	)
}

// WithNotification returns a logger scoped to one inbound notification.
func WithNotification(logger *slog.Logger, resource, event, actorID string) *slog.Logger {
	return logger.With(
		"resource", resource,
		"event", event,
		"actor_id", actorID,
	)
}
