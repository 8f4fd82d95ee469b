package services

import (
	"context"

	"github.com/rs/zerolog"
)

// ErrorReporter is the exception sink. Every provider and persistence
// failure is captured here before it is returned or converted.
type ErrorReporter interface {
	Capture(ctx context.Context, err error, tags map[string]string)
}

type LogErrorReporter struct {
	logger zerolog.Logger
}

func NewLogErrorReporter(logger zerolog.Logger) *LogErrorReporter {
	return &LogErrorReporter{logger: logger.With().Str("component", "error_reporter").Logger()}
}

func (r *LogErrorReporter) Capture(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	event := r.logger.Error().Err(err)
	for k, v := range tags {
		event = event.Str(k, v)
	}
	event.Msg("Captured exception")
}
