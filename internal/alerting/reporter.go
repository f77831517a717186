// Package alerting is the error-reporting collaborator. Every failure that
// the correlation engine swallows at the call site is routed through a
// Reporter so it is observable without ever reaching a user.
package alerting

import (
	"github.com/rs/zerolog"
)

// Reporter captures an error together with contextual fields.
type Reporter interface {
	Capture(err error, msg string, fields map[string]interface{})
}

type logReporter struct {
	logger zerolog.Logger
}

// NewLogReporter returns a Reporter that writes captures to the structured log.
func NewLogReporter(logger zerolog.Logger) Reporter {
	return &logReporter{
		logger: logger.With().Str("component", "alerting").Logger(),
	}
}

func (r *logReporter) Capture(err error, msg string, fields map[string]interface{}) {
	event := r.logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
