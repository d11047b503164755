package app

import (
	"context"
	"log/slog"
)

const componentName = "app"

// log tags a record with the component and operation. A blank correlation
// id is left out.
func (s *Service) log(ctx context.Context, level slog.Level, operation, correlationID, message string, attrs ...any) {
	base := make([]any, 0, 6+len(attrs))
	base = append(base, "component", componentName, "operation", operation)
	if correlationID != "" {
		base = append(base, "correlation_id", correlationID)
	}
	s.logger.Log(ctx, level, message, append(base, attrs...)...)
}
