package logging

import "log/slog"

// WithComponent tags every record with the engine component emitting it.
//
//	log := logging.WithComponent("executor")
//	log.Debug("==> Preparing", "sql", sql)
func WithComponent(component string) *slog.Logger {
	return Logger().With("component", component)
}

// WithStatement tags records with a mapped statement id.
func WithStatement(component, statementID string) *slog.Logger {
	return Logger().With("component", component, "statement", statementID)
}

// WithCache tags records with a second-level cache id.
func WithCache(cacheID string) *slog.Logger {
	return Logger().With("component", "cache", "cache", cacheID)
}

// WithSession tags records with the id of the owning session.
func WithSession(sessionID string) *slog.Logger {
	return Logger().With("component", "session", "session", sessionID)
}
