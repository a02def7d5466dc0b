package station

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// AdminConsole receives the session token after the administrator verifies.
type AdminConsole interface {
	Open(ctx context.Context, name, token string) error
}

// TokenConsole hands the admin session over by writing the token to a
// well-known file, where the enrollment tool picks it up. The file is
// rewritten on every grant; only the freshest session is usable.
type TokenConsole struct {
	path   string
	logger *slog.Logger
}

func NewTokenConsole(path string, logger *slog.Logger) *TokenConsole {
	return &TokenConsole{path: path, logger: logger}
}

func (c *TokenConsole) Open(_ context.Context, name, token string) error {
	if err := os.WriteFile(c.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write admin session file: %w", err)
	}

	c.logger.Info("admin session granted",
		slog.String("name", name),
		slog.String("session_file", c.path))

	return nil
}
