package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/gridfn/pkg/persistence"
	"github.com/dukex/gridfn/pkg/persistence/postgresql"
)

// NewHistory picks the history store from the scheme of databaseURL.
// Anything that is not a postgres URL keeps history in memory.
func NewHistory(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.History, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		history, err := postgresql.NewHistory(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL history: %w", err)
		}

		return history, nil
	default:
		return persistence.NewMemory(0), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "memory"
	}
}
