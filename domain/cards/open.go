package cards

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Open returns the store for driver ("sqlite3" or "postgres").
func Open(ctx context.Context, driver, dsn string, logger *zap.Logger) (Store, error) {
	switch driver {
	case "", "sqlite3", "sqlite":
		return OpenSQLite(ctx, dsn)
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn, logger)
	}
	return nil, fmt.Errorf("cards: unknown driver %q", driver)
}
