package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Check pings the backing stores and reports "ok", "down" or "disabled"
// for each.
func Check(ctx context.Context, db *sqlx.DB, rdb *redis.Client) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{"postgres": "ok", "redis": "ok"}
	if db == nil {
		status["postgres"] = "disabled"
	} else if err := db.PingContext(ctx); err != nil {
		status["postgres"] = "down"
	}
	if rdb == nil {
		status["redis"] = "disabled"
	} else if err := rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = "down"
	}
	return status
}
