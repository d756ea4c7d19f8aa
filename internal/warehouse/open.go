package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"monthlyload/internal/config"
)

// pingTimeout bounds connection establishment, which for Snowflake includes
// the login round trip.
const pingTimeout = 30 * time.Second

// Open connects to the configured warehouse and returns a ready SQLSink.
func Open(ctx context.Context, cfg config.Warehouse, log *slog.Logger) (*SQLSink, error) {
	driverName, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// One writer at a time; keeps the load transaction on one connection.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	return NewSQLSink(db, cfg.Driver, cfg.BatchSize, log)
}

// dataSource maps the configuration to a database/sql driver name and DSN.
func dataSource(cfg config.Warehouse) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case "snowflake":
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:   cfg.Account,
			User:      cfg.User,
			Password:  cfg.Password,
			Database:  cfg.Database,
			Schema:    cfg.Schema,
			Warehouse: cfg.Warehouse,
			Role:      cfg.Role,
		})
		if err != nil {
			return "", "", fmt.Errorf("building snowflake DSN: %w", err)
		}
		return "snowflake", dsn, nil

	case "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   cfg.Account,
			Path:   "/" + cfg.Database,
		}
		if cfg.Schema != "" {
			q := url.Values{}
			q.Set("search_path", cfg.Schema)
			u.RawQuery = q.Encode()
		}
		return "pgx", u.String(), nil

	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return "", "", fmt.Errorf("creating sqlite dir: %w", err)
		}
		return "sqlite", cfg.SQLitePath, nil

	default:
		return "", "", fmt.Errorf("unsupported warehouse driver %q", cfg.Driver)
	}
}
