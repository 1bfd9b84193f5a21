package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"catastro-backend/internal/shared/telemetry"
)

// EnvPrefix namespaces the pool overrides, e.g. HISTORY_DB_MAX_OPEN_CONNS.
const EnvPrefix = "HISTORY_DB_"

// Options controls the history pool. Name labels its log lines.
type Options struct {
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var openDB = sql.Open

// HistoryOptions sizes the pool for the API process: one insert per
// extraction plus occasional listings, so a handful of connections is enough.
func HistoryOptions() Options {
	return Options{
		Name:            "history",
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     3 * time.Second,
	}
}

// MigrateOptions is a single connection for cmd/migrate.
func MigrateOptions() Options {
	return Options{
		Name:            "migrate",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     10 * time.Second,
	}
}

// OptionsFromEnv applies HISTORY_DB_* overrides. Invalid values are logged
// and ignored.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	overrideEnv("MAX_OPEN_CONNS", strconv.Atoi, &opts.MaxOpenConns)
	overrideEnv("MAX_IDLE_CONNS", strconv.Atoi, &opts.MaxIdleConns)
	overrideEnv("CONN_MAX_LIFETIME", time.ParseDuration, &opts.ConnMaxLifetime)
	overrideEnv("CONN_MAX_IDLE_TIME", time.ParseDuration, &opts.ConnMaxIdleTime)
	overrideEnv("PING_TIMEOUT", time.ParseDuration, &opts.PingTimeout)
	return opts
}

// Connect opens the history database and pings it. The DSN never reaches
// logs or errors; only its host does.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	host := dsnHost(databaseURL)

	db, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s database at %s: %w", opts.label(), host, err)
	}
	applyOptions(db, opts)

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database at %s: %w", opts.label(), host, err)
	}

	LogPoolStats(db, opts.label(), "connected", map[string]any{"host": host})
	return db, nil
}

// LogPoolStats writes a "<name>.db.<event>" line with the pool counters.
func LogPoolStats(db *sql.DB, name, event string, extra map[string]any) {
	stats := db.Stats()
	fields := map[string]any{
		"open":          stats.OpenConnections,
		"in_use":        stats.InUse,
		"idle":          stats.Idle,
		"wait":          stats.WaitCount,
		"wait_ms":       stats.WaitDuration.Milliseconds(),
		"max_open":      stats.MaxOpenConnections,
		"closed_idle":   stats.MaxIdleTimeClosed,
		"closed_expiry": stats.MaxLifetimeClosed,
	}
	for k, v := range extra {
		fields[k] = v
	}
	telemetry.Info(name+".db."+event, fields)
}

func (o Options) label() string {
	if strings.TrimSpace(o.Name) == "" {
		return "history"
	}
	return o.Name
}

func applyOptions(db *sql.DB, opts Options) {
	def := HistoryOptions()
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = def.MaxOpenConns
	}
	if opts.MaxIdleConns <= 0 || opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = min(def.MaxIdleConns, opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = def.ConnMaxLifetime
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func overrideEnv[T any](suffix string, parse func(string) (T, error), dst *T) {
	key := EnvPrefix + suffix
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	val, err := parse(raw)
	if err != nil {
		telemetry.Warn("history.db.env_invalid", map[string]any{"key": key, "error": err})
		return
	}
	*dst = val
}

func dsnHost(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
