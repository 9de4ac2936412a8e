// Package archive stores finished conversation transcripts in SurrealDB.
package archive

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"
)

func init() {
	// The websocket upgrade needs HTTP/1.1.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config locates the archive database. Zero fields take the defaults below.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	// AuthLevel is "root" or "database".
	AuthLevel string

	// CheckInterval is how often a dropped connection is probed.
	CheckInterval time.Duration
	// Retries is how often a dropped connection is re-established before
	// saves start failing.
	Retries int
}

const (
	defaultNamespace = "victor"
	defaultDatabase  = "transcripts"
	defaultInterval  = 5 * time.Second
	defaultRetries   = 3
)

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.AuthLevel == "" {
		c.AuthLevel = "root"
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultInterval
	}
	if c.Retries <= 0 {
		c.Retries = defaultRetries
	}
	// gorillaws appends /rpc itself.
	c.URL = strings.TrimSuffix(strings.TrimSuffix(c.URL, "/"), "/rpc")
	return c
}

func (c Config) auth() surrealdb.Auth {
	a := surrealdb.Auth{Username: c.Username, Password: c.Password}
	if c.AuthLevel == "database" {
		a.Namespace = c.Namespace
		a.Database = c.Database
	}
	return a
}

// Open connects to the archive, signs in and makes sure the schema exists.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("open archive: no url")
	}

	conn := dial(cfg, logger.New(log.Handler()))
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	s, err := attach(ctx, conn, cfg)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	log.Info("archive ready", "url", cfg.URL, "namespace", cfg.Namespace, "database", cfg.Database)
	return s, nil
}

// dial builds a reconnecting connection. Transcripts are written once per
// session, so a short bounded backoff is enough.
func dial(cfg Config, sdkLogger logger.Logger) *rews.Connection[*gorillaws.Connection] {
	codec := surrealcbor.New()
	conn := rews.New(
		func(context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     cfg.URL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		cfg.CheckInterval,
		codec,
		sdkLogger,
	)
	retry := rews.NewExponentialBackoffRetryer()
	retry.InitialDelay = 500 * time.Millisecond
	retry.MaxDelay = 10 * time.Second
	retry.Multiplier = 2
	retry.MaxRetries = cfg.Retries
	conn.Retryer = retry
	return conn
}

func attach(ctx context.Context, conn *rews.Connection[*gorillaws.Connection], cfg Config) (*Store, error) {
	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("attach archive: %w", err)
	}
	if _, err := db.SignIn(ctx, cfg.auth()); err != nil {
		return nil, fmt.Errorf("sign in to archive: %w", err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("select archive database: %w", err)
	}
	if _, err := surrealdb.Query[any](ctx, db, SchemaSQL, nil); err != nil {
		return nil, fmt.Errorf("define archive schema: %w", err)
	}
	return &Store{db: db, close: conn.Close}, nil
}

// Close releases the connection.
func (s *Store) Close(ctx context.Context) error {
	return s.close(ctx)
}
