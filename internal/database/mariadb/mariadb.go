// Package mariadb reads students from an external MariaDB student information system.
// The directory is read-only; it only fills in what the primary backend lacks.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Directory lookups are single-row reads made while marking attendance.
const (
	maxOpenConns  = 4
	maxIdleConns  = 2
	connLifetime  = 30 * time.Minute
	dialTimeout   = 5 * time.Second
	readTimeout   = 3 * time.Second
	pingTimeout   = 10 * time.Second
	directoryName = "student directory"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// directoryConfig parses dsn and fills in the dial and read timeouts when the DSN
// sets none.
func directoryConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing %s DSN: %w", directoryName, err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = dialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = readTimeout
	}
	// Rows are scanned into strings only.
	cfg.ParseTime = false
	return cfg, nil
}

// NewPool opens the directory pool and pings it.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := directoryConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach %s at %s: %w", directoryName, cfg.Addr, err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", directoryName, err)
	}
	return nil
}
