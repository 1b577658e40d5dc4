// Package cloudsql opens PostgreSQL connections either directly from a DSN or
// through the Cloud SQL Go connector for an instance connection name.
package cloudsql

import (
	"context"
	"database/sql"
	"fmt"
	"net"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Config holds connection settings.
type Config struct {
	// InstanceName is the "project:region:instance" connection name.
	InstanceName string
	User         string
	Password     string
	Database     string
	// DSN bypasses the connector and connects directly when set.
	DSN string
}

// Provider connects to the configured database.
type Provider struct {
	cfg    Config
	dialer *cloudsqlconn.Dialer
}

// New creates a Provider. The Cloud SQL dialer is created only when no DSN is set.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.DSN == "" && cfg.InstanceName == "" {
		return nil, fmt.Errorf("either a DSN or an instance connection name is required")
	}
	p := &Provider{cfg: cfg}
	if cfg.DSN == "" {
		d, err := cloudsqlconn.NewDialer(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud sql dialer: %w", err)
		}
		p.dialer = d
	}
	return p, nil
}

// Connect returns a pooled database handle.
func (p *Provider) Connect(ctx context.Context) (*sql.DB, error) {
	dsn := p.cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("user=%s password=%s dbname=%s sslmode=disable", p.cfg.User, p.cfg.Password, p.cfg.Database)
	}

	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	if p.dialer != nil {
		instance := p.cfg.InstanceName
		config.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return p.dialer.Dial(ctx, instance)
		}
	}

	db := stdlib.OpenDB(*config)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return db, nil
}

// Close releases the Cloud SQL dialer.
func (p *Provider) Close() error {
	if p.dialer != nil {
		return p.dialer.Close()
	}
	return nil
}
