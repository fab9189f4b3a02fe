package ledger

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"orderbridge/internal/common"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connector hands out a ledger session scoped to one operation.
type Connector interface {
	WithSession(ctx context.Context, fn func(ctx context.Context, db *sqlx.DB) error) error
}

// DedicatedConnector opens a fresh handle per operation and closes it afterwards.
// The ledger is a foreign store, so no pool is shared across requests.
type DedicatedConnector struct {
	driver         string
	dsn            string
	connectTimeout time.Duration
	commandTimeout time.Duration
}

func NewDedicatedConnector(driver, dsn string, connectTimeout, commandTimeout time.Duration) *DedicatedConnector {
	return &DedicatedConnector{
		driver:         driver,
		dsn:            dsn,
		connectTimeout: connectTimeout,
		commandTimeout: commandTimeout,
	}
}

func (c *DedicatedConnector) WithSession(ctx context.Context, fn func(ctx context.Context, db *sqlx.DB) error) error {
	db, err := sqlx.Open(c.driver, c.dsn)
	if err != nil {
		return common.TransientConnectivity("ledger open", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()

	connectCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	err = db.PingContext(connectCtx)
	cancel()
	if err != nil {
		return common.TransientConnectivity("ledger connect", err)
	}

	return runWithTimeout(ctx, c.commandTimeout, db, fn)
}

// StaticConnector reuses a caller-owned handle and never closes it.
type StaticConnector struct {
	db             *sqlx.DB
	commandTimeout time.Duration
}

func NewStaticConnector(db *sqlx.DB, commandTimeout time.Duration) *StaticConnector {
	return &StaticConnector{db: db, commandTimeout: commandTimeout}
}

func (c *StaticConnector) WithSession(ctx context.Context, fn func(ctx context.Context, db *sqlx.DB) error) error {
	return runWithTimeout(ctx, c.commandTimeout, c.db, fn)
}

func runWithTimeout(ctx context.Context, timeout time.Duration, db *sqlx.DB, fn func(ctx context.Context, db *sqlx.DB) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := fn(ctx, db)
	if err != nil && IsConnectivityError(err) && common.KindOf(err) == common.KindInternal {
		return common.TransientConnectivity("ledger command", err)
	}
	return err
}

// IsConnectivityError reports timeouts and broken connections.
func IsConnectivityError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
