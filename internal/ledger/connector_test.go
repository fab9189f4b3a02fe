package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderbridge/internal/common"
	"orderbridge/testhelpers"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
)

func TestStaticConnector_ClassifiesTimeouts(t *testing.T) {
	ledger := testhelpers.NewLedgerMock(t)
	conn := NewStaticConnector(ledger.DB, 10*time.Millisecond)

	err := conn.WithSession(context.Background(), func(ctx context.Context, db *sqlx.DB) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, common.ErrTransientConnectivity)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStaticConnector_PassesThroughOtherErrors(t *testing.T) {
	ledger := testhelpers.NewLedgerMock(t)
	conn := NewStaticConnector(ledger.DB, time.Second)
	boom := errors.New("syntax error")

	err := conn.WithSession(context.Background(), func(ctx context.Context, db *sqlx.DB) error {
		return boom
	})

	assert.Equal(t, boom, err)
	assert.Equal(t, common.KindInternal, common.KindOf(err))
}

func TestDedicatedConnector_UnreachableIsTransient(t *testing.T) {
	conn := NewDedicatedConnector("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", 500*time.Millisecond, time.Second)

	err := conn.WithSession(context.Background(), func(ctx context.Context, db *sqlx.DB) error {
		t.Fatal("session must not run when the ledger is unreachable")
		return nil
	})

	assert.ErrorIs(t, err, common.ErrTransientConnectivity)
}

func TestIsConnectivityError(t *testing.T) {
	assert.True(t, IsConnectivityError(context.DeadlineExceeded))
	assert.False(t, IsConnectivityError(errors.New("constraint violation")))
}
