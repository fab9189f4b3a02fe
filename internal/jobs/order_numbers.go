package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/ledger"
	"orderbridge/internal/metrics"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const maxSequence = 999

// OrderNumberGenerator issues ledger order numbers of the form YYMM followed by
// a three-digit sequence, e.g. 2603001. Numbers handed out by this process are
// remembered per month so concurrent exports never reuse a sequence.
type OrderNumberGenerator struct {
	mu      sync.Mutex
	issued  map[int64]int64 // month prefix -> highest sequence issued
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewOrderNumberGenerator(m *metrics.Metrics, log *zap.Logger) *OrderNumberGenerator {
	return &OrderNumberGenerator{
		issued:  make(map[int64]int64),
		metrics: m,
		log:     log.Named("order-numbers"),
	}
}

func monthPrefix(at time.Time) int64 {
	return int64(at.Year()%100)*100 + int64(at.Month())
}

// Next returns an identifier unused in the header table at the time of the call.
func (g *OrderNumberGenerator) Next(ctx context.Context, q sqlx.QueryerContext, header *ledger.AllowList, at time.Time) (string, error) {
	prefix := monthPrefix(at)
	base := prefix * 1000

	g.mu.Lock()
	defer g.mu.Unlock()

	stored, err := g.currentMax(ctx, q, header, base)
	if err != nil {
		if ledger.IsConnectivityError(err) {
			return "", err
		}
		return g.fallback(at, prefix, err), nil
	}
	current := stored
	if issued := g.issued[prefix]; issued > current {
		current = issued
	}

	next := current + 1
	if next <= maxSequence {
		free, err := g.isFree(ctx, q, header, base+next)
		if err != nil {
			return "", err
		}
		if free {
			g.issued[prefix] = next
			return strconv.FormatInt(base+next, 10), nil
		}
	}

	for seq := int64(1); seq <= maxSequence; seq++ {
		if seq == next || (seq > stored && seq <= g.issued[prefix]) {
			continue // already checked, or handed out earlier and maybe not committed yet
		}
		free, err := g.isFree(ctx, q, header, base+seq)
		if err != nil {
			return "", err
		}
		if free {
			if seq > g.issued[prefix] {
				g.issued[prefix] = seq
			}
			return strconv.FormatInt(base+seq, 10), nil
		}
	}

	return g.fallback(at, prefix, fmt.Errorf("all %d sequence numbers are taken", maxSequence)), nil
}

func (g *OrderNumberGenerator) currentMax(ctx context.Context, q sqlx.QueryerContext, header *ledger.AllowList, base int64) (int64, error) {
	stmt, err := header.MaxInRange(ledger.FieldOrderNumber, base+1, base+maxSequence)
	if err != nil {
		return 0, err
	}
	var raw sql.NullString
	if err := q.QueryRowxContext(ctx, stmt.SQL, stmt.Args...).Scan(&raw); err != nil {
		return 0, fmt.Errorf("failed to read highest order number: %w", err)
	}
	if !raw.Valid {
		return 0, nil
	}
	value := strings.TrimSpace(raw.String)
	if dot := strings.IndexByte(value, '.'); dot >= 0 {
		value = value[:dot]
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= base {
		return 0, nil
	}
	return n - base, nil
}

func (g *OrderNumberGenerator) isFree(ctx context.Context, q sqlx.QueryerContext, header *ledger.AllowList, candidate int64) (bool, error) {
	stmt, err := header.Exists(ledger.Field{Name: ledger.FieldOrderNumber, Value: strconv.FormatInt(candidate, 10)})
	if err != nil {
		return false, err
	}
	var one int
	err = q.QueryRowxContext(ctx, stmt.SQL, stmt.Args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check order number %d: %w", candidate, err)
	}
	return false, nil
}

// fallback derives a numeral from the clock. It is wider than any sequence number.
func (g *OrderNumberGenerator) fallback(at time.Time, prefix int64, cause error) string {
	g.metrics.IdentifierFallback()
	g.log.Warn("using timestamp order number",
		zap.Int64("prefix", prefix),
		zap.Error(common.NewError(common.KindIdentifierExhaustion, "next order number", "sequence unavailable", cause)))
	return fmt.Sprintf("%09d", at.UnixMilli()%1_000_000_000)
}
