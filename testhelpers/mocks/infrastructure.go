package mocks

import (
	"context"
	"sync"
	"time"

	"orderbridge/internal/models"
	"orderbridge/internal/storage"

	"github.com/stretchr/testify/mock"
)

// MappingCache is a testify mock of caching.MappingCache
type MappingCache struct {
	mock.Mock
}

func (m *MappingCache) GetMapping(ctx context.Context, mappingType string) (*models.ResolvedMapping, error) {
	args := m.Called(ctx, mappingType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResolvedMapping), args.Error(1)
}

func (m *MappingCache) SetMapping(ctx context.Context, mapping *models.ResolvedMapping, ttl time.Duration) error {
	return m.Called(ctx, mapping, ttl).Error(0)
}

func (m *MappingCache) DeleteMapping(ctx context.Context, mappingType string) error {
	return m.Called(ctx, mappingType).Error(0)
}

// ExportArchive is a testify mock of storage.ExportArchive
type ExportArchive struct {
	mock.Mock
}

func (m *ExportArchive) Store(ctx context.Context, manifest *storage.ExportManifest) (string, error) {
	args := m.Called(ctx, manifest)
	return args.String(0), args.Error(1)
}

// PublishedEvent is one call recorded by Publisher
type PublishedEvent struct {
	Kind   string // lock, status or notify
	Order  *models.Order
	Reason string
	From   models.OrderStatus
	Notice *models.Notification
}

// Publisher records real-time publications instead of sending them
type Publisher struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func (p *Publisher) LockChanged(_ context.Context, order *models.Order, reason string) {
	p.record(PublishedEvent{Kind: "lock", Order: order, Reason: reason})
}

func (p *Publisher) StatusChanged(_ context.Context, order *models.Order, from models.OrderStatus) {
	p.record(PublishedEvent{Kind: "status", Order: order, From: from})
}

func (p *Publisher) Notify(_ context.Context, n *models.Notification) {
	p.record(PublishedEvent{Kind: "notify", Notice: n})
}

func (p *Publisher) record(e PublishedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Events returns the recorded publications of the given kind
func (p *Publisher) Events(kind string) []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []PublishedEvent
	for _, e := range p.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
