package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/storefront/internal/domain/cart"
	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/domain/order"
	"github.com/cassiomorais/storefront/internal/notification"
	"github.com/cassiomorais/storefront/internal/repository/postgres"
)

// --- Cart Repository Mock ---

// MockCartRepository is an in-memory cart.Repository.
type MockCartRepository struct {
	mu     sync.Mutex
	carts  map[string][]cart.Item
	clears map[string]int

	SnapshotFunc func(ctx context.Context, userID string) (*cart.Snapshot, error)
	ClearFunc    func(ctx context.Context, userID string) error
}

func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{
		carts:  make(map[string][]cart.Item),
		clears: make(map[string]int),
	}
}

// SetCart replaces the user's cart.
func (m *MockCartRepository) SetCart(userID string, items ...cart.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[userID] = append([]cart.Item(nil), items...)
}

func (m *MockCartRepository) Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error) {
	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &cart.Snapshot{UserID: userID, Items: append([]cart.Item(nil), m.carts[userID]...)}, nil
}

func (m *MockCartRepository) Clear(ctx context.Context, userID string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	m.clears[userID]++
	return nil
}

// ItemCount returns the number of rows in the user's cart.
func (m *MockCartRepository) ItemCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts[userID])
}

// ClearCalls returns how many times Clear succeeded for the user.
func (m *MockCartRepository) ClearCalls(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears[userID]
}

// --- Order Repository Mock ---

// MockOrderRepository is an in-memory order.Repository. TransitionStatus has
// the same compare-and-set semantics as the SQL statement.
type MockOrderRepository struct {
	mu        sync.Mutex
	bySession map[string]*order.Order
	applied   int

	CreatePendingFunc    func(ctx context.Context, o *order.Order) (*order.Order, error)
	GetBySessionIDFunc   func(ctx context.Context, sessionID string) (*order.Order, error)
	TransitionStatusFunc func(ctx context.Context, t order.Transition) (*order.Order, bool, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{bySession: make(map[string]*order.Order)}
}

// AddOrder stores o as-is.
func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySession[o.SessionID] = o
}

func (m *MockOrderRepository) CreatePending(ctx context.Context, o *order.Order) (*order.Order, error) {
	if m.CreatePendingFunc != nil {
		return m.CreatePendingFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.bySession[o.SessionID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *o
	m.bySession[o.SessionID] = &cp
	out := cp
	return &out, nil
}

func (m *MockOrderRepository) GetBySessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	if m.GetBySessionIDFunc != nil {
		return m.GetBySessionIDFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.bySession[sessionID]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepository) TransitionStatus(ctx context.Context, t order.Transition) (*order.Order, bool, error) {
	if m.TransitionStatusFunc != nil {
		return m.TransitionStatusFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.bySession[t.SessionID]
	if !ok || o.Status != t.From || (t.UserID != "" && o.UserID != t.UserID) {
		return nil, false, nil
	}
	o.Status = t.To
	o.UpdatedAt = time.Now().UTC()
	m.applied++
	cp := *o
	return &cp, true, nil
}

// Status returns the stored status for a session, or "" when unknown.
func (m *MockOrderRepository) Status(sessionID string) order.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.bySession[sessionID]; ok {
		return o.Status
	}
	return ""
}

// Count returns the number of stored orders.
func (m *MockOrderRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bySession)
}

// AppliedTransitions returns how many compare-and-set calls changed a row.
func (m *MockOrderRepository) AppliedTransitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Notification Publisher Mock ---

// MockPublisher records published confirmations.
type MockPublisher struct {
	mu        sync.Mutex
	published []notification.OrderConfirmation

	PublishFunc func(ctx context.Context, c notification.OrderConfirmation) error
}

func (m *MockPublisher) Publish(ctx context.Context, c notification.OrderConfirmation) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, c); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, c)
	return nil
}

func (m *MockPublisher) Published() []notification.OrderConfirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.OrderConfirmation(nil), m.published...)
}

// --- Idempotency Store Mock ---

// MockIdempotencyStore is an in-memory idempotency key store.
type MockIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry

	GetFunc      func(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
	ReserveFunc  func(ctx context.Context, key string, expiresAt time.Time) error
	CompleteFunc func(ctx context.Context, entry *postgres.IdempotencyEntry) error
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.ExpiresAt) {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MockIdempotencyStore) Reserve(ctx context.Context, key string, expiresAt time.Time) error {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, key, expiresAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && time.Now().Before(e.ExpiresAt) {
		return domainErrors.ErrDuplicateIdempotencyKey
	}
	m.entries[key] = &postgres.IdempotencyEntry{Key: key, CreatedAt: time.Now(), ExpiresAt: expiresAt}
	return nil
}

func (m *MockIdempotencyStore) Complete(ctx context.Context, entry *postgres.IdempotencyEntry) error {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[entry.Key]
	if !ok || !e.InProgress() {
		return domainErrors.ErrLockNotHeld
	}
	m.entries[entry.Key] = entry
	return nil
}

func (m *MockIdempotencyStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.InProgress() {
		delete(m.entries, key)
	}
	return nil
}

// Keys returns the stored keys.
func (m *MockIdempotencyStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}
