package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"storefront-service/internal/access"
	"storefront-service/internal/inventory"
	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *store.MemoryStore
	gate   *access.Gate
	ledger *inventory.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		store:  store.NewMemoryStore(10),
		gate:   access.NewDefaultGate(),
		ledger: inventory.NewLedger(),
	}
}

func (f *fixture) addAccount(t *testing.T, id string, role models.Role) models.Caller {
	t.Helper()
	require.NoError(t, f.store.CreateAccount(context.Background(), &models.Account{
		ID:    id,
		Email: id + "@example.com",
		Role:  role,
	}))
	return models.Caller{AccountID: id, Role: role}
}

func (f *fixture) addProduct(t *testing.T, id, price string, stock int) {
	t.Helper()
	require.NoError(t, f.store.CreateProduct(context.Background(), &models.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	}))
}

func (f *fixture) setCart(t *testing.T, accountID string, lines ...models.CartLine) {
	t.Helper()
	cart := models.EmptyCart(accountID)
	cart.Items = append(cart.Items, lines...)
	require.NoError(t, f.store.PutCart(context.Background(), cart))
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) cart(t *testing.T, accountID string) *models.Cart {
	t.Helper()
	c, err := f.store.GetCart(context.Background(), accountID)
	require.NoError(t, err)
	return c
}

func (f *fixture) outboxTypes() []string {
	var types []string
	for _, e := range f.store.Outbox() {
		types = append(types, e.EventType)
	}
	return types
}

func line(productID string, qty int, price string) models.CartLine {
	return models.CartLine{
		ProductID: productID,
		Name:      "Product " + productID,
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
	}
}

func decodePayload(t *testing.T, e models.OutboxEvent, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Payload, dst))
}

// memoryGuard is an in-process CheckoutGuard
type memoryGuard struct {
	mu      sync.Mutex
	results map[string]string
	locks   map[string]string
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{results: make(map[string]string), locks: make(map[string]string)}
}

func (g *memoryGuard) GetCheckoutResult(ctx context.Context, accountID, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.results[accountID+":"+key]
	return id, ok, nil
}

func (g *memoryGuard) SaveCheckoutResult(ctx context.Context, accountID, key, orderID string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[accountID+":"+key] = orderID
	return nil
}

func (g *memoryGuard) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.locks[name]; held {
		return "", false, nil
	}
	token := uuid.New().String()
	g.locks[name] = token
	return token, true, nil
}

func (g *memoryGuard) ReleaseLock(ctx context.Context, name, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locks[name] == token {
		delete(g.locks, name)
	}
	return nil
}
