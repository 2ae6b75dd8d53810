package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront-service/internal/models"
)

// MemoryStore is an in-process DocumentStore. Transactions use snapshot reads with
// optimistic conflict detection: every document carries a version, a transaction remembers
// the version of each document it read, and commit fails if any of them moved.
type MemoryStore struct {
	mu          sync.RWMutex
	maxAttempts int

	accounts map[string]*models.Account
	carts    map[string]*models.Cart
	products map[string]*models.Product
	orders   map[string]*models.Order
	versions map[string]uint64

	outbox     []models.OutboxEvent
	nextOutbox int64
	processed  map[string]string
}

var _ DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. txMaxAttempts < 1 selects the default.
func NewMemoryStore(txMaxAttempts int) *MemoryStore {
	if txMaxAttempts < 1 {
		txMaxAttempts = defaultMaxAttempts
	}
	return &MemoryStore{
		maxAttempts: txMaxAttempts,
		accounts:    make(map[string]*models.Account),
		carts:       make(map[string]*models.Cart),
		products:    make(map[string]*models.Product),
		orders:      make(map[string]*models.Order),
		versions:    make(map[string]uint64),
		processed:   make(map[string]string),
	}
}

func accountPath(id string) string { return "accounts/" + id }
func cartPath(id string) string    { return "accounts/" + id + "/cart" }
func productPath(id string) string { return "products/" + id }
func orderPath(accountID, orderID string) string {
	return "accounts/" + accountID + "/orders/" + orderID
}

func cloneAccount(a *models.Account) *models.Account {
	out := *a
	if a.Address != nil {
		addr := *a.Address
		out.Address = &addr
	}
	return &out
}

func cloneProduct(p *models.Product) *models.Product {
	out := *p
	if p.Specifications != nil {
		out.Specifications = make(models.Attributes, len(p.Specifications))
		for k, v := range p.Specifications {
			out.Specifications[k] = v
		}
	}
	return &out
}

// bump must be called with mu held for writing
func (s *MemoryStore) bump(path string) {
	s.versions[path]++
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// RunTransaction runs fn against a private view of the store and commits it atomically
func (s *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runWithRetry(ctx, s.maxAttempts, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := newMemTx(s)
		err := fn(ctx, tx)
		if err != nil {
			tx.done = true
			// a decision taken on data that has since changed is re-evaluated
			if tx.stale() {
				return errConflict
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			tx.done = true
			return err
		}
		return tx.commit()
	})
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return &models.ValidationError{Field: "id", Rule: "unique"}
	}
	now := time.Now().UTC()
	account.CreatedAt, account.UpdatedAt = now, now
	s.accounts[account.ID] = cloneAccount(account)
	s.bump(accountPath(account.ID))
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, models.NotFound("account", id)
	}
	return cloneAccount(a), nil
}

func (s *MemoryStore) UpdateAccountProfile(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[account.ID]
	if !ok {
		return models.NotFound("account", account.ID)
	}
	updated := cloneAccount(current)
	updated.FirstName = account.FirstName
	updated.LastName = account.LastName
	updated.Address = nil
	if account.Address != nil {
		addr := *account.Address
		updated.Address = &addr
	}
	updated.UpdatedAt = time.Now().UTC()
	s.accounts[account.ID] = updated
	s.bump(accountPath(account.ID))
	return nil
}

func (s *MemoryStore) GetCart(ctx context.Context, accountID string) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.carts[accountID]; ok {
		return c.Clone(), nil
	}
	return models.EmptyCart(accountID), nil
}

func (s *MemoryStore) PutCart(ctx context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cart.Clone()
	stored.UpdatedAt = time.Now().UTC()
	s.carts[cart.AccountID] = stored
	s.bump(cartPath(cart.AccountID))
	return nil
}

func (s *MemoryStore) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; ok {
		return &models.ValidationError{Field: "id", Rule: "unique"}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = cloneProduct(p)
	s.bump(productPath(p.ID))
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, models.NotFound("product", id)
	}
	return cloneProduct(p), nil
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateProductDetails(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[p.ID]
	if !ok {
		return models.NotFound("product", p.ID)
	}
	updated := cloneProduct(p)
	updated.StockQuantity = current.StockQuantity
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = updated
	s.bump(productPath(p.ID))
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderPath(accountID, orderID)]
	if !ok {
		return nil, models.NotFound("order", orderID)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, accountID string) ([]models.Order, error) {
	return s.listOrders(func(o *models.Order) bool { return o.AccountID == accountID }), nil
}

func (s *MemoryStore) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	return s.listOrders(func(*models.Order) bool { return true }), nil
}

func (s *MemoryStore) listOrders(keep func(*models.Order) bool) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	until := now.Add(lease)
	out := make([]models.OutboxEvent, 0)
	for i := range s.outbox {
		if len(out) >= limit {
			break
		}
		e := &s.outbox[i]
		expired := e.Status == models.OutboxStatusInProgress && e.LockedUntil != nil && e.LockedUntil.Before(now)
		if e.Status != models.OutboxStatusPending && !expired {
			continue
		}
		e.Status = models.OutboxStatusInProgress
		e.Attempts++
		lockedUntil := until
		e.LockedUntil = &lockedUntil
		out = append(out, *e)
	}
	return out, nil
}

func (s *MemoryStore) MarkOutboxSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.outbox {
		if want[s.outbox[i].ID] {
			s.outbox[i].Status = models.OutboxStatusSent
			s.outbox[i].LockedUntil = nil
			s.outbox[i].LastError = nil
		}
	}
	return nil
}

func (s *MemoryStore) MarkOutboxFailed(ctx context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		e := &s.outbox[i]
		if e.ID != id {
			continue
		}
		e.Status = models.OutboxStatusPending
		if e.Attempts >= maxOutboxAttempts {
			e.Status = models.OutboxStatusFailed
		}
		e.LockedUntil = nil
		msg := reason
		e.LastError = &msg
		return nil
	}
	return fmt.Errorf("outbox event not found: %d", id)
}

// Outbox returns a copy of every outbox event, sent or not
func (s *MemoryStore) Outbox() []models.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.OutboxEvent, len(s.outbox))
	copy(out, s.outbox)
	return out
}

func (s *MemoryStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *MemoryStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[eventID]; !ok {
		s.processed[eventID] = eventType
	}
	return nil
}
