package store

import (
	"context"
	"time"

	"storefront-service/internal/models"
)

// memTx buffers writes until commit. A nil overlay entry marks a deleted document.
type memTx struct {
	s     *MemoryStore
	reads map[string]uint64

	accounts map[string]*models.Account
	carts    map[string]*models.Cart
	products map[string]*models.Product
	orders   map[string]*models.Order
	outbox   []*models.OutboxEvent

	done bool
}

func newMemTx(s *MemoryStore) *memTx {
	return &memTx{
		s:        s,
		reads:    make(map[string]uint64),
		accounts: make(map[string]*models.Account),
		carts:    make(map[string]*models.Cart),
		products: make(map[string]*models.Product),
		orders:   make(map[string]*models.Order),
	}
}

func (t *memTx) txHandle() {}

func (t *memTx) Active() bool { return !t.done }

// observe records the version a document had when first read; caller holds s.mu
func (t *memTx) observe(path string) {
	if _, ok := t.reads[path]; !ok {
		t.reads[path] = t.s.versions[path]
	}
}

// stale reports whether any document read by the transaction has changed since
func (t *memTx) stale() bool {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.staleLocked()
}

func (t *memTx) staleLocked() bool {
	for path, v := range t.reads {
		if t.s.versions[path] != v {
			return true
		}
	}
	return false
}

func (t *memTx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	t.done = true
	if t.staleLocked() {
		return errConflict
	}

	for id, a := range t.accounts {
		if a == nil {
			delete(t.s.accounts, id)
		} else {
			t.s.accounts[id] = a
		}
		t.s.bump(accountPath(id))
	}
	for id, c := range t.carts {
		if c == nil {
			delete(t.s.carts, id)
		} else {
			t.s.carts[id] = c
		}
		t.s.bump(cartPath(id))
	}
	for id, p := range t.products {
		t.s.products[id] = p
		t.s.bump(productPath(id))
	}
	for path, o := range t.orders {
		if o == nil {
			delete(t.s.orders, path)
		} else {
			t.s.orders[path] = o
		}
		t.s.bump(path)
	}
	for _, e := range t.outbox {
		t.s.nextOutbox++
		e.ID = t.s.nextOutbox
		t.s.outbox = append(t.s.outbox, *e)
	}
	return nil
}

func (t *memTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if t.done {
		return nil, errTxFinished
	}
	if a, ok := t.accounts[id]; ok {
		if a == nil {
			return nil, models.NotFound("account", id)
		}
		return cloneAccount(a), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.observe(accountPath(id))
	a, ok := t.s.accounts[id]
	if !ok {
		return nil, models.NotFound("account", id)
	}
	return cloneAccount(a), nil
}

func (t *memTx) UpdateAccountRole(ctx context.Context, id string, role models.Role) error {
	a, err := t.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	a.Role = role
	a.UpdatedAt = time.Now().UTC()
	t.accounts[id] = a
	return nil
}

func (t *memTx) DeleteAccount(ctx context.Context, id string) error {
	if _, err := t.GetAccount(ctx, id); err != nil {
		return err
	}
	t.accounts[id] = nil
	t.carts[id] = nil
	return nil
}

func (t *memTx) GetCart(ctx context.Context, accountID string) (*models.Cart, error) {
	if t.done {
		return nil, errTxFinished
	}
	if c, ok := t.carts[accountID]; ok {
		if c == nil {
			return models.EmptyCart(accountID), nil
		}
		return c.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.observe(cartPath(accountID))
	if c, ok := t.s.carts[accountID]; ok {
		return c.Clone(), nil
	}
	return models.EmptyCart(accountID), nil
}

func (t *memTx) PutCart(ctx context.Context, cart *models.Cart) error {
	if t.done {
		return errTxFinished
	}
	stored := cart.Clone()
	stored.UpdatedAt = time.Now().UTC()
	t.carts[cart.AccountID] = stored
	return nil
}

func (t *memTx) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	if t.done {
		return nil, errTxFinished
	}
	if p, ok := t.products[id]; ok {
		return cloneProduct(p), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.observe(productPath(id))
	p, ok := t.s.products[id]
	if !ok {
		return nil, models.NotFound("product", id)
	}
	return cloneProduct(p), nil
}

func (t *memTx) SetStock(ctx context.Context, productID string, quantity int) error {
	if t.done {
		return models.ErrIllegalInventoryAccess
	}
	p, err := t.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	p.StockQuantity = quantity
	p.UpdatedAt = time.Now().UTC()
	t.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	if t.done {
		return errTxFinished
	}
	t.orders[orderPath(o.AccountID, o.ID)] = o.Clone()
	return nil
}

func (t *memTx) GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	if t.done {
		return nil, errTxFinished
	}
	path := orderPath(accountID, orderID)
	if o, ok := t.orders[path]; ok {
		if o == nil {
			return nil, models.NotFound("order", orderID)
		}
		return o.Clone(), nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	t.observe(path)
	o, ok := t.s.orders[path]
	if !ok {
		return nil, models.NotFound("order", orderID)
	}
	return o.Clone(), nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, accountID, orderID string, status models.OrderStatus) error {
	o, err := t.GetOrder(ctx, accountID, orderID)
	if err != nil {
		return err
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	t.orders[orderPath(accountID, orderID)] = o
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, accountID, orderID string) error {
	if _, err := t.GetOrder(ctx, accountID, orderID); err != nil {
		return err
	}
	t.orders[orderPath(accountID, orderID)] = nil
	return nil
}

func (t *memTx) Enqueue(ctx context.Context, e *models.OutboxEvent) error {
	if t.done {
		return errTxFinished
	}
	e.Status = models.OutboxStatusPending
	e.CreatedAt = time.Now().UTC()
	t.outbox = append(t.outbox, e)
	return nil
}
