package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// TxFunc is the body of a transaction. It may run more than once when the store retries
// after a conflict, so it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is the handle passed to a TxFunc. Implementations are private to this package and
// only exist for the duration of RunTransaction. Stock can only be written through a Tx.
type Tx interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateAccountRole(ctx context.Context, id string, role models.Role) error
	DeleteAccount(ctx context.Context, id string) error

	GetCart(ctx context.Context, accountID string) (*models.Cart, error)
	PutCart(ctx context.Context, cart *models.Cart) error

	GetProduct(ctx context.Context, id string) (*models.Product, error)
	SetStock(ctx context.Context, productID string, quantity int) error

	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, accountID, orderID string, status models.OrderStatus) error
	DeleteOrder(ctx context.Context, accountID, orderID string) error

	// Enqueue writes an outbox event that commits or aborts with the transaction
	Enqueue(ctx context.Context, event *models.OutboxEvent) error

	// Active reports whether the transaction has not yet committed or rolled back
	Active() bool

	txHandle()
}

// DocumentStore is the persistence boundary for the storefront
type DocumentStore interface {
	RunTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	UpdateAccountProfile(ctx context.Context, account *models.Account) error

	GetCart(ctx context.Context, accountID string) (*models.Cart, error)
	PutCart(ctx context.Context, cart *models.Cart) error

	CreateProduct(ctx context.Context, product *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpdateProductDetails(ctx context.Context, product *models.Product) error

	GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, accountID string) ([]models.Order, error)
	ListAllOrders(ctx context.Context) ([]models.Order, error)

	ClaimOutbox(ctx context.Context, limit int, lease time.Duration) ([]models.OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, ids []int64) error
	MarkOutboxFailed(ctx context.Context, id int64, reason string) error

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Options tune a store
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxMaxAttempts   int
}

// Store is the Postgres-backed DocumentStore
type Store struct {
	db          *sqlx.DB
	maxAttempts int
}

var _ DocumentStore = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string, opts Options) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewStoreWithDB(db, opts.TxMaxAttempts), nil
}

// NewStoreWithDB wraps an existing connection
func NewStoreWithDB(db *sqlx.DB, txMaxAttempts int) *Store {
	if txMaxAttempts < 1 {
		txMaxAttempts = defaultMaxAttempts
	}
	return &Store{db: db, maxAttempts: txMaxAttempts}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RunTransaction runs fn in a SERIALIZABLE transaction, retrying on serialization failures
func (s *Store) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runWithRetry(ctx, s.maxAttempts, func() error {
		return s.runOnce(ctx, fn)
	})
}

func (s *Store) runOnce(ctx context.Context, fn TxFunc) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &pgTx{tx: sqlTx}
	defer func() {
		if !tx.done {
			tx.done = true
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.done = true
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const accountColumns = `id, email, role, first_name, last_name, address, created_at, updated_at`

// CreateAccount inserts a new account record
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, email, role, first_name, last_name, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		account.ID, account.Email, account.Role, account.FirstName, account.LastName, account.Address,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if isUniqueViolation(err) {
		return &models.ValidationError{Field: "id", Rule: "unique"}
	}
	return err
}

// GetAccount retrieves an account by ID
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return getAccount(ctx, s.db, id)
}

// UpdateAccountProfile updates the profile fields of an account; role is left untouched
func (s *Store) UpdateAccountProfile(ctx context.Context, account *models.Account) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET first_name = $1, last_name = $2, address = $3, updated_at = NOW() WHERE id = $4`,
		account.FirstName, account.LastName, account.Address, account.ID)
	if err != nil {
		return err
	}
	return expectAffected(res, "account", account.ID)
}

// GetCart retrieves the cart of an account; an absent cart is returned empty
func (s *Store) GetCart(ctx context.Context, accountID string) (*models.Cart, error) {
	return getCart(ctx, s.db, accountID)
}

// PutCart replaces the whole cart document
func (s *Store) PutCart(ctx context.Context, cart *models.Cart) error {
	return putCart(ctx, s.db, cart)
}

const productColumns = `id, name, price, category, stock_quantity, main_image_url, description, specifications, created_at, updated_at`

// CreateProduct inserts a catalog entry with its initial stock
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (id, name, price, category, stock_quantity, main_image_url, description, specifications)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		p.ID, p.Name, p.Price, p.Category, p.StockQuantity, p.MainImageURL, p.Description, p.Specifications,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return &models.ValidationError{Field: "id", Rule: "unique"}
	}
	return err
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return getProduct(ctx, s.db, id)
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT "+productColumns+" FROM products ORDER BY name, id")
	return products, err
}

// UpdateProductDetails updates descriptive fields. Stock is never written here.
func (s *Store) UpdateProductDetails(ctx context.Context, p *models.Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1, price = $2, category = $3, main_image_url = $4, description = $5,
		    specifications = $6, updated_at = NOW()
		WHERE id = $7`,
		p.Name, p.Price, p.Category, p.MainImageURL, p.Description, p.Specifications, p.ID)
	if err != nil {
		return err
	}
	return expectAffected(res, "product", p.ID)
}

func getAccount(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Account, error) {
	var account models.Account
	err := sqlx.GetContext(ctx, q, &account, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("account", id)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func getCart(ctx context.Context, q sqlx.QueryerContext, accountID string) (*models.Cart, error) {
	var cart models.Cart
	err := sqlx.GetContext(ctx, q, &cart,
		"SELECT account_id, items, updated_at FROM carts WHERE account_id = $1", accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EmptyCart(accountID), nil
	}
	if err != nil {
		return nil, err
	}
	if cart.Items == nil {
		cart.Items = models.CartLines{}
	}
	return &cart, nil
}

func putCart(ctx context.Context, e sqlx.ExecerContext, cart *models.Cart) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO carts (account_id, items, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET items = EXCLUDED.items, updated_at = NOW()`,
		cart.AccountID, cart.Items)
	return err
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("product", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NotFound(kind, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
