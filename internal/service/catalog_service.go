package service

import (
	"context"
	"strings"

	"storefront-service/internal/access"
	"storefront-service/internal/inventory"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogService manages products. Stock only changes through the ledger.
type CatalogService struct {
	store  store.DocumentStore
	ledger *inventory.Ledger
	gate   *access.Gate
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store store.DocumentStore, ledger *inventory.Ledger, gate *access.Gate) *CatalogService {
	return &CatalogService{
		store:  store,
		ledger: ledger,
		gate:   gate,
		logger: util.GetLogger(),
	}
}

func validateProduct(p *models.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return &models.ValidationError{Field: "name", Rule: "required"}
	}
	if p.Price.IsNegative() {
		return &models.ValidationError{Field: "price", Rule: "min"}
	}
	return nil
}

// List returns every product
func (s *CatalogService) List(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

// Get returns one product
func (s *CatalogService) Get(ctx context.Context, productID string) (*models.Product, error) {
	return s.store.GetProduct(ctx, productID)
}

// Create adds a product with its initial stock
func (s *CatalogService) Create(ctx context.Context, caller models.Caller, p *models.Product) (*models.Product, error) {
	if err := s.gate.Authorize(caller, access.OpProductWrite); err != nil {
		return nil, err
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	if p.StockQuantity < 0 {
		return nil, &models.ValidationError{Field: "stockQuantity", Rule: "min"}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", p.ID),
		zap.Int("stock", p.StockQuantity))
	return p, nil
}

// UpdateDetails replaces the descriptive fields of a product; StockQuantity is ignored
func (s *CatalogService) UpdateDetails(ctx context.Context, caller models.Caller, p *models.Product) (*models.Product, error) {
	if err := s.gate.Authorize(caller, access.OpProductWrite); err != nil {
		return nil, err
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProductDetails(ctx, p); err != nil {
		return nil, err
	}
	return s.store.GetProduct(ctx, p.ID)
}

// Restock adds amount units to a product and returns the new stock
func (s *CatalogService) Restock(ctx context.Context, caller models.Caller, productID string, amount int) (int, error) {
	if err := s.gate.Authorize(caller, access.OpProductRestock); err != nil {
		return 0, err
	}

	var stock int
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		stock, err = s.ledger.Restock(ctx, tx, productID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Product restocked",
		zap.String("product_id", productID),
		zap.Int("amount", amount),
		zap.Int("stock", stock),
		zap.String("by", caller.AccountID))
	return stock, nil
}
