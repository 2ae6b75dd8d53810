package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-service/internal/access"
	"storefront-service/internal/identity"
	"storefront-service/internal/inventory"
	"storefront-service/internal/models"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	store  *store.MemoryStore
	redis  *redisclient.Client
	issuer *identity.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rc := redisclient.NewFromRedis(rdb)

	s := store.NewMemoryStore(10)
	gate := access.NewDefaultGate()
	ledger := inventory.NewLedger()

	services := Services{
		Accounts: service.NewAccountService(s, gate),
		Carts:    service.NewCartService(s, gate, 5),
		Checkout: service.NewCheckoutService(s, ledger, gate, rc, service.CheckoutOptions{}),
		Orders:   service.NewOrderService(s, gate, models.StatusPolicyPermissive),
		Catalog:  service.NewCatalogService(s, ledger, gate),
	}

	verifier := identity.NewVerifier(testSecret, "storefront", rc)
	h := NewHandler(services, verifier, map[string]Pinger{"store": s, "redis": rc})

	router := gin.New()
	h.SetupRoutes(router)

	return &testServer{
		router: router,
		store:  s,
		redis:  rc,
		issuer: identity.NewIssuer(testSecret, "storefront", time.Hour),
	}
}

func (ts *testServer) token(t *testing.T, accountID string, role models.Role) string {
	t.Helper()
	tok, err := ts.issuer.Issue(accountID, role)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (ts *testServer) seedProduct(t *testing.T, staff, id string, price string, stock int) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/products", staff, gin.H{
		"id":            id,
		"name":          "Product " + id,
		"price":         price,
		"stockQuantity": stock,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (ts *testServer) register(t *testing.T, token string) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/accounts", token, gin.H{
		"email":     "jan@example.com",
		"firstName": "Jan",
		"lastName":  "Kowalski",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode(t, w)["status"])
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("down") }

func TestReadyReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(Services{}, identity.NewVerifier(testSecret, "", nil), map[string]Pinger{"store": failingPinger{}})
	router := gin.New()
	h.SetupRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/cart", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicCatalog(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	ts.seedProduct(t, staff, "p-1", "10.00", 3)

	w := ts.do(t, http.MethodGet, "/api/v1/products/p-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["stockQuantity"])

	w = ts.do(t, http.MethodGet, "/api/v1/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// details updates never touch stock
	w = ts.do(t, http.MethodPut, "/api/v1/products/p-1", staff, gin.H{"name": "Renamed", "price": "12.50", "stockQuantity": 99})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Renamed", body["name"])
	assert.Equal(t, float64(3), body["stockQuantity"])

	w = ts.do(t, http.MethodPost, "/api/v1/products/p-1/restock", staff, gin.H{"amount": 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(7), decode(t, w)["stockQuantity"])

	w = ts.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["products"], 1)
}

func TestCustomerCannotCreateProduct(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.token(t, "acc-1", models.RoleCustomer)

	w := ts.do(t, http.MethodPost, "/api/v1/products", customer, gin.H{"name": "X", "price": "1.00"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCheckoutFlow(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	customer := ts.token(t, "acc-1", models.RoleCustomer)

	ts.seedProduct(t, staff, "p-1", "10.00", 3)
	ts.register(t, customer)

	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/api/v1/cart/items", customer, gin.H{"productId": "p-1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	req := gin.H{"shippingMethod": "odbior", "paymentMethod": "gotowka"}
	w := ts.do(t, http.MethodPost, "/api/v1/checkout", customer, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decode(t, w)
	assert.Equal(t, "20", order["totalValue"])
	assert.Equal(t, "pickup", order["shippingMethod"])
	assert.Equal(t, "cash", order["paymentMethod"])
	orderID := order["id"].(string)

	w = ts.do(t, http.MethodGet, "/api/v1/products/p-1", "", nil)
	assert.Equal(t, float64(1), decode(t, w)["stockQuantity"])

	w = ts.do(t, http.MethodGet, "/api/v1/cart", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["items"])

	w = ts.do(t, http.MethodGet, "/api/v1/orders/"+orderID, customer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// an empty cart cannot be checked out again
	w = ts.do(t, http.MethodPost, "/api/v1/checkout", customer, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "empty_cart", decode(t, w)["error"])
}

func TestCheckoutIdempotencyHeader(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	customer := ts.token(t, "acc-1", models.RoleCustomer)

	ts.seedProduct(t, staff, "p-1", "10.00", 3)
	ts.register(t, customer)
	w := ts.do(t, http.MethodPost, "/api/v1/cart/items", customer, gin.H{"productId": "p-1"})
	require.Equal(t, http.StatusOK, w.Code)

	send := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(gin.H{"shippingMethod": "pickup", "paymentMethod": "card"})
		r := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Authorization", "Bearer "+customer)
		r.Header.Set("Idempotency-Key", "key-1")
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, r)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	assert.Equal(t, decode(t, first)["id"], decode(t, second)["id"])
}

func TestCheckoutInsufficientStock(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	customer := ts.token(t, "acc-1", models.RoleCustomer)

	ts.seedProduct(t, staff, "p-1", "10.00", 2)
	ts.register(t, customer)
	for i := 0; i < 2; i++ {
		w := ts.do(t, http.MethodPost, "/api/v1/cart/items", customer, gin.H{"productId": "p-1"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	// stock drops behind the customer's back
	require.NoError(t, ts.store.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return inventory.NewLedger().Decrement(ctx, tx, "p-1", 1)
	}))

	w := ts.do(t, http.MethodPost, "/api/v1/checkout", customer, gin.H{"shippingMethod": "pickup", "paymentMethod": "cash"})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "insufficient_stock", body["error"])
	assert.Equal(t, "p-1", body["productId"])
	assert.Equal(t, float64(1), body["available"])
}

func TestCheckoutCourierNeedsValidAddress(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	customer := ts.token(t, "acc-1", models.RoleCustomer)

	ts.seedProduct(t, staff, "p-1", "10.00", 2)
	ts.register(t, customer)
	w := ts.do(t, http.MethodPost, "/api/v1/cart/items", customer, gin.H{"productId": "p-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/checkout", customer, gin.H{
		"shippingMethod": "courier",
		"paymentMethod":  "card",
		"deliveryAddress": gin.H{
			"street":     "Długa 1",
			"city":       "Gdańsk",
			"postalCode": "80827",
			"country":    "Polska",
			"phone":      "600700800",
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "postalCode", decode(t, w)["field"])
}

func TestRegisterRejectsMalformedFields(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.token(t, "acc-1", models.RoleCustomer)

	w := ts.do(t, http.MethodPost, "/api/v1/accounts", customer, gin.H{"email": "a@", "firstName": "Jan", "lastName": "Kowalski"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "email", decode(t, w)["field"])

	w = ts.do(t, http.MethodPost, "/api/v1/accounts", customer, gin.H{"email": "jan@example.com", "firstName": "Jan", "lastName": "<script>"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "lastName", decode(t, w)["field"])
}

func TestStaffCannotUseCart(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	ts.seedProduct(t, staff, "p-1", "10.00", 2)

	w := ts.do(t, http.MethodPost, "/api/v1/cart/items", staff, gin.H{"productId": "p-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestQuantityLimit(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	customer := ts.token(t, "acc-1", models.RoleCustomer)
	ts.seedProduct(t, staff, "p-1", "10.00", 10)
	ts.register(t, customer)

	w := ts.do(t, http.MethodPost, "/api/v1/cart/items", customer, gin.H{"productId": "p-1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/cart/items/p-1", customer, gin.H{"quantity": 6})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "quantity_limit_exceeded", decode(t, w)["error"])
}

func TestAdminOrderManagement(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	customer := ts.token(t, "acc-1", models.RoleCustomer)

	ts.seedProduct(t, staff, "p-1", "10.00", 2)
	ts.register(t, customer)
	w := ts.do(t, http.MethodPost, "/api/v1/cart/items", customer, gin.H{"productId": "p-1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/v1/checkout", customer, gin.H{"shippingMethod": "pickup", "paymentMethod": "cash"})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decode(t, w)["id"].(string)

	w = ts.do(t, http.MethodGet, "/api/v1/admin/orders", customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/admin/orders", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["orders"], 1)

	path := "/api/v1/admin/accounts/acc-1/orders/" + orderID
	w = ts.do(t, http.MethodPatch, path, staff, gin.H{"status": "shipped"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(models.OrderStatusShipped), decode(t, w)["status"])

	w = ts.do(t, http.MethodPatch, path, staff, gin.H{"status": "lost"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(t, http.MethodDelete, path, staff, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/orders/"+orderID, customer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoleChangeAndRevokedToken(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, "staff-1", models.RoleStaff)
	customer := ts.token(t, "acc-1", models.RoleCustomer)
	ts.register(t, customer)

	// staff may not grant admin
	w := ts.do(t, http.MethodPatch, "/api/v1/admin/accounts/acc-1/role", staff, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(t, http.MethodPatch, "/api/v1/admin/accounts/acc-1/role", staff, gin.H{"role": "employee"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "staff", decode(t, w)["role"])

	require.NoError(t, ts.redis.RevokeTokensBefore(context.Background(), "acc-1", time.Now().Add(time.Second)))

	w = ts.do(t, http.MethodGet, "/api/v1/accounts/me", customer, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReloginRightAfterRevocation(t *testing.T) {
	ts := newTestServer(t)
	customer := ts.token(t, "acc-1", models.RoleCustomer)
	ts.register(t, customer)

	require.NoError(t, ts.redis.RevokeTokensBefore(context.Background(), "acc-1", time.Now()))
	time.Sleep(5 * time.Millisecond)

	fresh := ts.token(t, "acc-1", models.RoleCustomer)
	w := ts.do(t, http.MethodGet, "/api/v1/accounts/me", fresh, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
