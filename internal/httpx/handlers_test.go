package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pablocruz84/loja-nextjs-pix/internal/config"
	"github.com/pablocruz84/loja-nextjs-pix/internal/customer"
	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/payment"
	"github.com/pablocruz84/loja-nextjs-pix/internal/product"
	"github.com/pablocruz84/loja-nextjs-pix/internal/recon"
	"github.com/pablocruz84/loja-nextjs-pix/internal/settings"
)

func init() { gin.SetMode(gin.TestMode) }

type stubOrders struct {
	orders map[int64]*order.Order
	items  map[int64][]order.Item

	nextID   int64
	attached []string
	canceled []int64
}

func newStubOrders() *stubOrders {
	return &stubOrders{orders: map[int64]*order.Order{}, items: map[int64][]order.Item{}, nextID: 100}
}

func (s *stubOrders) Create(_ context.Context, customerID int64, snap order.CustomerSnapshot, items []order.ItemInput) (*order.Order, []order.Item, error) {
	s.nextID++
	o := &order.Order{
		ID:         s.nextID,
		CustomerID: customerID,
		Customer:   snap,
		Total:      decimal.RequireFromString("159.90"),
		Status:     order.StatusPending,
		CreatedAt:  time.Now(),
	}
	var out []order.Item
	for _, it := range items {
		out = append(out, order.Item{
			OrderID: o.ID, ProductID: it.ProductID, Name: "Cimento 50kg",
			Quantity: it.Quantity, UnitPrice: decimal.RequireFromString("79.95"),
		})
	}
	s.orders[o.ID] = o
	s.items[o.ID] = out
	return o, out, nil
}

func (s *stubOrders) GetByID(_ context.Context, id int64) (*order.Order, []order.Item, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, nil, order.ErrNotFound
	}
	return o, s.items[id], nil
}

func (s *stubOrders) GetByCharge(_ context.Context, provider, chargeID string) (*order.Order, []order.Item, error) {
	for _, o := range s.orders {
		if o.Provider == provider && o.ChargeID == chargeID {
			return o, s.items[o.ID], nil
		}
	}
	return nil, nil, order.ErrNotFound
}

func (s *stubOrders) GetStatus(_ context.Context, id int64) (order.Status, error) {
	o, ok := s.orders[id]
	if !ok {
		return "", order.ErrNotFound
	}
	return o.Status, nil
}

func (s *stubOrders) AttachCharge(_ context.Context, id int64, provider, chargeID, qrText string) error {
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Provider, o.ChargeID, o.QRText = provider, chargeID, qrText
	s.attached = append(s.attached, chargeID)
	return nil
}

func (s *stubOrders) MarkPaid(_ context.Context, id int64, _, _ string) (bool, error) {
	o, ok := s.orders[id]
	if !ok || o.Status != order.StatusPending {
		return false, nil
	}
	o.Status = order.StatusPaid
	return true, nil
}

func (s *stubOrders) Cancel(_ context.Context, id int64) (bool, error) {
	o, ok := s.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return false, nil
	}
	o.Status = order.StatusCanceled
	s.canceled = append(s.canceled, id)
	return true, nil
}

func (s *stubOrders) ClaimNotification(_ context.Context, _ int64) (bool, error) { return true, nil }
func (s *stubOrders) ReleaseNotification(_ context.Context, _ int64) error       { return nil }

func (s *stubOrders) ListPendingCharges(_ context.Context, _ time.Duration) ([]order.PendingCharge, error) {
	return nil, nil
}

func (s *stubOrders) List(_ context.Context, _, _ int) ([]order.Order, error) {
	var out []order.Order
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

type stubProducts struct {
	products map[int64]*product.Product
}

func newStubProducts() *stubProducts {
	return &stubProducts{products: map[int64]*product.Product{
		1: {ID: 1, Code: "FAC00001", Name: "Cimento 50kg", Price: decimal.RequireFromString("79.95"), Stock: 10},
	}}
}

func (s *stubProducts) Create(_ context.Context, p *product.Product) error {
	p.ID = int64(len(s.products) + 1)
	if p.Code == "" {
		p.Code = fmt.Sprintf("FAC%05d", p.ID)
	}
	s.products[p.ID] = p
	return nil
}

func (s *stubProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (s *stubProducts) List(_ context.Context, _ product.Query) ([]product.Product, error) {
	var out []product.Product
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubProducts) Update(_ context.Context, p *product.Product, _ bool) error {
	s.products[p.ID] = p
	return nil
}

func (s *stubProducts) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	delete(s.products, id)
	return true, nil
}

func (s *stubProducts) DecrementStock(_ context.Context, id int64, qty int) (int, error) {
	p, ok := s.products[id]
	if !ok {
		return 0, product.ErrNotFound
	}
	p.Stock -= qty
	return p.Stock, nil
}

type stubCustomers struct {
	customers map[string]*customer.Customer
}

func newStubCustomers() *stubCustomers {
	return &stubCustomers{customers: map[string]*customer.Customer{}}
}

func (s *stubCustomers) GetByCPF(_ context.Context, cpf string) (*customer.Customer, error) {
	c, ok := s.customers[customer.NormalizeCPF(cpf)]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (s *stubCustomers) Create(_ context.Context, c *customer.Customer) error {
	c.ID = int64(len(s.customers) + 1)
	c.CPF = customer.NormalizeCPF(c.CPF)
	s.customers[c.CPF] = c
	return nil
}

func (s *stubCustomers) IncrementPurchases(_ context.Context, _ int64) error { return nil }

func (s *stubCustomers) List(_ context.Context, _, _ int) ([]customer.Customer, error) {
	var out []customer.Customer
	for _, c := range s.customers {
		out = append(out, *c)
	}
	return out, nil
}

type stubSettings struct {
	s settings.Settings
}

func (s *stubSettings) Get(_ context.Context) (settings.Settings, error) { return s.s, nil }

func (s *stubSettings) Put(_ context.Context, in settings.Settings) (settings.Settings, error) {
	s.s = in
	return in, nil
}

type stubGateway struct {
	name      string
	charge    *payment.Charge
	chargeErr error
	state     *payment.ChargeState
	stateErr  error
}

func (g *stubGateway) Name() string { return g.name }

func (g *stubGateway) CreateCharge(context.Context, payment.ChargeRequest) (*payment.Charge, error) {
	return g.charge, g.chargeErr
}

func (g *stubGateway) GetCharge(context.Context, string) (*payment.ChargeState, error) {
	return g.state, g.stateErr
}

type env struct {
	srv       *Server
	orders    *stubOrders
	products  *stubProducts
	customers *stubCustomers
	gateway   *stubGateway
	router    *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("segredo"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	cfg := config.Config{
		Gateway:       config.GatewayMercadoPago,
		AdminUser:     "admin",
		AdminPassHash: string(hash),
		JWTSecret:     "test-secret",
		StoreName:     "Loja Teste",
	}

	orders := newStubOrders()
	products := newStubProducts()
	customers := newStubCustomers()
	sett := &stubSettings{s: settings.Settings{Gateway: config.GatewayMercadoPago, StoreOpen: true}}
	gateway := &stubGateway{
		name: config.GatewayMercadoPago,
		charge: &payment.Charge{
			ID: "ch-1", QRText: "00020126pix", QRImageB64: "aW1n", Reference: "101",
		},
	}
	gateways := map[string]payment.Gateway{config.GatewayMercadoPago: gateway}

	engine := recon.New(orders, products, customers, noopEvents{}, gateways, zap.NewNop())
	srv := NewServer(cfg, zap.NewNop(), orders, products, customers, sett, engine, gateways, nil)
	return &env{srv: srv, orders: orders, products: products, customers: customers,
		gateway: gateway, router: srv.Router()}
}

type noopEvents struct{}

func (noopEvents) PaymentConfirmed(context.Context, int64) error { return nil }

func (e *env) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if s, ok := body.(string); ok {
		rd = bytes.NewReader([]byte(s))
	} else if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func checkoutBody() map[string]any {
	return map[string]any{
		"name": "Maria da Silva", "cpf": "123.456.789-00", "phone": "22988887777",
		"street": "Rua A", "number": "10", "district": "Centro",
		"city": "Campos", "state": "RJ",
		"items": []map[string]any{{"product_id": 1, "quantity": 2}},
	}
}

func TestCheckout(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/checkout", checkoutBody(), "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		OrderID  int64  `json:"order_id"`
		ChargeID string `json:"charge_id"`
		QRCode   string `json:"qr_code"`
		Total    string `json:"total"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ChargeID != "ch-1" || resp.QRCode != "00020126pix" {
		t.Errorf("charge = %+v", resp)
	}
	if resp.Status != "pending" {
		t.Errorf("status = %q, want pending", resp.Status)
	}
	if resp.Total != "159.90" {
		t.Errorf("total = %q, want the server-side recomputed total", resp.Total)
	}
	if len(e.orders.attached) != 1 {
		t.Fatal("charge must be attached to the order")
	}
	if len(e.customers.customers) != 1 {
		t.Fatal("customer must be registered on first purchase")
	}
}

func TestCheckoutValidation(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/checkout", `{broken`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("broken body: status = %d", w.Code)
	}

	body := checkoutBody()
	body["items"] = []map[string]any{}
	w = e.do(http.MethodPost, "/api/checkout", body, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty items: status = %d", w.Code)
	}
}

func TestCheckoutStoreClosed(t *testing.T) {
	e := newEnv(t)
	e.srv.Settings.(*stubSettings).s.StoreOpen = false

	w := e.do(http.MethodPost, "/api/checkout", checkoutBody(), "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCheckoutChargeFailureKeepsOrderPending(t *testing.T) {
	e := newEnv(t)
	e.gateway.charge, e.gateway.chargeErr = nil, errors.New("provider down")

	w := e.do(http.MethodPost, "/api/checkout", checkoutBody(), "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		OrderID int64 `json:"order_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	st, err := e.orders.GetStatus(context.Background(), resp.OrderID)
	if err != nil {
		t.Fatalf("order must exist after failed charge: %v", err)
	}
	if st != order.StatusPending {
		t.Fatalf("status = %q, want pending", st)
	}
}

func TestOrderStatus(t *testing.T) {
	e := newEnv(t)
	o, _, _ := e.orders.Create(context.Background(), 1, order.CustomerSnapshot{}, nil)

	w := e.do(http.MethodGet, "/api/orders/101/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"pending"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	_ = o

	w = e.do(http.MethodGet, "/api/orders/9999/status", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing order: status = %d", w.Code)
	}
	w = e.do(http.MethodGet, "/api/orders/abc/status", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d", w.Code)
	}
}

func TestVerifyOrderMarksPaid(t *testing.T) {
	e := newEnv(t)
	o, _, _ := e.orders.Create(context.Background(), 1, order.CustomerSnapshot{}, []order.ItemInput{{ProductID: 1, Quantity: 2}})
	e.orders.AttachCharge(context.Background(), o.ID, "mercadopago", "ch-1", "qr")
	e.gateway.state = &payment.ChargeState{
		ID: "ch-1", Status: payment.StatusApproved, Amount: o.Total,
	}

	w := e.do(http.MethodPost, "/api/orders/101/verify", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"paid"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	if e.products.products[1].Stock != 8 {
		t.Fatalf("stock = %d, want 8 after selling 2", e.products.products[1].Stock)
	}
}

func TestVerifyOrderWithoutCharge(t *testing.T) {
	e := newEnv(t)
	e.orders.Create(context.Background(), 1, order.CustomerSnapshot{}, nil)

	w := e.do(http.MethodPost, "/api/orders/101/verify", nil, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCancelOrder(t *testing.T) {
	e := newEnv(t)
	o, _, _ := e.orders.Create(context.Background(), 1, order.CustomerSnapshot{}, nil)

	w := e.do(http.MethodPost, "/api/orders/101/cancel", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	// a second cancel, and cancel after paid, are both conflicts
	w = e.do(http.MethodPost, "/api/orders/101/cancel", nil, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("second cancel: status = %d", w.Code)
	}
	_ = o
}

func TestWebhookAlwaysAnswers200(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		path string
		body string
	}{
		{"/api/webhook", `{"type":"payment","data":{"id":"ch-unknown"}}`},
		{"/api/webhook", `garbage`},
		{"/api/webhook", `{"type":"merchant_order","data":{"id":"1"}}`},
		{"/api/webhook/pagbank", `{"pix":[{"txid":"tx-unknown"}]}`},
		{"/api/webhook/pagbank", `{}`},
	}
	for _, c := range cases {
		w := e.do(http.MethodPost, c.path, c.body, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s with %q: status = %d, want 200", c.path, c.body, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"received":true`) {
			t.Errorf("%s: body = %s", c.path, w.Body.String())
		}
	}

	for _, path := range []string{"/api/webhook", "/api/webhook/pagbank"} {
		w := e.do(http.MethodGet, path, nil, "")
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d", path, w.Code)
		}
	}
}

func TestWebhookReconcilesPayment(t *testing.T) {
	e := newEnv(t)
	o, _, _ := e.orders.Create(context.Background(), 1, order.CustomerSnapshot{}, []order.ItemInput{{ProductID: 1, Quantity: 3}})
	e.orders.AttachCharge(context.Background(), o.ID, "mercadopago", "ch-1", "qr")
	e.gateway.state = &payment.ChargeState{
		ID: "ch-1", Status: payment.StatusApproved, Amount: o.Total,
	}

	w := e.do(http.MethodPost, "/api/webhook", `{"type":"payment","data":{"id":"ch-1"}}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	st, _ := e.orders.GetStatus(context.Background(), o.ID)
	if st != order.StatusPaid {
		t.Fatalf("status = %q, want paid", st)
	}
	if e.products.products[1].Stock != 7 {
		t.Fatalf("stock = %d, want 7", e.products.products[1].Stock)
	}

	// duplicate delivery must not touch stock again
	w = e.do(http.MethodPost, "/api/webhook", `{"type":"payment","data":{"id":"ch-1"}}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d", w.Code)
	}
	if e.products.products[1].Stock != 7 {
		t.Fatalf("stock decremented twice: %d", e.products.products[1].Stock)
	}
}

func login(t *testing.T, e *env) string {
	t.Helper()
	w := e.do(http.MethodPost, "/api/admin/login", map[string]string{"user": "admin", "pass": "segredo"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("login response: %s", w.Body.String())
	}
	return resp.Token
}

func TestAdminLogin(t *testing.T) {
	e := newEnv(t)
	login(t, e)

	w := e.do(http.MethodPost, "/api/admin/login", map[string]string{"user": "admin", "pass": "errada"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status = %d", w.Code)
	}
	w = e.do(http.MethodPost, "/api/admin/login", map[string]string{"user": "outro", "pass": "segredo"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong user: status = %d", w.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/admin/sales", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}
	w = e.do(http.MethodGet, "/api/admin/sales", nil, "not-a-jwt")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d", w.Code)
	}

	token := login(t, e)
	w = e.do(http.MethodGet, "/api/admin/sales", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("with token: status = %d", w.Code)
	}
}

func TestAdminProductCRUD(t *testing.T) {
	e := newEnv(t)
	token := login(t, e)

	w := e.do(http.MethodPost, "/api/admin/products", map[string]any{
		"name": "Areia lavada", "price": "45.00", "stock": 30, "unit": "m3",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", w.Code, w.Body.String())
	}
	var created product.Product
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Code != "FAC00002" {
		t.Errorf("code = %q, want generated FAC00002", created.Code)
	}

	w = e.do(http.MethodPost, "/api/admin/products", map[string]any{
		"name": "Brita 1", "price": "52.00", "stock": 12, "unit": "m3",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("second create: status = %d, body %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Code != "FAC00003" {
		t.Errorf("second code = %q, want generated FAC00003", created.Code)
	}

	w = e.do(http.MethodPost, "/api/admin/products", map[string]any{"name": "Sem preço"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing price: status = %d", w.Code)
	}

	w = e.do(http.MethodPut, "/api/admin/products/1", map[string]any{"price": "89.90"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body %s", w.Code, w.Body.String())
	}
	if got := e.products.products[1].Price.StringFixed(2); got != "89.90" {
		t.Errorf("price = %s", got)
	}

	w = e.do(http.MethodDelete, "/api/admin/products/1", nil, token)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", w.Code)
	}
	w = e.do(http.MethodDelete, "/api/admin/products/1", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete again: status = %d", w.Code)
	}
}

func TestAdminSettings(t *testing.T) {
	e := newEnv(t)
	token := login(t, e)

	w := e.do(http.MethodPut, "/api/admin/settings", map[string]any{
		"gateway": "pagbank", "store_open": false,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("put: status = %d, body %s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodGet, "/api/admin/settings", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"pagbank"`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	w = e.do(http.MethodPut, "/api/admin/settings", map[string]any{"gateway": "paypal"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown gateway: status = %d", w.Code)
	}
}

func TestAdminManualConfirm(t *testing.T) {
	e := newEnv(t)
	token := login(t, e)
	o, _, _ := e.orders.Create(context.Background(), 1, order.CustomerSnapshot{}, []order.ItemInput{{ProductID: 1, Quantity: 1}})

	w := e.do(http.MethodPost, "/api/admin/orders/101/confirm", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	st, _ := e.orders.GetStatus(context.Background(), o.ID)
	if st != order.StatusPaid {
		t.Fatalf("status = %q", st)
	}

	w = e.do(http.MethodPost, "/api/admin/orders/9999/confirm", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing order: status = %d", w.Code)
	}
}

func TestListProductsPublic(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/products", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "FAC00001") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
