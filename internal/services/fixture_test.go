package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"tokopay/internal/config"
	"tokopay/internal/events"
	"tokopay/internal/gateway"
	"tokopay/internal/models"
	"tokopay/internal/money"
	"tokopay/internal/repositories"
	"tokopay/internal/repositories/repotest"
	"tokopay/internal/services"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGateway is a mock implementation of gateway.Gateway. ParseCallback reads the plain
// "reference" and "payment_id" fields so tests can build callbacks directly.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "razorpay" }

func (m *MockGateway) CreatePaymentRequest(ctx context.Context, req gateway.PaymentRequest) (*gateway.PaymentLink, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(gateway.PaymentRequest) *gateway.PaymentLink); ok {
		return fn(req), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.PaymentLink), args.Error(1)
}

func (m *MockGateway) ParseCallback(fields map[string]string) (*gateway.Callback, error) {
	if fields["reference"] == "" {
		return nil, gateway.ErrInvalidCallback
	}
	return &gateway.Callback{
		Reference: fields["reference"],
		PaymentID: fields["payment_id"],
		Status:    fields["status"],
		Raw:       `{"reference":"` + fields["reference"] + `"}`,
	}, nil
}

func (m *MockGateway) VerifyCallback(cb *gateway.Callback) error {
	args := m.Called(cb.Reference)
	return args.Error(0)
}

func (m *MockGateway) FetchStatus(ctx context.Context, reference string) (*gateway.RemoteStatus, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RemoteStatus), args.Error(1)
}

func linkFor(req gateway.PaymentRequest) *gateway.PaymentLink {
	ref := "plink_" + req.PaymentID[:8]
	return &gateway.PaymentLink{Reference: ref, URL: "https://rzp.io/i/" + ref, Status: "created", Raw: `{"id":"` + ref + `"}`}
}

// recorder is an events.Publisher that remembers routing keys.
type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) Publish(_ context.Context, key string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.keys {
		if k == key {
			n++
		}
	}
	return n
}

type fixture struct {
	ctx      context.Context
	store    *repositories.GORMStore
	orders   *services.OrderService
	payments *services.PaymentService
	gw       *MockGateway
	pub      *recorder
	user     *models.User
	widget   *models.Product // 100.00, stock 10
	gadget   *models.Product // 50.00, stock 5
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, _ := repotest.NewStore(t)
	f := &fixture{
		ctx:   context.Background(),
		store: store,
		gw:    new(MockGateway),
		pub:   &recorder{},
		now:   time.Now(),
	}
	emitter := events.NewEmitter(f.pub, nil)
	f.orders = services.NewOrderService(store, emitter)
	f.payments = services.NewPaymentService(store, f.gw, emitter, config.GatewayConfig{
		Currency: "INR",
		LinkTTL:  30 * time.Minute,
	}, nil).WithClock(func() time.Time { return f.now })

	f.user = repotest.SeedUser(t, store)
	f.widget = repotest.SeedProduct(t, store, "Widget", "100.00", 10)
	f.gadget = repotest.SeedProduct(t, store, "Gadget", "50.00", 5)
	return f
}

// expectLinks makes every CreatePaymentRequest succeed.
func (f *fixture) expectLinks() {
	f.gw.On("CreatePaymentRequest", mock.Anything, mock.Anything).Return(linkFor, nil).Maybe()
}

// newOrder creates an order for 2 widgets and 1 gadget, total 250.00.
func (f *fixture) newOrder(t *testing.T) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(f.ctx, services.CreateOrderInput{
		UserID: f.user.ID,
		Items: []services.ItemRequest{
			{ProductID: f.widget.ID, Quantity: 2},
			{ProductID: f.gadget.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) initiate(t *testing.T, orderID, amount string) *models.Payment {
	t.Helper()
	in := services.InitiateInput{OrderID: orderID, Method: "upi"}
	if amount != "" {
		a := money.MustParse(amount)
		in.Amount = &a
	}
	p, err := f.payments.Initiate(f.ctx, in)
	require.NoError(t, err)
	return p
}

func (f *fixture) reload(t *testing.T, orderID string) *models.Order {
	t.Helper()
	order, err := f.store.Orders().GetByID(f.ctx, orderID)
	require.NoError(t, err)
	return order
}

func callbackFor(p *models.Payment) map[string]string {
	return map[string]string{"reference": p.Reference(), "payment_id": p.ID, "status": "paid"}
}
