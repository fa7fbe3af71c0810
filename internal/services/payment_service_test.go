package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tokopay/internal/apperr"
	"tokopay/internal/config"
	"tokopay/internal/events"
	"tokopay/internal/gateway"
	"tokopay/internal/models"
	"tokopay/internal/money"
	"tokopay/internal/repositories"
	"tokopay/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) remote(reference, status string) {
	f.gw.On("VerifyCallback", reference).Return(nil).Maybe()
	f.gw.On("FetchStatus", mock.Anything, reference).Return(&gateway.RemoteStatus{Reference: reference, Status: status}, nil).Maybe()
}

func TestInitiateDefaultsToOpenBalance(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	p := f.initiate(t, order.ID, "")
	assert.Equal(t, "250.00", p.Amount.StringFixed(2))
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, "INR", p.Currency)
	assert.Equal(t, "razorpay", p.GatewayName)
	assert.NotEmpty(t, p.Reference())
	assert.Equal(t, "https://rzp.io/i/"+p.Reference(), p.PaymentLink)
	assert.WithinDuration(t, f.now.Add(30*time.Minute), p.ExpiresAt, time.Second)

	stored, err := f.payments.GetPayment(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Reference(), stored.Reference())
	assert.Equal(t, 1, f.pub.count(events.PaymentInitiated))

	f.gw.AssertCalled(t, "CreatePaymentRequest", mock.Anything, mock.MatchedBy(func(req gateway.PaymentRequest) bool {
		return req.PaymentID == p.ID && req.Amount.Equal(money.MustParse("250.00")) && req.CustomerEmail == f.user.Email
	}))
}

func TestInitiateReservesBalance(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	f.initiate(t, order.ID, "100.00")
	second := f.initiate(t, order.ID, "")
	assert.Equal(t, "150.00", second.Amount.StringFixed(2))

	_, err := f.payments.Initiate(f.ctx, services.InitiateInput{OrderID: order.ID, Method: "card", Amount: dec("0.01")})
	assert.True(t, errors.Is(err, services.ErrInvalidAmount))

	// Reservations lapse with the payment link.
	f.now = f.now.Add(time.Hour)
	third := f.initiate(t, order.ID, "")
	assert.Equal(t, "250.00", third.Amount.StringFixed(2))
}

func TestInitiateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	tests := []struct {
		name string
		in   services.InitiateInput
		want error
	}{
		{"bad method", services.InitiateInput{OrderID: order.ID, Method: "cash"}, models.ErrInvalidMethod},
		{"zero amount", services.InitiateInput{OrderID: order.ID, Method: "upi", Amount: dec("0")}, services.ErrInvalidAmount},
		{"negative amount", services.InitiateInput{OrderID: order.ID, Method: "upi", Amount: dec("-5")}, services.ErrInvalidAmount},
		{"over balance", services.InitiateInput{OrderID: order.ID, Method: "upi", Amount: dec("250.01")}, services.ErrInvalidAmount},
		{"bad currency", services.InitiateInput{OrderID: order.ID, Method: "upi", Currency: "rupees"}, services.ErrInvalidCurrency},
		{"other gateway", services.InitiateInput{OrderID: order.ID, Method: "upi", Gateway: "stripe"}, services.ErrUnsupportedGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.Initiate(f.ctx, tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	_, err := f.payments.Initiate(f.ctx, services.InitiateInput{OrderID: "missing", Method: "upi"})
	assert.True(t, errors.Is(err, models.ErrOrderNotFound))

	// The order is looked up before the amount is judged.
	_, err = f.payments.Initiate(f.ctx, services.InitiateInput{OrderID: "missing", Method: "upi", Amount: dec("-1")})
	assert.True(t, errors.Is(err, models.ErrOrderNotFound), "got %v", err)

	payments, err := f.store.Payments().ListByOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

// failingSave is a Store whose payment repository cannot persist gateway references.
type failingSave struct {
	*repositories.GORMStore
}

func (s failingSave) Payments() repositories.PaymentRepository {
	return saveErrorRepository{s.GORMStore.Payments()}
}

type saveErrorRepository struct {
	repositories.PaymentRepository
}

func (saveErrorRepository) Save(context.Context, *models.Payment) error {
	return errors.New("disk full")
}

func TestInitiateStoreFailureReleasesReservation(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	svc := services.NewPaymentService(failingSave{f.store}, f.gw, nil, config.GatewayConfig{
		Currency: "INR",
		LinkTTL:  30 * time.Minute,
	}, nil)
	_, err := svc.Initiate(f.ctx, services.InitiateInput{OrderID: order.ID, Method: "upi"})
	require.Error(t, err)

	payments, err := f.store.Payments().ListByOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	// The whole balance is free again.
	p := f.initiate(t, order.ID, "")
	assert.Equal(t, "250.00", p.Amount.StringFixed(2))
}

func TestListOrderPayments(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	first := f.initiate(t, order.ID, "100.00")
	second := f.initiate(t, order.ID, "")

	payments, err := f.payments.ListOrderPayments(f.ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, first.ID, payments[0].ID)
	assert.Equal(t, second.ID, payments[1].ID)

	_, err = f.payments.ListOrderPayments(f.ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrOrderNotFound))
}

func TestEditAfterPartialPaymentOpensNewBalance(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	p := f.initiate(t, order.ID, "100.00")
	f.remote(p.Reference(), "paid")
	_, err := f.payments.Finalize(f.ctx, callbackFor(p))
	require.NoError(t, err)

	updated, err := f.orders.AddProducts(f.ctx, order.ID, []services.ItemRequest{{ProductID: f.widget.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, "350.00", updated.Total.StringFixed(2))
	assert.Equal(t, "100.00", updated.PaidAmount.StringFixed(2))
	assert.Equal(t, models.OrderStatusPartial, updated.Status)

	rest := f.initiate(t, order.ID, "")
	assert.Equal(t, "250.00", rest.Amount.StringFixed(2))
}

func TestEditAfterFullPaymentReopensOrder(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	p := f.initiate(t, order.ID, "")
	f.remote(p.Reference(), "paid")
	_, err := f.payments.Finalize(f.ctx, callbackFor(p))
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPaid, f.reload(t, order.ID).Status)

	updated, err := f.orders.AddProducts(f.ctx, order.ID, []services.ItemRequest{{ProductID: f.gadget.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPartial, updated.Status)
	assert.Equal(t, "50.00", updated.OutstandingBalance().StringFixed(2))

	rest := f.initiate(t, order.ID, "")
	assert.Equal(t, "50.00", rest.Amount.StringFixed(2))

	// Dropping below what was already paid stays forbidden.
	_, err = f.orders.UpdateOrder(f.ctx, order.ID, services.UpdateOrderInput{
		Items: []services.ItemRequest{{ProductID: f.widget.ID, Quantity: 1}},
	})
	assert.True(t, errors.Is(err, models.ErrTotalBelowPaidAmount), "got %v", err)
	assert.Equal(t, "300.00", f.reload(t, order.ID).Total.StringFixed(2))
}

func TestInitiateRejectsClosedOrders(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()

	paid := f.newOrder(t)
	p := f.initiate(t, paid.ID, "")
	f.remote(p.Reference(), "paid")
	_, err := f.payments.Finalize(f.ctx, callbackFor(p))
	require.NoError(t, err)

	_, err = f.payments.Initiate(f.ctx, services.InitiateInput{OrderID: paid.ID, Method: "upi"})
	assert.True(t, errors.Is(err, services.ErrOrderAlreadyPaid))

	cancelled := f.newOrder(t)
	_, err = f.orders.ChangeStatus(f.ctx, cancelled.ID, "cancelled")
	require.NoError(t, err)
	_, err = f.payments.Initiate(f.ctx, services.InitiateInput{OrderID: cancelled.ID, Method: "upi"})
	assert.True(t, errors.Is(err, services.ErrOrderNotPayable))
}

func TestInitiateGatewayFailureLeavesNoPayment(t *testing.T) {
	f := newFixture(t)
	order := f.newOrder(t)
	f.gw.On("CreatePaymentRequest", mock.Anything, mock.Anything).
		Return(nil, apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: 500 secret-detail"))).Once()

	_, err := f.payments.Initiate(f.ctx, services.InitiateInput{OrderID: order.ID, Method: "upi"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindGateway, apperr.KindOf(err))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.NotContains(t, appErr.PublicMessage(), "secret-detail")

	payments, err := f.store.Payments().ListByOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Zero(t, f.pub.count(events.PaymentInitiated))
}

func TestFinalizeFullPayment(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "")
	f.remote(p.Reference(), "paid")

	got, err := f.payments.Finalize(f.ctx, callbackFor(p))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccessful, got.Status)
	assert.NotNil(t, got.FinalizedAt)
	assert.Contains(t, got.RawGatewayPayload, p.Reference())

	stored := f.reload(t, order.ID)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
	assert.Equal(t, "250.00", stored.PaidAmount.StringFixed(2))
	assert.Equal(t, 1, f.pub.count(events.PaymentFinalized))
}

func TestFinalizePartialPayments(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)

	first := f.initiate(t, order.ID, "100.00")
	second := f.initiate(t, order.ID, "150.00")
	f.remote(first.Reference(), "captured")
	f.remote(second.Reference(), "paid")

	_, err := f.payments.Finalize(f.ctx, callbackFor(first))
	require.NoError(t, err)
	stored := f.reload(t, order.ID)
	assert.Equal(t, models.OrderStatusPartial, stored.Status)
	assert.Equal(t, "100.00", stored.PaidAmount.StringFixed(2))

	_, err = f.payments.Finalize(f.ctx, callbackFor(second))
	require.NoError(t, err)
	stored = f.reload(t, order.ID)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
	assert.Equal(t, "250.00", stored.PaidAmount.StringFixed(2))
}

func TestFinalizeFailedPaymentLeavesOrder(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "")
	f.remote(p.Reference(), "cancelled")

	got, err := f.payments.Finalize(f.ctx, callbackFor(p))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, got.Status)

	stored := f.reload(t, order.ID)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
	assert.Equal(t, "0.00", stored.PaidAmount.StringFixed(2))

	// A failed payment no longer holds the balance.
	retry := f.initiate(t, order.ID, "")
	assert.Equal(t, "250.00", retry.Amount.StringFixed(2))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "100.00")
	f.remote(p.Reference(), "paid")

	first, err := f.payments.Finalize(f.ctx, callbackFor(p))
	require.NoError(t, err)
	second, err := f.payments.Finalize(f.ctx, callbackFor(p))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.PaymentStatusSuccessful, second.Status)
	assert.Equal(t, "100.00", f.reload(t, order.ID).PaidAmount.StringFixed(2))
	assert.Equal(t, 1, f.pub.count(events.PaymentFinalized))
	f.gw.AssertNumberOfCalls(t, "FetchStatus", 1)
}

func TestFinalizeConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "100.00")
	f.remote(p.Reference(), "paid")

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.payments.Finalize(f.ctx, callbackFor(p))
			if err == nil && got.Status != models.PaymentStatusSuccessful {
				err = fmt.Errorf("unexpected status %s", got.Status)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	stored := f.reload(t, order.ID)
	assert.Equal(t, "100.00", stored.PaidAmount.StringFixed(2))
	assert.Equal(t, models.OrderStatusPartial, stored.Status)
	assert.Equal(t, 1, f.pub.count(events.PaymentFinalized))
}

func TestFinalizeVerificationFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "")
	f.gw.On("VerifyCallback", p.Reference()).Return(gateway.ErrVerificationFailed).Once()

	_, err := f.payments.Finalize(f.ctx, callbackFor(p))
	assert.Equal(t, apperr.KindVerification, apperr.KindOf(err))

	stored, err := f.payments.GetPayment(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	f.gw.AssertNotCalled(t, "FetchStatus", mock.Anything, mock.Anything)
}

func TestFinalizeRejectsMismatchedReference(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "")
	f.remote(p.Reference(), "paid")

	fields := callbackFor(p)
	fields["payment_id"] = "someone-elses-payment"
	_, err := f.payments.Finalize(f.ctx, fields)
	assert.True(t, errors.Is(err, gateway.ErrVerificationFailed))
}

func TestFinalizeStatusLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "")
	f.gw.On("VerifyCallback", p.Reference()).Return(nil)
	f.gw.On("FetchStatus", mock.Anything, p.Reference()).Return(nil, apperr.ErrGateway.Wrap(fmt.Errorf("timeout"))).Once()

	_, err := f.payments.Finalize(f.ctx, callbackFor(p))
	assert.Equal(t, apperr.KindGateway, apperr.KindOf(err))

	stored, err := f.payments.GetPayment(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Equal(t, "0.00", f.reload(t, order.ID).PaidAmount.StringFixed(2))
}

func TestFinalizeUnknownOrMissingReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.payments.Finalize(f.ctx, map[string]string{"reference": "plink_nope"})
	assert.True(t, errors.Is(err, models.ErrPaymentNotFound))

	_, err = f.payments.Finalize(f.ctx, map[string]string{})
	assert.True(t, errors.Is(err, gateway.ErrInvalidCallback))
}

func TestFinalizeAfterOrderCancelledRollsBack(t *testing.T) {
	f := newFixture(t)
	f.expectLinks()
	order := f.newOrder(t)
	p := f.initiate(t, order.ID, "")
	f.remote(p.Reference(), "paid")

	_, err := f.orders.ChangeStatus(f.ctx, order.ID, "cancelled")
	require.NoError(t, err)

	_, err = f.payments.Finalize(f.ctx, callbackFor(p))
	assert.True(t, errors.Is(err, models.ErrOrderClosed))

	stored, err := f.payments.GetPayment(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
}
