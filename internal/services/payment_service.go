package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tokopay/internal/apperr"
	"tokopay/internal/config"
	"tokopay/internal/events"
	"tokopay/internal/gateway"
	"tokopay/internal/models"
	"tokopay/internal/money"
	"tokopay/internal/repositories"

	"github.com/shopspring/decimal"
)

// InitiateInput requests a new payment against an order. A nil Amount asks for the whole
// open balance; empty Currency and Gateway use the configured defaults.
type InitiateInput struct {
	OrderID  string
	Amount   *decimal.Decimal
	Method   string
	Currency string
	Gateway  string
}

// PaymentService initiates gateway payments and reconciles their callbacks with orders.
type PaymentService struct {
	store    repositories.Store
	gateway  gateway.Gateway
	events   *events.Emitter
	logger   *slog.Logger
	currency string
	linkTTL  time.Duration
	now      func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(store repositories.Store, gw gateway.Gateway, emitter *events.Emitter, cfg config.GatewayConfig, logger *slog.Logger) *PaymentService {
	if emitter == nil {
		emitter = events.NewEmitter(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentService{
		store:    store,
		gateway:  gw,
		events:   emitter,
		logger:   logger,
		currency: cfg.Currency,
		linkTTL:  cfg.LinkTTL,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// GetPayment retrieves a payment by its ID.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return s.store.Payments().GetByID(ctx, id)
}

// ListOrderPayments returns every payment recorded against an order, oldest first.
func (s *PaymentService) ListOrderPayments(ctx context.Context, orderID string) ([]models.Payment, error) {
	if _, err := s.store.Orders().GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.Payments().ListByOrder(ctx, orderID)
}

// Initiate reserves part of the order's open balance for a new pending payment and asks the
// gateway for a payment link. The open balance excludes unexpired pending payments, so two
// concurrent initiations cannot both claim the same money.
func (s *PaymentService) Initiate(ctx context.Context, in InitiateInput) (*models.Payment, error) {
	method, err := models.ParsePaymentMethod(in.Method)
	if err != nil {
		return nil, err
	}
	if in.Gateway != "" && !strings.EqualFold(in.Gateway, s.gateway.Name()) {
		return nil, ErrUnsupportedGateway.Withf("%q", in.Gateway)
	}
	currency := s.currency
	if in.Currency != "" {
		currency = strings.ToUpper(in.Currency)
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency.Withf("%q", currency)
	}

	now := s.now()
	var (
		payment  *models.Payment
		customer *models.User
	)
	err = s.store.WithinTransaction(ctx, func(tx repositories.Store) error {
		order, err := tx.Orders().GetForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderStatusPaid {
			return ErrOrderAlreadyPaid
		}
		if !order.Status.Payable() {
			return ErrOrderNotPayable.Withf("order is %s", order.Status)
		}

		if in.Amount != nil {
			if !in.Amount.IsPositive() {
				return ErrInvalidAmount.Withf("amount must be positive")
			}
			if _, err := money.ToMinorUnits(*in.Amount); err != nil {
				return ErrInvalidAmount.Withf("%v", err)
			}
		}

		reserved, err := tx.Payments().ReservedAmount(ctx, order.ID, now)
		if err != nil {
			return err
		}
		open := order.OutstandingBalance().Sub(reserved)
		if !open.IsPositive() {
			return ErrInvalidAmount.Withf("nothing left to pay: outstanding %s, held by pending payments %s",
				order.OutstandingBalance().StringFixed(2), reserved.StringFixed(2))
		}

		amount := open
		if in.Amount != nil {
			amount = *in.Amount
			if amount.GreaterThan(open) {
				return ErrInvalidAmount.Withf("%s exceeds the open balance %s", amount.StringFixed(2), open.StringFixed(2))
			}
		}

		if user, err := tx.Users().GetByID(ctx, order.UserID); err == nil {
			customer = user
		}

		payment = models.NewPayment(order.ID, amount, currency, method, s.gateway.Name(), now.Add(s.linkTTL))
		return tx.Payments().Create(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	req := gateway.PaymentRequest{
		PaymentID: payment.ID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Method:    payment.Method,
		ExpiresAt: payment.ExpiresAt,
	}
	if customer != nil {
		req.CustomerName = customer.DisplayName()
		req.CustomerEmail = customer.Email
	}

	link, err := s.gateway.CreatePaymentRequest(ctx, req)
	if err != nil {
		s.logger.Error("payment gateway request failed", "payment_id", payment.ID, "order_id", payment.OrderID, "err", err)
		s.discard(ctx, payment)
		if apperr.KindOf(err) != apperr.KindGateway {
			err = apperr.ErrGateway.Wrap(err)
		}
		return nil, err
	}

	payment.AttachGatewayRequest(link.Reference, link.URL, link.Raw)
	if err := s.store.Payments().Save(ctx, payment); err != nil {
		s.logger.Error("failed to store gateway reference", "payment_id", payment.ID, "reference", link.Reference, "err", err)
		s.discard(ctx, payment)
		return nil, err
	}

	s.logger.Info("payment initiated", "payment_id", payment.ID, "order_id", payment.OrderID, "amount", payment.Amount.StringFixed(2), "reference", link.Reference)
	s.emitPayment(ctx, events.PaymentInitiated, payment)
	return payment, nil
}

// discard drops a pending payment whose gateway request did not complete, releasing the
// balance it reserved.
func (s *PaymentService) discard(ctx context.Context, payment *models.Payment) {
	if err := s.store.Payments().Delete(context.WithoutCancel(ctx), payment.ID); err != nil {
		s.logger.Error("failed to discard pending payment", "payment_id", payment.ID, "err", err)
	}
}

// Finalize reconciles a gateway callback. A payment changes state at most once: callbacks
// for a payment that is no longer pending return its current state unchanged.
func (s *PaymentService) Finalize(ctx context.Context, fields map[string]string) (*models.Payment, error) {
	cb, err := s.gateway.ParseCallback(fields)
	if err != nil {
		return nil, err
	}

	payment, err := s.store.Payments().GetByGatewayReference(ctx, cb.Reference)
	if err != nil {
		return nil, err
	}
	if payment.IsFinal() {
		s.logger.Info("callback for finalized payment ignored", "payment_id", payment.ID, "status", payment.Status)
		return payment, nil
	}

	if err := s.gateway.VerifyCallback(cb); err != nil {
		s.logger.Warn("callback verification failed", "payment_id", payment.ID, "reference", cb.Reference, "err", err)
		return nil, err
	}
	if cb.PaymentID != "" && cb.PaymentID != payment.ID {
		s.logger.Warn("callback reference does not match payment", "payment_id", payment.ID, "callback_payment_id", cb.PaymentID)
		return nil, gateway.ErrVerificationFailed.Withf("reference mismatch")
	}

	remote, err := s.gateway.FetchStatus(ctx, cb.Reference)
	if err != nil {
		s.logger.Error("payment status lookup failed", "payment_id", payment.ID, "reference", cb.Reference, "err", err)
		if apperr.KindOf(err) != apperr.KindGateway {
			err = apperr.ErrGateway.Wrap(err)
		}
		return nil, err
	}
	captured := remote.Captured()

	var (
		result      *models.Payment
		transitions bool
	)
	err = s.store.WithinTransaction(ctx, func(tx repositories.Store) error {
		p, err := tx.Payments().GetForUpdate(ctx, payment.ID)
		if err != nil {
			return err
		}
		result = p
		if p.IsFinal() {
			return nil
		}

		if err := p.Finalize(captured, cb.Raw, s.now()); err != nil {
			return err
		}
		if captured {
			order, err := tx.Orders().GetForUpdate(ctx, p.OrderID)
			if err != nil {
				return err
			}
			if err := order.ApplyPayment(p.Amount); err != nil {
				return err
			}
			if err := tx.Orders().Save(ctx, order); err != nil {
				return err
			}
		}
		transitions = true
		return tx.Payments().Save(ctx, p)
	})
	if err != nil {
		s.logger.Error("payment finalization failed", "payment_id", payment.ID, "err", err)
		return nil, err
	}

	if transitions {
		s.logger.Info("payment finalized", "payment_id", result.ID, "order_id", result.OrderID, "status", result.Status, "remote_status", remote.Status)
		s.emitPayment(ctx, events.PaymentFinalized, result)
	}
	return result, nil
}

func (s *PaymentService) emitPayment(ctx context.Context, eventType string, p *models.Payment) {
	amount := p.Amount
	s.events.Emit(ctx, events.Event{
		Type:      eventType,
		OrderID:   p.OrderID,
		PaymentID: p.ID,
		Status:    string(p.Status),
		Amount:    &amount,
	})
}
