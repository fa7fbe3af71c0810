package services

import "tokopay/internal/apperr"

// Order service failures.
var (
	ErrEmptyOrderCreation = apperr.New(apperr.KindValidation, "empty_order_creation", "an order must be created with at least one item")
	ErrNoItemsGiven       = apperr.New(apperr.KindValidation, "no_items_given", "at least one item is required")
	ErrUnknownProduct     = apperr.New(apperr.KindValidation, "unknown_product", "product does not exist")
	ErrUnknownUser        = apperr.New(apperr.KindValidation, "unknown_user", "user does not exist")
	ErrTotalBelowReserved = apperr.New(apperr.KindValidation, "total_below_reserved", "order total cannot drop below the amount held by pending payments")
)

// Payment service failures.
var (
	ErrOrderAlreadyPaid   = apperr.New(apperr.KindValidation, "order_already_paid", "order is already paid")
	ErrOrderNotPayable    = apperr.New(apperr.KindValidation, "order_not_payable", "order does not accept payments")
	ErrInvalidAmount      = apperr.New(apperr.KindValidation, "invalid_amount", "invalid payment amount")
	ErrInvalidCurrency    = apperr.New(apperr.KindValidation, "invalid_currency", "invalid currency")
	ErrUnsupportedGateway = apperr.New(apperr.KindValidation, "unsupported_gateway", "payment gateway is not supported")
)

// Auth service failures.
var (
	ErrUsernameTaken      = apperr.New(apperr.KindConflict, "username_taken", "username already taken")
	ErrEmailTaken         = apperr.New(apperr.KindConflict, "email_taken", "email already registered")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "invalid credentials")
	ErrInvalidToken       = apperr.New(apperr.KindUnauthorized, "invalid_token", "invalid or expired token")
)
