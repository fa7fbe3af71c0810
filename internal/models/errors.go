package models

import "tokopay/internal/apperr"

// Order aggregate failures.
var (
	ErrInvalidQuantity         = apperr.New(apperr.KindValidation, "invalid_quantity", "quantity must be a positive integer")
	ErrInsufficientStock       = apperr.New(apperr.KindValidation, "insufficient_stock", "insufficient stock")
	ErrInvalidStatus           = apperr.New(apperr.KindValidation, "invalid_status", "invalid order status")
	ErrInvalidTransition       = apperr.New(apperr.KindValidation, "invalid_transition", "invalid status transition")
	ErrEmptyOrderTerminal      = apperr.New(apperr.KindValidation, "empty_order_terminal", "an order without line items cannot enter a terminal status")
	ErrNoLineItems             = apperr.New(apperr.KindValidation, "no_line_items", "order must contain at least one line item")
	ErrDiscountExceedsSubtotal = apperr.New(apperr.KindValidation, "discount_exceeds_subtotal", "discount cannot exceed subtotal")
	ErrInvalidAdjustment       = apperr.New(apperr.KindValidation, "invalid_adjustment", "invalid financial adjustment")
	ErrTotalBelowPaidAmount    = apperr.New(apperr.KindValidation, "total_below_paid_amount", "order total cannot drop below the amount already paid")
	ErrOrderLocked             = apperr.New(apperr.KindValidation, "order_locked", "order can no longer be modified")
	ErrOrderClosed             = apperr.New(apperr.KindValidation, "order_closed", "order is closed")
	ErrOverpayment             = apperr.New(apperr.KindValidation, "overpayment", "payment exceeds the outstanding balance")
)

// Payment aggregate failures.
var (
	ErrInvalidMethod    = apperr.New(apperr.KindValidation, "invalid_method", "invalid payment method")
	ErrPaymentFinalized = apperr.New(apperr.KindConflict, "payment_finalized", "payment has already been finalized")
)

// Lookup failures.
var (
	ErrOrderNotFound   = apperr.New(apperr.KindNotFound, "order_not_found", "order not found")
	ErrPaymentNotFound = apperr.New(apperr.KindNotFound, "payment_not_found", "payment not found")
	ErrProductNotFound = apperr.New(apperr.KindNotFound, "product_not_found", "product not found")
	ErrUserNotFound    = apperr.New(apperr.KindNotFound, "user_not_found", "user not found")
)
