package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"tokopay/internal/apperr"
	"tokopay/internal/config"
	"tokopay/internal/money"
)

// Razorpay callback field names.
const (
	fieldPaymentID   = "razorpay_payment_id"
	fieldLinkID      = "razorpay_payment_link_id"
	fieldReferenceID = "razorpay_payment_link_reference_id"
	fieldLinkStatus  = "razorpay_payment_link_status"
	fieldSignature   = "razorpay_signature"
)

// Razorpay is the Gateway adapter for Razorpay Payment Links.
type Razorpay struct {
	keyID       string
	keySecret   string
	baseURL     string
	callbackURL string
	client      *http.Client
}

// NewRazorpay creates a Razorpay adapter. Every request is bounded by cfg.Timeout.
func NewRazorpay(cfg config.GatewayConfig) *Razorpay {
	return &Razorpay{
		keyID:       cfg.KeyID,
		keySecret:   cfg.KeySecret,
		baseURL:     cfg.BaseURL,
		callbackURL: cfg.CallbackURL,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

type razorpayCustomer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type razorpayNotify struct {
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
}

type razorpayLinkRequest struct {
	Amount         int64            `json:"amount"`
	Currency       string           `json:"currency"`
	ReferenceID    string           `json:"reference_id"`
	Description    string           `json:"description"`
	Customer       razorpayCustomer `json:"customer"`
	Notify         razorpayNotify   `json:"notify"`
	ReminderEnable bool             `json:"reminder_enable"`
	CallbackURL    string           `json:"callback_url,omitempty"`
	CallbackMethod string           `json:"callback_method,omitempty"`
	ExpireBy       int64            `json:"expire_by,omitempty"`
}

type razorpayLink struct {
	ID         string `json:"id"`
	ShortURL   string `json:"short_url"`
	Status     string `json:"status"`
	AmountPaid int64  `json:"amount_paid"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreatePaymentRequest creates a hosted payment link whose reference_id is our payment id.
func (r *Razorpay) CreatePaymentRequest(ctx context.Context, req PaymentRequest) (*PaymentLink, error) {
	amount, err := money.ToMinorUnits(req.Amount)
	if err != nil {
		return nil, apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: %w", err))
	}

	body := razorpayLinkRequest{
		Amount:         amount,
		Currency:       req.Currency,
		ReferenceID:    req.PaymentID,
		Description:    fmt.Sprintf("Payment for Order #%s", req.OrderID),
		Customer:       razorpayCustomer{Name: req.CustomerName, Email: req.CustomerEmail},
		Notify:         razorpayNotify{SMS: true, Email: true},
		ReminderEnable: true,
		CallbackURL:    r.callbackURL,
		CallbackMethod: "get",
	}
	if !req.ExpiresAt.IsZero() {
		body.ExpireBy = req.ExpiresAt.Unix()
	}

	var link razorpayLink
	raw, err := r.do(ctx, http.MethodPost, "/payment_links", body, &link)
	if err != nil {
		return nil, err
	}
	if link.ID == "" {
		return nil, apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: payment link response has no id"))
	}
	return &PaymentLink{Reference: link.ID, URL: link.ShortURL, Status: link.Status, Raw: raw}, nil
}

// ParseCallback implements Gateway.
func (r *Razorpay) ParseCallback(fields map[string]string) (*Callback, error) {
	if fields[fieldLinkID] == "" {
		return nil, ErrInvalidCallback
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("razorpay: encode callback: %w", err)
	}
	return &Callback{
		Reference:        fields[fieldLinkID],
		PaymentID:        fields[fieldReferenceID],
		GatewayPaymentID: fields[fieldPaymentID],
		Status:           fields[fieldLinkStatus],
		Signature:        fields[fieldSignature],
		Raw:              string(raw),
	}, nil
}

// VerifyCallback checks the HMAC-SHA256 of link_id|reference_id|status|payment_id.
func (r *Razorpay) VerifyCallback(cb *Callback) error {
	if cb.Signature == "" {
		return ErrVerificationFailed.Withf("signature missing")
	}
	payload := cb.Reference + "|" + cb.PaymentID + "|" + cb.Status + "|" + cb.GatewayPaymentID
	if !hmac.Equal([]byte(r.sign(payload)), []byte(cb.Signature)) {
		return ErrVerificationFailed
	}
	return nil
}

func (r *Razorpay) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(r.keySecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// FetchStatus reads the payment link back from Razorpay.
func (r *Razorpay) FetchStatus(ctx context.Context, reference string) (*RemoteStatus, error) {
	var link razorpayLink
	raw, err := r.do(ctx, http.MethodGet, "/payment_links/"+url.PathEscape(reference), nil, &link)
	if err != nil {
		return nil, err
	}
	return &RemoteStatus{
		Reference:  link.ID,
		Status:     link.Status,
		AmountPaid: money.FromMinorUnits(link.AmountPaid),
		Raw:        raw,
	}, nil
}

// do sends one authenticated request and decodes a 2xx body into out. All failures come
// back as gateway errors.
func (r *Razorpay) do(ctx context.Context, method, path string, in, out any) (string, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return "", apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: marshal request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return "", apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: create request: %w", err))
	}
	req.SetBasicAuth(r.keyID, r.keySecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: %s %s: %w", method, path, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var rzErr razorpayError
		_ = json.Unmarshal(body, &rzErr)
		return "", apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: %s %s returned %d: %s %s",
			method, path, resp.StatusCode, rzErr.Error.Code, rzErr.Error.Description))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return "", apperr.ErrGateway.Wrap(fmt.Errorf("razorpay: decode response: %w", err))
	}
	return string(body), nil
}
