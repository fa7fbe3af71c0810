// Package gatewaytest runs an in-process stand-in for the Razorpay Payment Links API.
package gatewaytest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"tokopay/internal/config"
)

const KeyID = "rzp_test_key"

type link struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	Amount      int64  `json:"amount"`
	AmountPaid  int64  `json:"amount_paid"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	ShortURL    string `json:"short_url"`
}

// FakeRazorpay records created links and serves them back.
type FakeRazorpay struct {
	Server *httptest.Server
	Secret string

	mu         sync.Mutex
	links      map[string]*link
	seq        int
	failCreate bool
	failFetch  bool
	fetches    int
}

// NewFakeRazorpay starts the fake; it is closed when the test ends.
func NewFakeRazorpay(t testing.TB, secret string) *FakeRazorpay {
	f := &FakeRazorpay{Secret: secret, links: map[string]*link{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payment_links", f.create)
	mux.HandleFunc("GET /payment_links/{id}", f.fetch)
	f.Server = httptest.NewServer(f.auth(mux))
	t.Cleanup(f.Server.Close)
	return f
}

// Config points a gateway at the fake.
func (f *FakeRazorpay) Config() config.GatewayConfig {
	return config.GatewayConfig{
		Name:        "razorpay",
		KeyID:       KeyID,
		KeySecret:   f.Secret,
		BaseURL:     f.Server.URL,
		CallbackURL: "http://localhost:8080/api/v1/payments/callback/",
		Timeout:     2 * time.Second,
		Currency:    "INR",
		LinkTTL:     30 * time.Minute,
	}
}

// SetFailures makes the next create or fetch calls answer 500.
func (f *FakeRazorpay) SetFailures(create, fetch bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate, f.failFetch = create, fetch
}

// SetStatus changes what a later fetch of reference reports.
func (f *FakeRazorpay) SetStatus(reference, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.links[reference]; ok {
		l.Status = status
		if status == "paid" {
			l.AmountPaid = l.Amount
		}
	}
}

// Link returns the amount in paise and reference_id sent for reference.
func (f *FakeRazorpay) Link(reference string) (amount int64, referenceID string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[reference]
	if !ok {
		return 0, "", false
	}
	return l.Amount, l.ReferenceID, true
}

// Fetches counts status lookups.
func (f *FakeRazorpay) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// CallbackFields builds the signed redirect Razorpay sends after checkout.
func (f *FakeRazorpay) CallbackFields(reference, status string) map[string]string {
	f.mu.Lock()
	referenceID := ""
	if l, ok := f.links[reference]; ok {
		referenceID = l.ReferenceID
	}
	f.mu.Unlock()

	paymentID := "pay_" + reference
	mac := hmac.New(sha256.New, []byte(f.Secret))
	mac.Write([]byte(reference + "|" + referenceID + "|" + status + "|" + paymentID))
	return map[string]string{
		"razorpay_payment_id":                paymentID,
		"razorpay_payment_link_id":           reference,
		"razorpay_payment_link_reference_id": referenceID,
		"razorpay_payment_link_status":       status,
		"razorpay_signature":                 hex.EncodeToString(mac.Sum(nil)),
	}
}

func (f *FakeRazorpay) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != KeyID || pass != f.Secret {
			writeError(w, http.StatusUnauthorized, "BAD_REQUEST_ERROR", "Authentication failed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeRazorpay) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      int64  `json:"amount"`
		Currency    string `json:"currency"`
		ReferenceID string `json:"reference_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST_ERROR", err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "temporarily unavailable")
		return
	}
	f.seq++
	id := fmt.Sprintf("plink_test%04d", f.seq)
	l := &link{
		ID:          id,
		ReferenceID: req.ReferenceID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      "created",
		ShortURL:    "https://rzp.io/i/" + id,
	}
	f.links[id] = l
	writeJSON(w, http.StatusOK, l)
}

func (f *FakeRazorpay) fetch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.failFetch {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "temporarily unavailable")
		return
	}
	l, ok := f.links[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "BAD_REQUEST_ERROR", "The id provided does not exist")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "description": description}})
}
