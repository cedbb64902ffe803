package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/sponsorpay-system/internal/mandate"
	"github.com/mmeshcher/sponsorpay-system/internal/model"
	"github.com/mmeshcher/sponsorpay-system/internal/service"
)

type stubService struct {
	creation    *mandate.CartCreation
	creationErr error

	methodsResp []model.PaymentMethod
	methodsErr  error

	secretResp string
	secretErr  error

	processResult *mandate.PaymentResult
	processErr    error

	confirmResult *mandate.PaymentResult
	confirmErr    error

	txnResp model.Transaction
	txnErr  error

	receiptResp model.Receipt

	latestCart model.Cart
	latestErr  error

	emailResp *service.OutreachEmail
	emailErr  error

	recordedOpens []string
	recordOpenErr error

	statsResp *model.TrackingRecord
	statsErr  error

	summaryResp *model.TrackingSummary
	summaryErr  error
}

func (s *stubService) Tiers() []model.SponsorshipTier {
	return []model.SponsorshipTier{
		{Name: "Gold", Price: "$10,000"},
		{Name: "Silver", Price: "$5,000"},
		{Name: "Bronze", Price: "$2,500"},
	}
}

func (s *stubService) CreateCart(ctx context.Context, eventName, tier, price, userName, userEmail string) (*mandate.CartCreation, error) {
	return s.creation, s.creationErr
}

func (s *stubService) PaymentMethods(cartID string) ([]model.PaymentMethod, error) {
	return s.methodsResp, s.methodsErr
}

func (s *stubService) ClientSecret(cartID string) (string, error) {
	return s.secretResp, s.secretErr
}

func (s *stubService) ProcessPayment(cartID, paymentMethodID, otp string) (*mandate.PaymentResult, error) {
	return s.processResult, s.processErr
}

func (s *stubService) ConfirmPayment(cartID, paymentMethodID string) (*mandate.PaymentResult, error) {
	return s.confirmResult, s.confirmErr
}

func (s *stubService) Transaction(transactionID string) (model.Transaction, error) {
	return s.txnResp, s.txnErr
}

func (s *stubService) Receipt(transactionID string) (model.Receipt, error) {
	return s.receiptResp, s.txnErr
}

func (s *stubService) LatestCart() (model.Cart, error) {
	return s.latestCart, s.latestErr
}

func (s *stubService) FormatOutreachEmail(ctx context.Context, sponsorName, sponsorEmail, senderName, senderCompany, eventType string) (*service.OutreachEmail, error) {
	return s.emailResp, s.emailErr
}

func (s *stubService) RecordOpen(ctx context.Context, trackingID string) error {
	s.recordedOpens = append(s.recordedOpens, trackingID)
	return s.recordOpenErr
}

func (s *stubService) TrackingStats(ctx context.Context, trackingID string) (*model.TrackingRecord, error) {
	return s.statsResp, s.statsErr
}

func (s *stubService) AllTrackingStats(ctx context.Context) (*model.TrackingSummary, error) {
	return s.summaryResp, s.summaryErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	return NewHandler(svc, logger)
}

func decodeError(t *testing.T, body *bytes.Buffer) errorResponse {
	t.Helper()

	var resp errorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want ok", resp["status"])
	}
}

func TestGetTiers(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/tiers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string][]model.SponsorshipTier
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	tiers := resp["tiers"]
	if len(tiers) != 3 {
		t.Fatalf("len(tiers) = %d, want 3", len(tiers))
	}
	if tiers[0].Name != "Gold" || tiers[0].Price != "$10,000" {
		t.Errorf("unexpected first tier: %+v", tiers[0])
	}
}

func TestCreateCart(t *testing.T) {
	svc := &stubService{
		creation: &mandate.CartCreation{
			CartID: "cart_abc123def456",
			Cart:   model.Cart{CartID: "cart_abc123def456", Status: model.CartStatusCreated},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"event_name":"GopherCon","tier":"Gold","price":"$10,000","user_name":"Alex","user_email":"alex@example.com"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/create-cart", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp mandate.CartCreation
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.CartID != "cart_abc123def456" {
		t.Errorf("cart_id = %q, want cart_abc123def456", resp.CartID)
	}
}

func TestCreateCartMissingFields(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body := `{"event_name":"GopherCon","tier":"Gold"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/create-cart", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec.Body); resp.Error != "invalid_request" {
		t.Errorf("error code = %q, want invalid_request", resp.Error)
	}
}

func TestCreateCartInvalidJSON(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/create-cart", strings.NewReader("not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCreateCartGatewayDeclined(t *testing.T) {
	svc := &stubService{creationErr: mandate.ErrGateway}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"event_name":"GopherCon","tier":"Gold","price":"$10,000","user_name":"Alex","user_email":"alex@example.com"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/create-cart", strings.NewReader(body)))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
	if resp := decodeError(t, rec.Body); resp.Error != "payment_declined" {
		t.Errorf("error code = %q, want payment_declined", resp.Error)
	}
}

func TestGetPaymentMethods(t *testing.T) {
	svc := &stubService{
		methodsResp: []model.PaymentMethod{
			{ID: "pm_visa_4242", Brand: "visa", Last4: "4242"},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/payment-methods?cart_id=cart_abc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string][]model.PaymentMethod
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(resp["payment_methods"]) != 1 || resp["payment_methods"][0].ID != "pm_visa_4242" {
		t.Errorf("unexpected payment methods: %+v", resp["payment_methods"])
	}
}

func TestGetPaymentMethodsMissingCartID(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/payment-methods", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetPaymentMethodsUnknownCart(t *testing.T) {
	svc := &stubService{methodsErr: mandate.ErrCartNotFound}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/payment-methods?cart_id=cart_missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rec.Body); resp.Error != "not_found" {
		t.Errorf("error code = %q, want not_found", resp.Error)
	}
}

func TestGetClientSecret(t *testing.T) {
	svc := &stubService{secretResp: "pi_123_secret_456"}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/client-secret?cart_id=cart_abc", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["client_secret"] != "pi_123_secret_456" {
		t.Errorf("client_secret = %q, want pi_123_secret_456", resp["client_secret"])
	}
}

func TestGetClientSecretMockPolicy(t *testing.T) {
	svc := &stubService{secretErr: mandate.ErrNoClientSecret}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/client-secret?cart_id=cart_abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestProcessPayment(t *testing.T) {
	svc := &stubService{
		processResult: &mandate.PaymentResult{
			Success:       true,
			TransactionID: "txn_abc123def456",
			Receipt: model.Receipt{
				Amount: "$10,000.00",
				Status: "PAID",
			},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"cart_id":"cart_abc","payment_method_id":"pm_visa_4242","otp":"123"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp mandate.PaymentResult
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !resp.Success || resp.TransactionID != "txn_abc123def456" {
		t.Errorf("unexpected result: %+v", resp)
	}
	if resp.Receipt.Amount != "$10,000.00" {
		t.Errorf("receipt amount = %q, want $10,000.00", resp.Receipt.Amount)
	}
}

func TestProcessPaymentInvalidOTP(t *testing.T) {
	svc := &stubService{processErr: mandate.ErrInvalidOTP}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"cart_id":"cart_abc","payment_method_id":"pm_visa_4242","otp":"999"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rec.Body); resp.Error != "invalid_verification_code" {
		t.Errorf("error code = %q, want invalid_verification_code", resp.Error)
	}
}

func TestProcessPaymentCompletedCart(t *testing.T) {
	svc := &stubService{processErr: mandate.ErrCartCompleted}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"cart_id":"cart_abc","payment_method_id":"pm_visa_4242","otp":"123"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/process", strings.NewReader(body)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestConfirmPayment(t *testing.T) {
	svc := &stubService{
		confirmResult: &mandate.PaymentResult{
			Success:       true,
			TransactionID: "txn_gateway01",
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"cart_id":"cart_abc","payment_method_id":"pm_card_visa"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestConfirmPaymentWrongPolicy(t *testing.T) {
	svc := &stubService{confirmErr: mandate.ErrVerificationRequired}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"cart_id":"cart_abc","payment_method_id":"pm_card_visa"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/confirm", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetTransaction(t *testing.T) {
	svc := &stubService{
		txnResp: model.Transaction{
			TransactionID: "txn_abc123def456",
			Status:        "success",
		},
		receiptResp: model.Receipt{
			Amount:        "$5,000.00",
			PaymentMethod: "Card ending in 5555",
			Status:        "PAID",
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/transaction/txn_abc123def456", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp transactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Transaction.TransactionID != "txn_abc123def456" {
		t.Errorf("transaction id = %q", resp.Transaction.TransactionID)
	}
	if resp.Receipt.PaymentMethod != "Card ending in 5555" {
		t.Errorf("receipt payment method = %q", resp.Receipt.PaymentMethod)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	svc := &stubService{txnErr: mandate.ErrTransactionNotFound}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/transaction/txn_missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetLatestCartEmpty(t *testing.T) {
	svc := &stubService{latestErr: mandate.ErrNoCarts}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/latest-cart", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestFormatEmail(t *testing.T) {
	svc := &stubService{
		emailResp: &service.OutreachEmail{
			Subject:    "Collaboration opportunity with Acme",
			Body:       "Hello Jordan,",
			BodyHTML:   `<html><body><img src="http://localhost:8080/track/open/tid-1" /></body></html>`,
			TrackingID: "tid-1",
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"sponsor_name":"Jordan","sponsor_email":"jordan@example.com","sender_name":"Sam","sender_company":"Acme","event_type":"tech"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/email/format", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp service.OutreachEmail
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.TrackingID != "tid-1" {
		t.Errorf("tracking_id = %q, want tid-1", resp.TrackingID)
	}
	if !strings.Contains(resp.BodyHTML, "/track/open/tid-1") {
		t.Error("html body missing tracking pixel")
	}
}

func TestFormatEmailMissingSponsor(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body := `{"sender_name":"Sam","sender_company":"Acme"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/email/format", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetEmailStats(t *testing.T) {
	svc := &stubService{
		summaryResp: &model.TrackingSummary{
			TotalEmails: 4,
			TotalOpens:  1,
			OpenRate:    "25.0%",
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/email/stats", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", method, rec.Code, http.StatusOK)
		}

		var resp model.TrackingSummary
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if resp.OpenRate != "25.0%" {
			t.Errorf("open_rate = %q, want 25.0%%", resp.OpenRate)
		}
	}
}

func TestGetEmailStatsByIDUnknown(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/email/stats/unknown-id", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestTrackOpen(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/track/open/tid-42", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %q, want image/gif", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	if !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Error("body is not the tracking pixel")
	}
	if len(svc.recordedOpens) != 1 || svc.recordedOpens[0] != "tid-42" {
		t.Errorf("recorded opens = %v, want [tid-42]", svc.recordedOpens)
	}
}

func TestTrackOpenStorageErrorStillServesPixel(t *testing.T) {
	svc := &stubService{recordOpenErr: context.DeadlineExceeded}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/track/open/tid-err", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !bytes.Equal(rec.Body.Bytes(), pixelGIF) {
		t.Error("body is not the tracking pixel")
	}
}

func TestNotFoundRoute(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rec.Body); resp.Error != "not_found" {
		t.Errorf("error code = %q, want not_found", resp.Error)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/payments/tiers", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
