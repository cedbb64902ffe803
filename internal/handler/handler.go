// Package handler содержит HTTP-обработчики API сервиса sponsorpay.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/sponsorpay-system/internal/mandate"
	"github.com/mmeshcher/sponsorpay-system/internal/model"
	"github.com/mmeshcher/sponsorpay-system/internal/service"
	"github.com/mmeshcher/sponsorpay-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Tiers() []model.SponsorshipTier
	CreateCart(ctx context.Context, eventName, tier, price, userName, userEmail string) (*mandate.CartCreation, error)
	PaymentMethods(cartID string) ([]model.PaymentMethod, error)
	ClientSecret(cartID string) (string, error)
	ProcessPayment(cartID, paymentMethodID, otp string) (*mandate.PaymentResult, error)
	ConfirmPayment(cartID, paymentMethodID string) (*mandate.PaymentResult, error)
	Transaction(transactionID string) (model.Transaction, error)
	Receipt(transactionID string) (model.Receipt, error)
	LatestCart() (model.Cart, error)
	FormatOutreachEmail(ctx context.Context, sponsorName, sponsorEmail, senderName, senderCompany, eventType string) (*service.OutreachEmail, error)
	RecordOpen(ctx context.Context, trackingID string) error
	TrackingStats(ctx context.Context, trackingID string) (*model.TrackingRecord, error)
	AllTrackingStats(ctx context.Context) (*model.TrackingSummary, error)
}

// Handler реализует HTTP-обработчики API сервиса sponsorpay.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeServiceError транслирует типизированные ошибки бизнес-логики в HTTP-статусы.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validation.ErrAmountInvalid),
		errors.Is(err, validation.ErrAmountTooSmall),
		errors.Is(err, validation.ErrAmountTooLarge):
		h.writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, mandate.ErrInvalidOTP):
		h.writeError(w, http.StatusBadRequest, "invalid_verification_code", err.Error())
	case errors.Is(err, mandate.ErrPaymentMethodNotFound):
		h.writeError(w, http.StatusBadRequest, "payment_method_not_found", err.Error())
	case errors.Is(err, mandate.ErrConfirmationRequired),
		errors.Is(err, mandate.ErrVerificationRequired),
		errors.Is(err, mandate.ErrNoClientSecret):
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, mandate.ErrGateway):
		h.writeError(w, http.StatusPaymentRequired, "payment_declined", err.Error())
	case errors.Is(err, mandate.ErrCartNotFound),
		errors.Is(err, mandate.ErrTransactionNotFound),
		errors.Is(err, mandate.ErrNoCarts):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, mandate.ErrCartCompleted):
		h.writeError(w, http.StatusConflict, "cart_completed", err.Error())
	default:
		h.logger.Error("service error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// Health сообщает о готовности сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetTiers возвращает каталог спонсорских пакетов.
func (h *Handler) GetTiers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]model.SponsorshipTier{
		"tiers": h.service.Tiers(),
	})
}

type createCartRequest struct {
	EventName string `json:"event_name"`
	Tier      string `json:"tier"`
	Price     string `json:"price"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// CreateCart создаёт корзину спонсорства с intent-мандатом.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.EventName == "" || req.Tier == "" || req.Price == "" || req.UserName == "" || req.UserEmail == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "all fields are required")
		return
	}

	creation, err := h.service.CreateCart(r.Context(), req.EventName, req.Tier, req.Price, req.UserName, req.UserEmail)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, creation)
}

// GetPaymentMethods возвращает доступные способы оплаты для корзины.
func (h *Handler) GetPaymentMethods(w http.ResponseWriter, r *http.Request) {
	cartID := r.URL.Query().Get("cart_id")
	if cartID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "cart_id is required")
		return
	}

	methods, err := h.service.PaymentMethods(cartID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string][]model.PaymentMethod{
		"payment_methods": methods,
	})
}

// GetClientSecret возвращает клиентский токен шлюза для корзины.
func (h *Handler) GetClientSecret(w http.ResponseWriter, r *http.Request) {
	cartID := r.URL.Query().Get("cart_id")
	if cartID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "cart_id is required")
		return
	}

	secret, err := h.service.ClientSecret(cartID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"client_secret": secret})
}

type processPaymentRequest struct {
	CartID          string `json:"cart_id"`
	PaymentMethodID string `json:"payment_method_id"`
	OTP             string `json:"otp"`
}

// ProcessPayment завершает оплату по коду подтверждения.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.CartID == "" || req.PaymentMethodID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "cart_id and payment_method_id are required")
		return
	}

	result, err := h.service.ProcessPayment(req.CartID, req.PaymentMethodID, req.OTP)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type confirmPaymentRequest struct {
	CartID          string `json:"cart_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// ConfirmPayment фиксирует оплату, подтверждённую внешним шлюзом.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.CartID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "cart_id is required")
		return
	}

	result, err := h.service.ConfirmPayment(req.CartID, req.PaymentMethodID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type transactionResponse struct {
	Transaction model.Transaction `json:"transaction"`
	Receipt     model.Receipt     `json:"receipt"`
}

// GetTransaction возвращает транзакцию и чек по идентификатору.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "id")

	txn, err := h.service.Transaction(transactionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	receipt, err := h.service.Receipt(transactionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transactionResponse{
		Transaction: txn,
		Receipt:     receipt,
	})
}

// GetLatestCart возвращает последнюю созданную корзину.
func (h *Handler) GetLatestCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.service.LatestCart()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, cart)
}

type formatEmailRequest struct {
	SponsorName   string `json:"sponsor_name"`
	SponsorEmail  string `json:"sponsor_email"`
	SenderName    string `json:"sender_name"`
	SenderCompany string `json:"sender_company"`
	EventType     string `json:"event_type"`
}

// FormatEmail готовит письмо спонсору с пикселем трекинга.
func (h *Handler) FormatEmail(w http.ResponseWriter, r *http.Request) {
	var req formatEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.SponsorName == "" || req.SponsorEmail == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "sponsor_name and sponsor_email are required")
		return
	}

	email, err := h.service.FormatOutreachEmail(r.Context(),
		req.SponsorName, req.SponsorEmail, req.SenderName, req.SenderCompany, req.EventType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, email)
}

// GetEmailStats возвращает сводную статистику по всем письмам.
func (h *Handler) GetEmailStats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.AllTrackingStats(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// GetEmailStatsByID возвращает статистику по одному письму.
func (h *Handler) GetEmailStatsByID(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	record, err := h.service.TrackingStats(r.Context(), trackingID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if record == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "tracking id not found")
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// Прозрачный GIF 1x1 для пикселя трекинга.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackOpen фиксирует открытие письма и отдаёт пиксель. Всегда отвечает 200,
// чтобы почтовый клиент не показывал битую картинку.
func (h *Handler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	if err := h.service.RecordOpen(r.Context(), trackingID); err != nil {
		h.logger.Error("record open error", zap.Error(err), zap.String("trackingID", trackingID))
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}
