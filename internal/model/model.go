// Package model содержит доменные сущности сервиса sponsorpay.
package model

import "time"

// CartStatus описывает статус корзины спонсорства.
type CartStatus string

const (
	CartStatusCreated        CartStatus = "created"
	CartStatusPendingPayment CartStatus = "pending_payment"
	CartStatusCompleted      CartStatus = "completed"
)

// MandateKind описывает вид мандата AP2.
type MandateKind string

const (
	MandateKindIntent  MandateKind = "intent"
	MandateKindCart    MandateKind = "cart"
	MandateKindPayment MandateKind = "payment"
)

// Статусы мандатов на каждом шаге протокола.
const (
	MandateStatusPendingCart    = "pending_cart"
	MandateStatusPendingPayment = "pending_payment"
	MandateStatusCompleted      = "completed"
)

// Mandate объединяет три вида мандатов в общий тип-сумму.
// Конкретный вид определяется тегом MandateType.
type Mandate interface {
	Kind() MandateKind
}

// LineItem описывает одну позицию корзины.
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// IntentMandate фиксирует намерение пользователя оплатить спонсорство
// до выбора способа оплаты. После создания мандат не изменяется.
type IntentMandate struct {
	MandateType MandateKind `json:"mandate_type"`
	MandateID   string      `json:"mandate_id"`
	CreatedAt   time.Time   `json:"created_at"`
	UserName    string      `json:"user_name"`
	UserEmail   string      `json:"user_email"`
	EventName   string      `json:"event_name"`
	Tier        string      `json:"tier"`
	Amount      float64     `json:"amount"`
	Currency    string      `json:"currency"`
	Status      string      `json:"status"`
}

// Kind возвращает вид мандата.
func (IntentMandate) Kind() MandateKind { return MandateKindIntent }

// PaymentMethodRef содержит ссылку на выбранный способ оплаты внутри мандата.
type PaymentMethodRef struct {
	ID    string `json:"id"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4"`
}

// CartMandate фиксирует подтверждение пользователем состава корзины
// и выбранного способа оплаты.
type CartMandate struct {
	MandateType     MandateKind      `json:"mandate_type"`
	MandateID       string           `json:"mandate_id"`
	CreatedAt       time.Time        `json:"created_at"`
	CartID          string           `json:"cart_id"`
	IntentMandateID string           `json:"intent_mandate_id"`
	Items           []LineItem       `json:"items"`
	Total           float64          `json:"total"`
	Currency        string           `json:"currency"`
	PaymentMethod   PaymentMethodRef `json:"payment_method"`
	RequiresOTP     bool             `json:"requires_otp"`
	Status          string           `json:"status"`
}

// Kind возвращает вид мандата.
func (CartMandate) Kind() MandateKind { return MandateKindCart }

// PaymentMandate фиксирует исполненную транзакцию и ссылается
// на родительские мандаты.
type PaymentMandate struct {
	MandateType     MandateKind `json:"mandate_type"`
	MandateID       string      `json:"mandate_id"`
	CreatedAt       time.Time   `json:"created_at"`
	TransactionID   string      `json:"transaction_id"`
	CartID          string      `json:"cart_id"`
	CartMandateID   string      `json:"cart_mandate_id"`
	IntentMandateID string      `json:"intent_mandate_id"`
	Amount          float64     `json:"amount"`
	Currency        string      `json:"currency"`
	PaymentMethodID string      `json:"payment_method_id"`
	OTPVerified     bool        `json:"otp_verified"`
	AuthorizationID string      `json:"authorization_id,omitempty"`
	Status          string      `json:"status"`
}

// Kind возвращает вид мандата.
func (PaymentMandate) Kind() MandateKind { return MandateKindPayment }

// Cart описывает корзину спонсорства и привязанные к ней мандаты.
type Cart struct {
	CartID          string          `json:"cart_id"`
	IntentMandate   IntentMandate   `json:"intent_mandate"`
	CartMandate     *CartMandate    `json:"cart_mandate,omitempty"`
	PaymentMandate  *PaymentMandate `json:"payment_mandate,omitempty"`
	Items           []LineItem      `json:"items"`
	Total           float64         `json:"total"`
	Currency        string          `json:"currency"`
	Status          CartStatus      `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	AuthorizationID string          `json:"authorization_id,omitempty"`
}

// PaymentMethod описывает карту из каталога мок-провайдера.
type PaymentMethod struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Name     string `json:"name"`
}

// Transaction описывает завершённую оплату. Создаётся ровно один раз
// в момент успешного завершения корзины и после этого не изменяется.
type Transaction struct {
	TransactionID  string         `json:"transaction_id"`
	PaymentMandate PaymentMandate `json:"payment_mandate"`
	Cart           Cart           `json:"cart"`
	Status         string         `json:"status"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// Receipt — производное представление транзакции для показа пользователю.
// Не хранится: идентификатор квитанции генерируется заново на каждый запрос.
type Receipt struct {
	ReceiptID     string    `json:"receipt_id"`
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	SponsorName   string    `json:"sponsor_name"`
	SponsorEmail  string    `json:"sponsor_email"`
	EventName     string    `json:"event_name"`
	Tier          string    `json:"tier"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
}

// SponsorshipTier описывает уровень спонсорского пакета.
type SponsorshipTier struct {
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Benefits []string `json:"benefits"`
}

// ClickEvent описывает переход по ссылке из письма.
type ClickEvent struct {
	URL       string    `json:"url"`
	ClickedAt time.Time `json:"clicked_at"`
}

// TrackingRecord описывает статистику одного отправленного письма.
type TrackingRecord struct {
	TrackingID string       `json:"tracking_id"`
	Recipient  string       `json:"recipient"`
	Campaign   string       `json:"campaign_id"`
	SentAt     time.Time    `json:"sent_at"`
	Opened     bool         `json:"opened"`
	OpenedAt   *time.Time   `json:"opened_at"`
	OpenCount  int64        `json:"open_count"`
	ClickCount int64        `json:"click_count"`
	Clicks     []ClickEvent `json:"clicks"`
}

// TrackingSummary содержит сводную статистику по всем письмам.
type TrackingSummary struct {
	TotalEmails int                       `json:"total_emails"`
	TotalOpens  int                       `json:"total_opens"`
	TotalClicks int64                     `json:"total_clicks"`
	OpenRate    string                    `json:"open_rate"`
	ClickRate   string                    `json:"click_rate"`
	Emails      map[string]TrackingRecord `json:"emails"`
}
