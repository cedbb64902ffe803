// Package service реализует бизнес-логику сервиса sponsorpay:
// фасад платёжного протокола и формирование писем с трекингом.
package service

import (
	"context"
	"fmt"

	"github.com/mmeshcher/sponsorpay-system/internal/mandate"
	"github.com/mmeshcher/sponsorpay-system/internal/model"
)

// MandateStore описывает контракт хранилища мандатов, используемый фасадом.
type MandateStore interface {
	CreateIntentMandate(ctx context.Context, req mandate.CreateIntentRequest) (*mandate.CartCreation, error)
	PaymentMethods(cartID string) ([]model.PaymentMethod, error)
	ClientSecret(cartID string) (string, error)
	CreateCartMandate(cartID, paymentMethodID string) (*model.CartMandate, error)
	ProcessPayment(cartID, paymentMethodID, otp string) (*mandate.PaymentResult, error)
	ConfirmPayment(cartID, paymentMethodID string) (*mandate.PaymentResult, error)
	Transaction(transactionID string) (model.Transaction, error)
	Receipt(transactionID string) (model.Receipt, error)
	LatestCart() (model.Cart, error)
}

// TrackingLedger описывает контракт журнала трекинга, используемый фасадом.
type TrackingLedger interface {
	Close() error
	CreateTrackingID(ctx context.Context, recipient, campaign string) (string, error)
	RecordOpen(ctx context.Context, trackingID string) error
	Stats(ctx context.Context, trackingID string) (*model.TrackingRecord, error)
	AllStats(ctx context.Context) (*model.TrackingSummary, error)
}

// Service содержит бизнес-логику сервиса sponsorpay. Собственного состояния
// не несёт: всё хранится в хранилище мандатов и журнале трекинга.
type Service struct {
	store   MandateStore
	ledger  TrackingLedger
	baseURL string
}

// NewService создаёт сервис с указанными хранилищем мандатов и журналом трекинга.
// baseURL — публичный адрес сервиса для пиксельных ссылок в письмах.
func NewService(store MandateStore, ledger TrackingLedger, baseURL string) *Service {
	return &Service{
		store:   store,
		ledger:  ledger,
		baseURL: baseURL,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.ledger != nil {
		return s.ledger.Close()
	}
	return nil
}

// Tiers возвращает каталог спонсорских пакетов.
func (s *Service) Tiers() []model.SponsorshipTier {
	return []model.SponsorshipTier{
		{
			Name:  "Gold",
			Price: "$10,000",
			Benefits: []string{
				"Logo prominently displayed on main stage",
				"5 exhibition booth spaces",
				"10 complimentary tickets",
				"Featured in all promotional materials",
				"Speaking opportunity at event",
			},
		},
		{
			Name:  "Silver",
			Price: "$5,000",
			Benefits: []string{
				"Logo on event website",
				"2 exhibition booth spaces",
				"5 complimentary tickets",
				"Mentioned in email campaigns",
			},
		},
		{
			Name:  "Bronze",
			Price: "$2,500",
			Benefits: []string{
				"Logo on event materials",
				"1 exhibition booth space",
				"2 complimentary tickets",
			},
		},
	}
}

// CreateCart создаёт корзину спонсорства с intent-мандатом.
func (s *Service) CreateCart(ctx context.Context, eventName, tier, price, userName, userEmail string) (*mandate.CartCreation, error) {
	return s.store.CreateIntentMandate(ctx, mandate.CreateIntentRequest{
		EventName: eventName,
		Tier:      tier,
		Price:     price,
		UserName:  userName,
		UserEmail: userEmail,
	})
}

// PaymentMethods возвращает доступные способы оплаты для корзины.
func (s *Service) PaymentMethods(cartID string) ([]model.PaymentMethod, error) {
	return s.store.PaymentMethods(cartID)
}

// ClientSecret возвращает клиентский токен шлюза для завершения оплаты.
func (s *Service) ClientSecret(cartID string) (string, error) {
	return s.store.ClientSecret(cartID)
}

// ProcessPayment фиксирует cart-мандат и завершает оплату по коду подтверждения.
func (s *Service) ProcessPayment(cartID, paymentMethodID, otp string) (*mandate.PaymentResult, error) {
	if _, err := s.store.CreateCartMandate(cartID, paymentMethodID); err != nil {
		return nil, err
	}
	return s.store.ProcessPayment(cartID, paymentMethodID, otp)
}

// ConfirmPayment фиксирует завершение оплаты, подтверждённой внешним шлюзом.
func (s *Service) ConfirmPayment(cartID, paymentMethodID string) (*mandate.PaymentResult, error) {
	return s.store.ConfirmPayment(cartID, paymentMethodID)
}

// Transaction возвращает транзакцию по идентификатору.
func (s *Service) Transaction(transactionID string) (model.Transaction, error) {
	return s.store.Transaction(transactionID)
}

// Receipt строит чек по завершённой транзакции.
func (s *Service) Receipt(transactionID string) (model.Receipt, error) {
	return s.store.Receipt(transactionID)
}

// LatestCart возвращает последнюю созданную корзину.
func (s *Service) LatestCart() (model.Cart, error) {
	return s.store.LatestCart()
}

const outreachCampaign = "sponsor_outreach"

// OutreachEmail — подготовленное письмо спонсору с пикселем трекинга.
type OutreachEmail struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	BodyHTML   string `json:"body_html"`
	TrackingID string `json:"tracking_id"`
}

// FormatOutreachEmail готовит письмо спонсору: выдаёт идентификатор трекинга
// и встраивает пиксель открытия в HTML-версию.
func (s *Service) FormatOutreachEmail(ctx context.Context, sponsorName, sponsorEmail, senderName, senderCompany, eventType string) (*OutreachEmail, error) {
	trackingID, err := s.ledger.CreateTrackingID(ctx, sponsorEmail, outreachCampaign)
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Collaboration opportunity with %s", senderCompany)

	body := fmt.Sprintf(`Hello %s,

My name is %s and I'm with %s.

I'm reaching out about an exciting %s event we're organizing. I believe there could be a great partnership opportunity here.

Would you be open to a brief conversation next week to explore this?

Best regards,
%s
%s`, sponsorName, senderName, senderCompany, eventType, senderName, senderCompany)

	pixel := fmt.Sprintf(`<img src="%s/track/open/%s" width="1" height="1" style="display:none;" alt="" />`, s.baseURL, trackingID)

	bodyHTML := fmt.Sprintf(`<html><body>
<p>Hello %s,</p>
<p>My name is %s and I'm with %s.</p>
<p>I'm reaching out about an exciting %s event we're organizing.
I believe there could be a great partnership opportunity here.</p>
<p>Would you be open to a brief conversation next week to explore this?</p>
<p>Best regards,<br>
%s<br>
%s</p>
%s
</body></html>`, sponsorName, senderName, senderCompany, eventType, senderName, senderCompany, pixel)

	return &OutreachEmail{
		Subject:    subject,
		Body:       body,
		BodyHTML:   bodyHTML,
		TrackingID: trackingID,
	}, nil
}

// RecordOpen фиксирует открытие письма по идентификатору трекинга.
func (s *Service) RecordOpen(ctx context.Context, trackingID string) error {
	return s.ledger.RecordOpen(ctx, trackingID)
}

// TrackingStats возвращает статистику по одному письму или nil, если
// идентификатор неизвестен.
func (s *Service) TrackingStats(ctx context.Context, trackingID string) (*model.TrackingRecord, error) {
	return s.ledger.Stats(ctx, trackingID)
}

// AllTrackingStats возвращает сводную статистику по всем письмам.
func (s *Service) AllTrackingStats(ctx context.Context) (*model.TrackingSummary, error) {
	return s.ledger.AllStats(ctx)
}
