// Package mandate реализует ядро платёжного протокола AP2:
// intent-мандат → cart-мандат → payment-мандат → транзакция с квитанцией.
//
// Одно и то же хранилище обслуживает обе политики оплаты. Мок-политика
// предлагает фиксированный каталог карт и проверяет одноразовый код.
// Шлюзовая политика открывает внешнюю авторизацию списания при создании
// корзины и завершает оплату подтверждением уже авторизованного списания.
package mandate

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/sponsorpay-system/internal/model"
	"github.com/mmeshcher/sponsorpay-system/internal/validation"
)

// ErrCartNotFound возвращается при обращении к неизвестной корзине.
var (
	ErrCartNotFound = errors.New("cart not found")
	// ErrTransactionNotFound возвращается при обращении к неизвестной транзакции.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrNoCarts возвращается, если ещё не создано ни одной корзины.
	ErrNoCarts = errors.New("no carts created yet")
	// ErrPaymentMethodNotFound возвращается для неизвестного способа оплаты из каталога.
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	// ErrInvalidOTP возвращается при неверном коде подтверждения.
	ErrInvalidOTP = errors.New("invalid verification code, use '123' for demo")
	// ErrCartCompleted возвращается при повторной попытке завершить оплаченную корзину.
	ErrCartCompleted = errors.New("cart already completed")
	// ErrNoClientSecret возвращается, если у политики нет клиентского токена шлюза.
	ErrNoClientSecret = errors.New("client secret is not available for this payment provider")
	// ErrConfirmationRequired возвращается при попытке пройти мок-проверку кода
	// на шлюзовой политике.
	ErrConfirmationRequired = errors.New("payment must be confirmed with the gateway provider")
	// ErrVerificationRequired возвращается при попытке шлюзового подтверждения
	// на мок-политике.
	ErrVerificationRequired = errors.New("payment requires verification code")
	// ErrGateway оборачивает любой сбой внешнего платёжного шлюза.
	ErrGateway = errors.New("payment gateway error")
)

const (
	currencyISO   = "USD"
	currencyMinor = "usd"

	authorizationTimeout = 15 * time.Second
)

// AuthorizationRequest описывает параметры открытия внешней авторизации списания.
type AuthorizationRequest struct {
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Authorization описывает открытую авторизацию на стороне шлюза.
type Authorization struct {
	ID           string
	ClientSecret string
}

// ChargeAuthorizer описывает внешнюю способность авторизовать списание.
// Хранилище не владеет логикой повторов шлюза: сбой авторизации — финальный.
type ChargeAuthorizer interface {
	OpenAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
}

// CreateIntentRequest содержит параметры создания intent-мандата.
type CreateIntentRequest struct {
	EventName string
	Tier      string
	Price     string
	UserName  string
	UserEmail string
}

// CartCreation — результат создания корзины с intent-мандатом.
type CartCreation struct {
	CartID        string              `json:"cart_id"`
	IntentMandate model.IntentMandate `json:"intent_mandate"`
	Cart          model.Cart          `json:"cart"`
	ClientSecret  string              `json:"client_secret,omitempty"`
}

// PaymentResult — результат успешного завершения оплаты.
type PaymentResult struct {
	Success        bool                 `json:"success"`
	TransactionID  string               `json:"transaction_id"`
	PaymentMandate model.PaymentMandate `json:"payment_mandate"`
	Receipt        model.Receipt        `json:"receipt"`
}

type cartState struct {
	mu           sync.Mutex
	cart         model.Cart
	totalCents   int64
	clientSecret string
}

type txnRecord struct {
	txn         model.Transaction
	amountCents int64
}

// Store хранит корзины, мандаты и транзакции в памяти процесса.
// Доступ к картам защищён общим RWMutex, изменения одной корзины
// сериализуются её собственным мьютексом, поэтому операции над разными
// корзинами не конкурируют между собой.
type Store struct {
	mu           sync.RWMutex
	carts        map[string]*cartState
	transactions map[string]*txnRecord
	latestCartID string

	authorizer ChargeAuthorizer
	methods    []model.PaymentMethod
	otpCodes   map[string]struct{}
}

// NewMockStore создаёт хранилище мандатов с мок-политикой оплаты:
// фиксированный каталог карт и проверка демонстрационного кода.
func NewMockStore() *Store {
	return &Store{
		carts:        make(map[string]*cartState),
		transactions: make(map[string]*txnRecord),
		methods: []model.PaymentMethod{
			{ID: "pm_visa_4242", Type: "card", Brand: "Visa", Last4: "4242", ExpMonth: 12, ExpYear: 2026, Name: "Test User"},
			{ID: "pm_mastercard_5555", Type: "card", Brand: "Mastercard", Last4: "5555", ExpMonth: 10, ExpYear: 2027, Name: "Test User"},
			{ID: "pm_amex_3782", Type: "card", Brand: "American Express", Last4: "3782", ExpMonth: 6, ExpYear: 2025, Name: "Test User"},
		},
		otpCodes: map[string]struct{}{
			"123":    {},
			"000000": {},
		},
	}
}

// NewGatewayStore создаёт хранилище мандатов поверх внешнего платёжного шлюза.
func NewGatewayStore(authorizer ChargeAuthorizer) *Store {
	return &Store{
		carts:        make(map[string]*cartState),
		transactions: make(map[string]*txnRecord),
		authorizer:   authorizer,
	}
}

// CreateIntentMandate разбирает строку суммы, проверяет границы и создаёт
// корзину с intent-мандатом. На шлюзовой политике внешняя авторизация
// открывается до записи состояния: при сбое шлюза корзина не создаётся.
func (s *Store) CreateIntentMandate(ctx context.Context, req CreateIntentRequest) (*CartCreation, error) {
	cents, err := validation.ParseAmount(req.Price)
	if err != nil {
		return nil, err
	}
	if err := validation.CheckAmountBounds(cents); err != nil {
		return nil, err
	}

	cartID := newID("cart")
	amount := float64(cents) / 100

	var auth *Authorization
	if s.authorizer != nil {
		authCtx, cancel := context.WithTimeout(ctx, authorizationTimeout)
		defer cancel()

		auth, err = s.authorizer.OpenAuthorization(authCtx, AuthorizationRequest{
			AmountCents: cents,
			Currency:    currencyMinor,
			Description: fmt.Sprintf("%s Sponsorship - %s", req.Tier, req.EventName),
			Metadata: map[string]string{
				"cart_id":       cartID,
				"event_name":    req.EventName,
				"tier":          req.Tier,
				"sponsor_name":  req.UserName,
				"sponsor_email": req.UserEmail,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGateway, err)
		}
	}

	now := time.Now()
	intent := model.IntentMandate{
		MandateType: model.MandateKindIntent,
		MandateID:   newID("intent"),
		CreatedAt:   now,
		UserName:    req.UserName,
		UserEmail:   req.UserEmail,
		EventName:   req.EventName,
		Tier:        req.Tier,
		Amount:      amount,
		Currency:    currencyISO,
		Status:      model.MandateStatusPendingCart,
	}

	cart := model.Cart{
		CartID:        cartID,
		IntentMandate: intent,
		Items: []model.LineItem{
			{
				Description: fmt.Sprintf("%s Sponsorship for %s", req.Tier, req.EventName),
				Amount:      amount,
				Currency:    currencyISO,
			},
		},
		Total:     amount,
		Currency:  currencyISO,
		Status:    model.CartStatusCreated,
		CreatedAt: now,
	}

	state := &cartState{cart: cart, totalCents: cents}
	if auth != nil {
		state.cart.AuthorizationID = auth.ID
		state.clientSecret = auth.ClientSecret
	}

	s.mu.Lock()
	s.carts[cartID] = state
	s.latestCartID = cartID
	s.mu.Unlock()

	result := &CartCreation{
		CartID:        cartID,
		IntentMandate: intent,
		Cart:          cloneCart(state.cart),
	}
	if auth != nil {
		result.ClientSecret = auth.ClientSecret
	}
	return result, nil
}

// PaymentMethods возвращает каталог способов оплаты для указанной корзины.
// На шлюзовой политике каталог пуст: карта собирается внешним UI шлюза.
func (s *Store) PaymentMethods(cartID string) ([]model.PaymentMethod, error) {
	if _, err := s.cartStateByID(cartID); err != nil {
		return nil, err
	}

	methods := make([]model.PaymentMethod, len(s.methods))
	copy(methods, s.methods)
	return methods, nil
}

// ClientSecret возвращает клиентский токен завершения оплаты на стороне шлюза.
func (s *Store) ClientSecret(cartID string) (string, error) {
	if s.authorizer == nil {
		return "", ErrNoClientSecret
	}

	state, err := s.cartStateByID(cartID)
	if err != nil {
		return "", err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.clientSecret, nil
}

// CreateCartMandate фиксирует состав корзины и выбранный способ оплаты,
// переводя корзину в статус pending_payment. Повторный вызов до завершения
// оплаты заменяет прежний cart-мандат (пользователь сменил карту).
func (s *Store) CreateCartMandate(cartID, paymentMethodID string) (*model.CartMandate, error) {
	state, err := s.cartStateByID(cartID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.cart.Status == model.CartStatusCompleted {
		return nil, ErrCartCompleted
	}

	if err := s.attachCartMandate(state, paymentMethodID); err != nil {
		return nil, err
	}

	cm := *state.cart.CartMandate
	return &cm, nil
}

// ProcessPayment проверяет одноразовый код и завершает оплату (мок-политика).
// При неверном коде состояние корзины не меняется и попытку можно повторить.
func (s *Store) ProcessPayment(cartID, paymentMethodID, otp string) (*PaymentResult, error) {
	if s.otpCodes == nil {
		return nil, ErrConfirmationRequired
	}

	state, err := s.cartStateByID(cartID)
	if err != nil {
		return nil, err
	}

	if _, ok := s.otpCodes[otp]; !ok {
		return nil, ErrInvalidOTP
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return s.complete(state, paymentMethodID, true)
}

// ConfirmPayment фиксирует завершение оплаты, уже авторизованной внешним
// шлюзом (шлюзовая политика).
func (s *Store) ConfirmPayment(cartID, paymentMethodID string) (*PaymentResult, error) {
	if s.authorizer == nil {
		return nil, ErrVerificationRequired
	}

	state, err := s.cartStateByID(cartID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return s.complete(state, paymentMethodID, false)
}

// Transaction возвращает транзакцию по идентификатору.
func (s *Store) Transaction(transactionID string) (model.Transaction, error) {
	s.mu.RLock()
	rec, ok := s.transactions[transactionID]
	s.mu.RUnlock()

	if !ok {
		return model.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}

	txn := rec.txn
	txn.Cart = cloneCart(rec.txn.Cart)
	return txn, nil
}

// Receipt заново формирует квитанцию по завершённой транзакции.
// Идентификатор квитанции каждый раз новый: квитанция не хранится.
func (s *Store) Receipt(transactionID string) (model.Receipt, error) {
	s.mu.RLock()
	rec, ok := s.transactions[transactionID]
	s.mu.RUnlock()

	if !ok {
		return model.Receipt{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}

	return buildReceipt(rec), nil
}

// LatestCart возвращает последнюю созданную корзину.
func (s *Store) LatestCart() (model.Cart, error) {
	s.mu.RLock()
	id := s.latestCartID
	state := s.carts[id]
	s.mu.RUnlock()

	if state == nil {
		return model.Cart{}, ErrNoCarts
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return cloneCart(state.cart), nil
}

func (s *Store) cartStateByID(cartID string) (*cartState, error) {
	s.mu.RLock()
	state, ok := s.carts[cartID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCartNotFound, cartID)
	}
	return state, nil
}

// attachCartMandate строит cart-мандат. Вызывается под мьютексом корзины.
func (s *Store) attachCartMandate(state *cartState, paymentMethodID string) error {
	ref := model.PaymentMethodRef{ID: paymentMethodID, Last4: lastFour(paymentMethodID)}
	if s.methods != nil {
		found := false
		for _, m := range s.methods {
			if m.ID == paymentMethodID {
				ref = model.PaymentMethodRef{ID: m.ID, Brand: m.Brand, Last4: m.Last4}
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrPaymentMethodNotFound, paymentMethodID)
		}
	}

	items := make([]model.LineItem, len(state.cart.Items))
	copy(items, state.cart.Items)

	state.cart.CartMandate = &model.CartMandate{
		MandateType:     model.MandateKindCart,
		MandateID:       newID("cart_mandate"),
		CreatedAt:       time.Now(),
		CartID:          state.cart.CartID,
		IntentMandateID: state.cart.IntentMandate.MandateID,
		Items:           items,
		Total:           state.cart.Total,
		Currency:        currencyISO,
		PaymentMethod:   ref,
		RequiresOTP:     s.authorizer == nil,
		Status:          model.MandateStatusPendingPayment,
	}
	state.cart.Status = model.CartStatusPendingPayment
	return nil
}

// complete завершает оплату корзины: строит payment-мандат, создаёт
// транзакцию и квитанцию. Вызывается под мьютексом корзины, поэтому два
// одновременных завершения одной корзины не могут пройти оба.
func (s *Store) complete(state *cartState, paymentMethodID string, otpVerified bool) (*PaymentResult, error) {
	if state.cart.Status == model.CartStatusCompleted {
		return nil, ErrCartCompleted
	}

	// Протокол терпим к пропуску шага выбора: cart-мандат достраивается здесь.
	if state.cart.CartMandate == nil {
		if err := s.attachCartMandate(state, paymentMethodID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	transactionID := newID("txn")

	pm := model.PaymentMandate{
		MandateType:     model.MandateKindPayment,
		MandateID:       newID("payment"),
		CreatedAt:       now,
		TransactionID:   transactionID,
		CartID:          state.cart.CartID,
		CartMandateID:   state.cart.CartMandate.MandateID,
		IntentMandateID: state.cart.IntentMandate.MandateID,
		Amount:          state.cart.Total,
		Currency:        currencyISO,
		PaymentMethodID: paymentMethodID,
		OTPVerified:     otpVerified,
		AuthorizationID: state.cart.AuthorizationID,
		Status:          model.MandateStatusCompleted,
	}

	state.cart.PaymentMandate = &pm
	state.cart.Status = model.CartStatusCompleted
	state.cart.TransactionID = transactionID

	rec := &txnRecord{
		txn: model.Transaction{
			TransactionID:  transactionID,
			PaymentMandate: pm,
			Cart:           cloneCart(state.cart),
			Status:         model.MandateStatusCompleted,
			CompletedAt:    now,
		},
		amountCents: state.totalCents,
	}

	s.mu.Lock()
	s.transactions[transactionID] = rec
	s.mu.Unlock()

	return &PaymentResult{
		Success:        true,
		TransactionID:  transactionID,
		PaymentMandate: pm,
		Receipt:        buildReceipt(rec),
	}, nil
}

func buildReceipt(rec *txnRecord) model.Receipt {
	intent := rec.txn.Cart.IntentMandate
	return model.Receipt{
		ReceiptID:     newID("rcpt"),
		TransactionID: rec.txn.TransactionID,
		Date:          rec.txn.CompletedAt,
		SponsorName:   intent.UserName,
		SponsorEmail:  intent.UserEmail,
		EventName:     intent.EventName,
		Tier:          intent.Tier,
		Amount:        validation.FormatAmountUSD(rec.amountCents),
		Currency:      currencyISO,
		PaymentMethod: "Card ending in " + lastFour(rec.txn.PaymentMandate.PaymentMethodID),
		Status:        "PAID",
	}
}

func cloneCart(c model.Cart) model.Cart {
	clone := c

	clone.Items = make([]model.LineItem, len(c.Items))
	copy(clone.Items, c.Items)

	if c.CartMandate != nil {
		cm := *c.CartMandate
		cm.Items = make([]model.LineItem, len(c.CartMandate.Items))
		copy(cm.Items, c.CartMandate.Items)
		clone.CartMandate = &cm
	}
	if c.PaymentMandate != nil {
		pm := *c.PaymentMandate
		clone.PaymentMandate = &pm
	}

	return clone
}

func lastFour(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

func newID(prefix string) string {
	id := uuid.New()
	return prefix + "_" + hex.EncodeToString(id[:])[:12]
}
