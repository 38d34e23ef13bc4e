package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/payment"
	"github.com/ShreyashF130/copit-backend/internal/repository"
	"github.com/ShreyashF130/copit-backend/internal/session"
	"github.com/ShreyashF130/copit-backend/internal/token"
)

// mockRepo implements Repo for testing.
type mockRepo struct {
	mu sync.Mutex

	Items     map[int64]*domain.Item
	Addresses map[int64]*domain.Address
	Coupons   map[string]*domain.Coupon
	Shops     map[int64]*repository.ShopCredentials

	CreatedOrders []*domain.Order
	CreateErr     error
	nextOrderID   int64

	Proofs     map[int64]string
	Decrements map[int64]int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		Items:      map[int64]*domain.Item{},
		Addresses:  map[int64]*domain.Address{},
		Coupons:    map[string]*domain.Coupon{},
		Shops:      map[int64]*repository.ShopCredentials{},
		Proofs:     map[int64]string{},
		Decrements: map[int64]int{},
	}
}

func (m *mockRepo) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.Items[id]; ok {
		copied := *item
		return &copied, nil
	}
	return nil, repository.ErrItemNotFound
}

func (m *mockRepo) DecrementStock(_ context.Context, itemID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Decrements[itemID] += qty
	if item, ok := m.Items[itemID]; ok {
		item.Stock -= qty
	}
	return nil
}

func (m *mockRepo) GetCoupon(_ context.Context, _ int64, code string) (*domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Coupons[code]; ok {
		return c, nil
	}
	return nil, repository.ErrCouponNotFound
}

func (m *mockRepo) GetAddress(_ context.Context, id int64) (*domain.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.Addresses[id]; ok {
		return a, nil
	}
	return nil, repository.ErrAddressNotFound
}

func (m *mockRepo) LatestAddress(_ context.Context, shopperID string) (*domain.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Address
	for _, a := range m.Addresses {
		if a.ShopperID != shopperID {
			continue
		}
		if latest == nil || a.ID > latest.ID {
			latest = a
		}
	}
	if latest == nil {
		return nil, repository.ErrAddressNotFound
	}
	return latest, nil
}

func (m *mockRepo) CreateAddress(_ context.Context, addr *domain.Address) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.Addresses) + 1)
	addr.ID = id
	m.Addresses[id] = addr
	return id, nil
}

func (m *mockRepo) CreateOrder(_ context.Context, order *domain.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	m.nextOrderID++
	order.ID = m.nextOrderID
	m.CreatedOrders = append(m.CreatedOrders, order)
	return order.ID, nil
}

func (m *mockRepo) SubmitPaymentProof(_ context.Context, id int64, proofRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Proofs[id] = proofRef
	return nil
}

func (m *mockRepo) GetShopCredentials(_ context.Context, shopID int64) (*repository.ShopCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Shops[shopID]; ok {
		return s, nil
	}
	return nil, repository.ErrShopNotFound
}

func (m *mockRepo) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CreatedOrders)
}

type sentText struct {
	To   string
	Body string
}

type sentButtons struct {
	To      string
	Body    string
	Buttons []domain.Button
}

// mockSender records outbound messages.
type mockSender struct {
	mu      sync.Mutex
	Texts   []sentText
	Buttons []sentButtons
	Images  []sentText
	Err     error
}

func (m *mockSender) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Texts = append(m.Texts, sentText{To: to, Body: body})
	return nil
}

func (m *mockSender) SendButtons(_ context.Context, to, body string, buttons []domain.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Buttons = append(m.Buttons, sentButtons{To: to, Body: body, Buttons: buttons})
	return nil
}

func (m *mockSender) SendImage(_ context.Context, to, url, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Images = append(m.Images, sentText{To: to, Body: caption})
	return nil
}

func (m *mockSender) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Texts) == 0 {
		return ""
	}
	return m.Texts[len(m.Texts)-1].Body
}

func (m *mockSender) lastButtons() *sentButtons {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Buttons) == 0 {
		return nil
	}
	return &m.Buttons[len(m.Buttons)-1]
}

// mockGateway implements payment.Gateway.
type mockGateway struct {
	mu      sync.Mutex
	Link    *payment.PaymentLink
	Err     error
	Calls   int
	LastReq payment.LinkRequest
}

func (m *mockGateway) CreatePaymentLink(_ context.Context, req payment.LinkRequest) (*payment.PaymentLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastReq = req
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Link, nil
}

type testEnv struct {
	engine   *Engine
	repo     *mockRepo
	sender   *mockSender
	gateway  *mockGateway
	sessions session.Store
}

func newTestEnv() *testEnv {
	repo := newMockRepo()
	sender := &mockSender{}
	gateway := &mockGateway{Link: &payment.PaymentLink{ID: "plink_1", ShortURL: "https://rzp.io/l/abc"}}
	sessions := session.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	eng := New(sessions, session.NewKeyedLock(), repo, token.NewIssuer(),
		sender, gateway, NewShopConfigReader(repo, nil), Config{
			CheckoutBaseURL:  "https://shop.test/checkout",
			ManualPayBaseURL: "https://shop.test/pay/manual",
		}, logger)

	return &testEnv{engine: eng, repo: repo, sender: sender, gateway: gateway, sessions: sessions}
}
