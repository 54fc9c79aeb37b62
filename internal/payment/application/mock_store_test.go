package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
)

// MockStore keeps rows in memory. WithinOwnerTx works on a copy that is only
// kept when fn succeeds, which mirrors a real transaction rollback.
type MockStore struct {
	mu      sync.Mutex
	methods map[uuid.UUID]domain.PaymentMethod
	links   map[string]domain.CustomerLink
	clock   time.Time

	ListErr       error
	FindErr       error
	LinkErr       error
	CreateLinkErr error
	InsertErr     error
	DeleteErr     error
	SetDefaultErr error
}

func NewMockStore() *MockStore {
	return &MockStore{
		methods: make(map[uuid.UUID]domain.PaymentMethod),
		links:   make(map[string]domain.CustomerLink),
		clock:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *MockStore) ListByOwner(_ context.Context, ownerID string) ([]domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return sortedByOwner(s.methods, ownerID), nil
}

func (s *MockStore) FindByID(_ context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	m, ok := s.methods[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &m, nil
}

func (s *MockStore) FindCustomerLink(_ context.Context, ownerID string) (*domain.CustomerLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LinkErr != nil {
		return nil, s.LinkErr
	}
	link, ok := s.links[ownerID]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &link, nil
}

func (s *MockStore) CreateCustomerLink(_ context.Context, link domain.CustomerLink) (*domain.CustomerLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateLinkErr != nil {
		return nil, s.CreateLinkErr
	}
	if existing, ok := s.links[link.OwnerID]; ok {
		return &existing, nil
	}
	s.links[link.OwnerID] = link
	return &link, nil
}

func (s *MockStore) OwnersWithoutDefault(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasDefault := make(map[string]bool)
	for _, m := range s.methods {
		hasDefault[m.OwnerID] = hasDefault[m.OwnerID] || m.IsDefault
	}
	var owners []string
	for owner, ok := range hasDefault {
		if !ok {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners, nil
}

func (s *MockStore) WithinOwnerTx(_ context.Context, _ string, fn func(tx domain.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := make(map[uuid.UUID]domain.PaymentMethod, len(s.methods))
	for id, m := range s.methods {
		working[id] = m
	}
	tx := &mockTx{store: s, methods: working, clock: s.clock}
	if err := fn(tx); err != nil {
		return err
	}
	s.methods = working
	s.clock = tx.clock
	return nil
}

// Put seeds a row directly, bypassing the registry.
func (s *MockStore) Put(m domain.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[m.ID] = m
}

func (s *MockStore) Link(ownerID, customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[ownerID] = domain.CustomerLink{OwnerID: ownerID, ProcessorCustomerID: customerID}
}

type mockTx struct {
	store   *MockStore
	methods map[uuid.UUID]domain.PaymentMethod
	clock   time.Time
}

func (tx *mockTx) Insert(_ context.Context, method *domain.PaymentMethod) error {
	if tx.store.InsertErr != nil {
		return tx.store.InsertErr
	}
	tx.clock = tx.clock.Add(time.Second)
	method.ID = uuid.New()
	method.CreatedAt = tx.clock
	tx.methods[method.ID] = *method
	return nil
}

func (tx *mockTx) CountByOwner(_ context.Context, ownerID string) (int, error) {
	return len(sortedByOwner(tx.methods, ownerID)), nil
}

func (tx *mockTx) FindByID(_ context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	m, ok := tx.methods[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &m, nil
}

func (tx *mockTx) Delete(_ context.Context, id uuid.UUID) error {
	if tx.store.DeleteErr != nil {
		return tx.store.DeleteErr
	}
	delete(tx.methods, id)
	return nil
}

func (tx *mockTx) SetDefault(_ context.Context, ownerID string, id uuid.UUID) error {
	if tx.store.SetDefaultErr != nil {
		return tx.store.SetDefaultErr
	}
	if _, ok := tx.methods[id]; !ok {
		return errors.New("set default: no such row")
	}
	for key, m := range tx.methods {
		if m.OwnerID == ownerID {
			m.IsDefault = key == id
			tx.methods[key] = m
		}
	}
	return nil
}

func (tx *mockTx) MostRecent(_ context.Context, ownerID string) (*domain.PaymentMethod, error) {
	methods := sortedByOwner(tx.methods, ownerID)
	if len(methods) == 0 {
		return nil, domain.ErrRecordNotFound
	}
	return &methods[0], nil
}

func (tx *mockTx) HasDefault(_ context.Context, ownerID string) (bool, error) {
	for _, m := range tx.methods {
		if m.OwnerID == ownerID && m.IsDefault {
			return true, nil
		}
	}
	return false, nil
}

func sortedByOwner(methods map[uuid.UUID]domain.PaymentMethod, ownerID string) []domain.PaymentMethod {
	var out []domain.PaymentMethod
	for _, m := range methods {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// MockProcessor hands out sequential customer and card ids.
type MockProcessor struct {
	mu        sync.Mutex
	customers int
	cards     map[string]domain.CardDetails
	Detached  []string

	CreateErr error
	AttachErr error
	DetachErr error
}

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{cards: make(map[string]domain.CardDetails)}
}

// Card registers the card data returned when token is attached.
func (p *MockProcessor) Card(token string, card domain.CardDetails) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cards[token] = card
}

func (p *MockProcessor) CreateCustomer(_ context.Context, _ domain.Owner) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return "", p.CreateErr
	}
	p.customers++
	return fmt.Sprintf("cus_%d", p.customers), nil
}

func (p *MockProcessor) AttachSource(_ context.Context, _ string, token string) (domain.CardDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AttachErr != nil {
		return domain.CardDetails{}, p.AttachErr
	}
	card, ok := p.cards[token]
	if !ok {
		card = domain.CardDetails{SourceID: "card_" + token, Brand: "Visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}
	}
	return card, nil
}

func (p *MockProcessor) DetachSource(_ context.Context, _ string, sourceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Detached = append(p.Detached, sourceID)
	return p.DetachErr
}

func (p *MockProcessor) CustomersCreated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.customers
}
