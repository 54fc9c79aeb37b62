package interfaces

import (
	"context"

	"github.com/google/uuid"
	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
)

type MockRegistry struct {
	Methods []domain.PaymentMethod
	Added   *domain.PaymentMethod
	Err     error

	LastOwner    domain.Owner
	LastOwnerID  string
	LastToken    string
	LastMethodID uuid.UUID
}

func (m *MockRegistry) List(_ context.Context, ownerID string) ([]domain.PaymentMethod, error) {
	m.LastOwnerID = ownerID
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Methods, nil
}

func (m *MockRegistry) Add(_ context.Context, owner domain.Owner, token string) (*domain.PaymentMethod, error) {
	m.LastOwner = owner
	m.LastToken = token
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Added, nil
}

func (m *MockRegistry) SetDefault(_ context.Context, ownerID string, methodID uuid.UUID) error {
	m.LastOwnerID = ownerID
	m.LastMethodID = methodID
	return m.Err
}

func (m *MockRegistry) Delete(_ context.Context, ownerID string, methodID uuid.UUID) error {
	m.LastOwnerID = ownerID
	m.LastMethodID = methodID
	return m.Err
}
