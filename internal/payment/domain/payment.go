package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const DefaultHolderName = "Card Holder"

var ErrRecordNotFound = errors.New("record not found")

// Owner is the verified account holder behind a request.
type Owner struct {
	ID    string
	Email string
}

type PaymentMethod struct {
	ID                uuid.UUID `json:"id"`
	OwnerID           string    `json:"user_id"`
	ProcessorSourceID string    `json:"stripe_card_id"`
	DisplayDigits     string    `json:"card_number"`
	Brand             string    `json:"card_brand"`
	HolderName        string    `json:"holder_name"`
	Expiry            Expiry    `json:"expiry"`
	IsDefault         bool      `json:"is_default"`
	CreatedAt         time.Time `json:"created_at"`
}

// CustomerLink maps an owner to the processor's customer record.
type CustomerLink struct {
	OwnerID             string
	ProcessorCustomerID string
	CreatedAt           time.Time
}

// CardDetails is the masked card data returned by the processor after attaching a source.
type CardDetails struct {
	SourceID string
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
	Name     string
}

// NewPaymentMethod builds the row inserted by Add. It is never default on creation.
func NewPaymentMethod(ownerID string, card CardDetails) (*PaymentMethod, error) {
	expiry, err := NewExpiry(card.ExpMonth, card.ExpYear)
	if err != nil {
		return nil, err
	}
	holder := card.Name
	if holder == "" {
		holder = DefaultHolderName
	}
	return &PaymentMethod{
		OwnerID:           ownerID,
		ProcessorSourceID: card.SourceID,
		DisplayDigits:     card.Last4,
		Brand:             card.Brand,
		HolderName:        holder,
		Expiry:            expiry,
	}, nil
}

type Store interface {
	ListByOwner(ctx context.Context, ownerID string) ([]PaymentMethod, error)
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)
	FindCustomerLink(ctx context.Context, ownerID string) (*CustomerLink, error)
	// CreateCustomerLink returns the link that ended up persisted, which is an
	// earlier one when another request linked the owner first.
	CreateCustomerLink(ctx context.Context, link CustomerLink) (*CustomerLink, error)
	OwnersWithoutDefault(ctx context.Context) ([]string, error)
	// WithinOwnerTx runs fn in a single transaction serialized with every other
	// WithinOwnerTx call for the same owner. Any error rolls the whole unit back.
	WithinOwnerTx(ctx context.Context, ownerID string, fn func(tx StoreTx) error) error
}

type StoreTx interface {
	Insert(ctx context.Context, method *PaymentMethod) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetDefault(ctx context.Context, ownerID string, id uuid.UUID) error
	MostRecent(ctx context.Context, ownerID string) (*PaymentMethod, error)
	HasDefault(ctx context.Context, ownerID string) (bool, error)
}

type Processor interface {
	CreateCustomer(ctx context.Context, owner Owner) (string, error)
	AttachSource(ctx context.Context, customerID, token string) (CardDetails, error)
	DetachSource(ctx context.Context, customerID, sourceID string) error
}
