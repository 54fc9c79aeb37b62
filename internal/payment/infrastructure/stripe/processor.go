package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
)

type customerAPI interface {
	New(params *stripego.CustomerParams) (*stripego.Customer, error)
}

type cardAPI interface {
	New(params *stripego.CardParams) (*stripego.Card, error)
	Del(id string, params *stripego.CardParams) (*stripego.Card, error)
}

// Processor stores customers and card sources at Stripe.
type Processor struct {
	customers customerAPI
	cards     cardAPI
	log       *slog.Logger
}

func NewProcessor(secretKey string, log *slog.Logger) (*Processor, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is empty")
	}
	sc := client.New(secretKey, nil)
	return newProcessor(sc.Customers, sc.Cards, log), nil
}

func newProcessor(customers customerAPI, cards cardAPI, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{customers: customers, cards: cards, log: log}
}

func (p *Processor) CreateCustomer(ctx context.Context, owner domain.Owner) (string, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx
	params.AddMetadata("user_id", owner.ID)
	if owner.Email != "" {
		params.Email = stripego.String(owner.Email)
	}

	customer, err := p.customers.New(params)
	if err != nil {
		return "", describe(err)
	}
	p.log.Info("stripe customer created", "owner_id", owner.ID, "customer_id", customer.ID)
	return customer.ID, nil
}

func (p *Processor) AttachSource(ctx context.Context, customerID, token string) (domain.CardDetails, error) {
	params := &stripego.CardParams{
		Customer: stripego.String(customerID),
		Token:    stripego.String(token),
	}
	params.Context = ctx

	card, err := p.cards.New(params)
	if err != nil {
		return domain.CardDetails{}, describe(err)
	}
	return cardDetails(card), nil
}

func (p *Processor) DetachSource(ctx context.Context, customerID, sourceID string) error {
	params := &stripego.CardParams{Customer: stripego.String(customerID)}
	params.Context = ctx

	if _, err := p.cards.Del(sourceID, params); err != nil {
		return describe(err)
	}
	return nil
}

func cardDetails(card *stripego.Card) domain.CardDetails {
	if card == nil {
		return domain.CardDetails{}
	}
	return domain.CardDetails{
		SourceID: card.ID,
		Brand:    string(card.Brand),
		Last4:    card.Last4,
		ExpMonth: int(card.ExpMonth),
		ExpYear:  int(card.ExpYear),
		Name:     card.Name,
	}
}

// describe keeps Stripe's request id and code in the error without leaking
// anything card related.
func describe(err error) error {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe %s (status %d, code %q, request %s): %w",
			stripeErr.Type, stripeErr.HTTPStatusCode, stripeErr.Code, stripeErr.RequestID, err)
	}
	return err
}
