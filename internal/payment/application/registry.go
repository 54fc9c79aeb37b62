package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
	perrors "github.com/sebuszqo/PaymentMethods/internal/payment/errors"
)

const maxTokenLength = 255

// Registry owns the payment methods of every account holder and keeps exactly
// one of them default whenever the holder has any.
type Registry struct {
	store     domain.Store
	processor domain.Processor
	log       *slog.Logger
}

func NewRegistry(store domain.Store, processor domain.Processor, log *slog.Logger) *Registry {
	if store == nil || processor == nil {
		panic("store and processor must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{store: store, processor: processor, log: log}
}

// List returns the owner's methods, newest first.
func (r *Registry) List(ctx context.Context, ownerID string) ([]domain.PaymentMethod, error) {
	methods, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, perrors.NewStoreError("list payment methods", err)
	}
	if methods == nil {
		return []domain.PaymentMethod{}, nil
	}
	return methods, nil
}

func (r *Registry) Add(ctx context.Context, owner domain.Owner, token string) (*domain.PaymentMethod, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, perrors.ErrMissingToken
	}
	if len(token) > maxTokenLength || strings.ContainsAny(token, " \t\r\n") {
		return nil, perrors.NewValidationError("Card token is invalid")
	}

	customerID, err := r.customerID(ctx, owner)
	if err != nil {
		return nil, err
	}

	card, err := r.processor.AttachSource(ctx, customerID, token)
	if err != nil {
		r.log.Error("attaching source failed", "owner_id", owner.ID, "customer_id", customerID, "err", err)
		return nil, perrors.NewProcessorError("attach source", err)
	}

	method, err := domain.NewPaymentMethod(owner.ID, card)
	if err != nil {
		r.log.Error("processor returned unusable card", "owner_id", owner.ID, "source_id", card.SourceID, "err", err)
		return nil, perrors.NewProcessorError("attach source", err)
	}

	err = r.store.WithinOwnerTx(ctx, owner.ID, func(tx domain.StoreTx) error {
		if err := tx.Insert(ctx, method); err != nil {
			return err
		}
		count, err := tx.CountByOwner(ctx, owner.ID)
		if err != nil {
			return err
		}
		if count == 1 {
			if err := tx.SetDefault(ctx, owner.ID, method.ID); err != nil {
				return err
			}
			method.IsDefault = true
		}
		return nil
	})
	if err != nil {
		// the source stays attached on the processor side
		r.log.Error("storing payment method failed, processor source left attached",
			"owner_id", owner.ID, "customer_id", customerID, "source_id", card.SourceID, "err", err)
		return nil, perrors.NewStoreError("insert payment method", err)
	}

	r.log.Info("payment method added", "owner_id", owner.ID, "method_id", method.ID, "is_default", method.IsDefault)
	return method, nil
}

// customerID resolves the owner's processor customer, creating and linking one on first use.
func (r *Registry) customerID(ctx context.Context, owner domain.Owner) (string, error) {
	link, err := r.store.FindCustomerLink(ctx, owner.ID)
	if err == nil {
		return link.ProcessorCustomerID, nil
	}
	if !errors.Is(err, domain.ErrRecordNotFound) {
		return "", perrors.NewStoreError("find customer link", err)
	}

	created, err := r.processor.CreateCustomer(ctx, owner)
	if err != nil {
		r.log.Error("creating processor customer failed", "owner_id", owner.ID, "err", err)
		return "", perrors.NewProcessorError("create customer", err)
	}

	link, err = r.store.CreateCustomerLink(ctx, domain.CustomerLink{
		OwnerID:             owner.ID,
		ProcessorCustomerID: created,
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		r.log.Error("linking processor customer failed, customer orphaned",
			"owner_id", owner.ID, "customer_id", created, "err", err)
		return "", perrors.NewStoreError("create customer link", err)
	}
	if link.ProcessorCustomerID != created {
		r.log.Warn("owner linked concurrently, processor customer orphaned",
			"owner_id", owner.ID, "orphaned_customer_id", created, "customer_id", link.ProcessorCustomerID)
	}
	return link.ProcessorCustomerID, nil
}

func (r *Registry) SetDefault(ctx context.Context, ownerID string, methodID uuid.UUID) error {
	err := r.store.WithinOwnerTx(ctx, ownerID, func(tx domain.StoreTx) error {
		method, err := tx.FindByID(ctx, methodID)
		if err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				return methodNotFound(methodID)
			}
			return err
		}
		if method.OwnerID != ownerID {
			return methodNotFound(methodID)
		}
		if method.IsDefault {
			return nil
		}
		return tx.SetDefault(ctx, ownerID, methodID)
	})
	if err != nil {
		if perrors.IsNotFoundError(err) {
			return err
		}
		return perrors.NewStoreError("set default payment method", err)
	}

	r.log.Info("default payment method changed", "owner_id", ownerID, "method_id", methodID)
	return nil
}

func (r *Registry) Delete(ctx context.Context, ownerID string, methodID uuid.UUID) error {
	method, err := r.store.FindByID(ctx, methodID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return methodNotFound(methodID)
		}
		return perrors.NewStoreError("find payment method", err)
	}
	if method.OwnerID != ownerID {
		return methodNotFound(methodID)
	}

	r.detach(ctx, method)

	var promoted uuid.UUID
	err = r.store.WithinOwnerTx(ctx, ownerID, func(tx domain.StoreTx) error {
		current, err := tx.FindByID(ctx, methodID)
		if err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				return methodNotFound(methodID)
			}
			return err
		}
		if err := tx.Delete(ctx, methodID); err != nil {
			return err
		}
		if !current.IsDefault {
			return nil
		}
		next, err := tx.MostRecent(ctx, ownerID)
		if err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		promoted = next.ID
		return tx.SetDefault(ctx, ownerID, next.ID)
	})
	if err != nil {
		if perrors.IsNotFoundError(err) {
			return err
		}
		return perrors.NewStoreError("delete payment method", err)
	}

	r.log.Info("payment method deleted", "owner_id", ownerID, "method_id", methodID, "promoted_id", promoted)
	return nil
}

// detach removes the source on the processor side. Failures only get logged:
// the local row is deleted regardless.
func (r *Registry) detach(ctx context.Context, method *domain.PaymentMethod) {
	link, err := r.store.FindCustomerLink(ctx, method.OwnerID)
	if err != nil {
		r.log.Warn("skipping processor detach, no customer link",
			"owner_id", method.OwnerID, "source_id", method.ProcessorSourceID, "err", err)
		return
	}
	if err := r.processor.DetachSource(ctx, link.ProcessorCustomerID, method.ProcessorSourceID); err != nil {
		r.log.Warn("processor detach failed, deleting locally anyway",
			"owner_id", method.OwnerID, "customer_id", link.ProcessorCustomerID, "source_id", method.ProcessorSourceID, "err", err)
	}
}

// Reconcile promotes the most recent method of every owner that has methods but
// no default. It returns how many owners were repaired.
func (r *Registry) Reconcile(ctx context.Context) (int, error) {
	owners, err := r.store.OwnersWithoutDefault(ctx)
	if err != nil {
		return 0, perrors.NewStoreError("find owners without default", err)
	}

	repaired := 0
	var errs []error
	for _, ownerID := range owners {
		fixed := false
		err := r.store.WithinOwnerTx(ctx, ownerID, func(tx domain.StoreTx) error {
			hasDefault, err := tx.HasDefault(ctx, ownerID)
			if err != nil || hasDefault {
				return err
			}
			next, err := tx.MostRecent(ctx, ownerID)
			if err != nil {
				if errors.Is(err, domain.ErrRecordNotFound) {
					return nil
				}
				return err
			}
			if err := tx.SetDefault(ctx, ownerID, next.ID); err != nil {
				return err
			}
			fixed = true
			return nil
		})
		if err != nil {
			r.log.Error("reconciling owner failed", "owner_id", ownerID, "err", err)
			errs = append(errs, perrors.NewStoreError("reconcile "+ownerID, err))
			continue
		}
		if fixed {
			repaired++
			r.log.Info("restored default payment method", "owner_id", ownerID)
		}
	}
	return repaired, errors.Join(errs...)
}

func methodNotFound(id uuid.UUID) error {
	return perrors.NewNotFoundError("payment method", id.String())
}
