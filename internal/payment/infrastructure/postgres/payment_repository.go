package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
)

const uniqueViolation = "23505"

const methodColumns = `id, user_id, stripe_card_id, card_number, card_brand, holder_name, expiry, is_default, created_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type PaymentRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewPaymentRepository(db *sql.DB, log *slog.Logger) *PaymentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentRepository{db: db, log: log}
}

func (r *PaymentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods WHERE user_id = $1 ORDER BY created_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		var m domain.PaymentMethod
		if err := scanMethod(rows, &m); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	return findByID(ctx, r.db, id)
}

func (r *PaymentRepository) FindCustomerLink(ctx context.Context, ownerID string) (*domain.CustomerLink, error) {
	query := `SELECT user_id, stripe_customer_id, created_at FROM customer_links WHERE user_id = $1`

	var link domain.CustomerLink
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&link.OwnerID, &link.ProcessorCustomerID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *PaymentRepository) CreateCustomerLink(ctx context.Context, link domain.CustomerLink) (*domain.CustomerLink, error) {
	query := `INSERT INTO customer_links (user_id, stripe_customer_id, created_at) VALUES ($1, $2, $3)`

	_, err := r.db.ExecContext(ctx, query, link.OwnerID, link.ProcessorCustomerID, link.CreatedAt)
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		r.log.Debug("customer link already exists", "owner_id", link.OwnerID)
		return r.FindCustomerLink(ctx, link.OwnerID)
	}
	return &link, nil
}

func (r *PaymentRepository) OwnersWithoutDefault(ctx context.Context) ([]string, error) {
	query := `SELECT user_id FROM payment_methods GROUP BY user_id HAVING NOT bool_or(is_default) ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// WithinOwnerTx takes a transaction-scoped advisory lock on the owner before
// running fn, so concurrent calls for one owner run one after another.
func (r *PaymentRepository) WithinOwnerTx(ctx context.Context, ownerID string, fn func(tx domain.StoreTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
		return fmt.Errorf("lock owner: %w", err)
	}

	if err := fn(&paymentTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type paymentTx struct {
	q querier
}

func (t *paymentTx) Insert(ctx context.Context, m *domain.PaymentMethod) error {
	query := `
		INSERT INTO payment_methods (user_id, stripe_card_id, card_number, card_brand, holder_name, expiry, is_default)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return t.q.QueryRowContext(ctx, query,
		m.OwnerID, m.ProcessorSourceID, m.DisplayDigits, m.Brand, m.HolderName, m.Expiry, m.IsDefault,
	).Scan(&m.ID, &m.CreatedAt)
}

func (t *paymentTx) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM payment_methods WHERE user_id = $1`, ownerID).Scan(&count)
	return count, err
}

func (t *paymentTx) FindByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	return findByID(ctx, t.q, id)
}

func (t *paymentTx) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM payment_methods WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

// SetDefault clears the current default before setting the new one so the
// partial unique index on (user_id) WHERE is_default never sees two rows.
func (t *paymentTx) SetDefault(ctx context.Context, ownerID string, id uuid.UUID) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE payment_methods SET is_default = FALSE
		WHERE user_id = $1 AND is_default AND id <> $2`, ownerID, id)
	if err != nil {
		return err
	}

	result, err := t.q.ExecContext(ctx, `
		UPDATE payment_methods SET is_default = TRUE
		WHERE user_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (t *paymentTx) MostRecent(ctx context.Context, ownerID string) (*domain.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT 1`

	var m domain.PaymentMethod
	if err := scanMethod(t.q.QueryRowContext(ctx, query, ownerID), &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (t *paymentTx) HasDefault(ctx context.Context, ownerID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM payment_methods WHERE user_id = $1 AND is_default)`
	err := t.q.QueryRowContext(ctx, query, ownerID).Scan(&exists)
	return exists, err
}

func findByID(ctx context.Context, q querier, id uuid.UUID) (*domain.PaymentMethod, error) {
	query := `SELECT ` + methodColumns + ` FROM payment_methods WHERE id = $1`

	var m domain.PaymentMethod
	if err := scanMethod(q.QueryRowContext(ctx, query, id), &m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &m, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMethod(s scanner, m *domain.PaymentMethod) error {
	return s.Scan(&m.ID, &m.OwnerID, &m.ProcessorSourceID, &m.DisplayDigits, &m.Brand,
		&m.HolderName, &m.Expiry, &m.IsDefault, &m.CreatedAt)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
