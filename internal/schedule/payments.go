package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPaymentNotVerified = errors.New("payment reference is missing or not confirmed")

// PaymentVerifier checks a caller-supplied payment reference before a
// booking is admitted. The coordinator never trusts a bare "payment
// completed" flag from the client.
type PaymentVerifier interface {
	Verify(ctx context.Context, patientID uuid.UUID, ref string) error
}

// PgPaymentVerifier looks confirmations up in the payment_confirmations
// table, written by the external payment collaborator.
type PgPaymentVerifier struct {
	pool *pgxpool.Pool
}

func NewPgPaymentVerifier(pool *pgxpool.Pool) *PgPaymentVerifier {
	return &PgPaymentVerifier{pool: pool}
}

func (v *PgPaymentVerifier) Verify(ctx context.Context, patientID uuid.UUID, ref string) error {
	if ref == "" {
		return ErrPaymentNotVerified
	}

	var confirmed bool
	err := v.pool.QueryRow(ctx, `
		SELECT confirmed_at IS NOT NULL
		FROM payment_confirmations
		WHERE ref = $1 AND patient_id = $2
	`, ref, patientID).Scan(&confirmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPaymentNotVerified
		}
		return fmt.Errorf("verify payment: %w", err)
	}
	if !confirmed {
		return ErrPaymentNotVerified
	}

	return nil
}
