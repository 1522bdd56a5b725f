package payment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDeclined marks a settlement the provider refused. Any other error is
// treated as transient and the payment stays PROCESSING.
var ErrDeclined = errors.New("settlement declined")

type Settlement struct {
	TransactionID string
}

// Settler moves the money for a payment. Implementations must be idempotent on
// Payment.ID since a PROCESSING payment may be settled again by reconciliation.
type Settler interface {
	Settle(ctx context.Context, p *Payment) (Settlement, error)
}

// InternalSettler books payouts on the platform's own balance.
type InternalSettler struct {
	now func() time.Time
}

func NewInternalSettler() Settler {
	return &InternalSettler{now: time.Now}
}

func (s *InternalSettler) Settle(ctx context.Context, p *Payment) (Settlement, error) {
	if err := ctx.Err(); err != nil {
		return Settlement{}, err
	}
	if p.TransactionID != "" {
		return Settlement{TransactionID: p.TransactionID}, nil
	}
	id, err := GenerateTransactionID(s.now())
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{TransactionID: id}, nil
}

// GenerateTransactionID returns an id such as TXN-20261015-3FA9C2.
func GenerateTransactionID(now time.Time) (string, error) {
	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(fmt.Sprintf("%x", r))), nil
}
