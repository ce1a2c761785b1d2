package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InvoiceSequence numbers invoices from the invoice_number_seq sequence. Sequence values are
// never handed out twice, so numbers stay unique across instances. Called from inside
// ProspectRepository.Transition it runs on the transition's own connection.
type InvoiceSequence struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewInvoiceSequence(db *sql.DB) *InvoiceSequence {
	return &InvoiceSequence{DB: db, Now: time.Now}
}

func (s *InvoiceSequence) NextInvoiceNumber(ctx context.Context, prospectID string) (string, error) {
	var seq int64
	if err := queryerFrom(ctx, s.DB).QueryRowContext(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("next invoice sequence for %s: %w", prospectID, err)
	}
	return fmt.Sprintf("INV-%d-%06d", s.Now().Year(), seq), nil
}
