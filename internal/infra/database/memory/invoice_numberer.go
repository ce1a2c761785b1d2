package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InvoiceNumberer numbers invoices from an in-process counter: INV-<year>-<seq>.
type InvoiceNumberer struct {
	mu  sync.Mutex
	seq int64
	now func() time.Time
}

func NewInvoiceNumberer() *InvoiceNumberer {
	return &InvoiceNumberer{now: time.Now}
}

func (n *InvoiceNumberer) NextInvoiceNumber(ctx context.Context, prospectID string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	return fmt.Sprintf("INV-%d-%06d", n.now().Year(), n.seq), nil
}
