package usecase

import (
	"context"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/integration/casedesk"
)

// InvoiceNumberer hands out a unique invoice number for a prospect's consultation payment.
type InvoiceNumberer interface {
	NextInvoiceNumber(ctx context.Context, prospectID string) (string, error)
}

// ClientProvisioner creates the client account and case record on conversion.
type ClientProvisioner interface {
	CreateClient(ctx context.Context, input casedesk.CreateClientInput) (*entity.ClientAccount, error)
}

// ActivityPublisher is the notification/activity sink.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, event entity.ActivityEvent) error
}
