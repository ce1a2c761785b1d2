package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/integration/casedesk"
)

// MockInvoiceNumberer - mock for InvoiceNumberer
type MockInvoiceNumberer struct {
	mock.Mock
}

func (m *MockInvoiceNumberer) NextInvoiceNumber(ctx context.Context, prospectID string) (string, error) {
	args := m.Called(ctx, prospectID)
	return args.String(0), args.Error(1)
}

// MockClientProvisioner - mock for the Client/Case service
type MockClientProvisioner struct {
	mock.Mock
}

func (m *MockClientProvisioner) CreateClient(ctx context.Context, input casedesk.CreateClientInput) (*entity.ClientAccount, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ClientAccount), args.Error(1)
}

// MockActivityPublisher - mock for the activity sink
type MockActivityPublisher struct {
	mock.Mock
}

func (m *MockActivityPublisher) PublishActivity(ctx context.Context, event entity.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// eventOfType matches a published event by its type.
func eventOfType(eventType string) any {
	return mock.MatchedBy(func(e entity.ActivityEvent) bool { return e.Type == eventType })
}
