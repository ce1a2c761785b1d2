package main

import (
	"context"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/http/middleware"
	"github.com/xavierca1/immigration-crm/internal/infra/integration/casedesk"
	"github.com/xavierca1/immigration-crm/internal/usecase"
)

type instrumentedPublisher struct {
	next usecase.ActivityPublisher
}

func (p instrumentedPublisher) PublishActivity(ctx context.Context, event entity.ActivityEvent) error {
	err := p.next.PublishActivity(ctx, event)
	if err != nil {
		middleware.RecordPublishError()
	}
	return err
}

type instrumentedProvisioner struct {
	next usecase.ClientProvisioner
}

func (p instrumentedProvisioner) CreateClient(ctx context.Context, input casedesk.CreateClientInput) (*entity.ClientAccount, error) {
	account, err := p.next.CreateClient(ctx, input)
	if err != nil {
		middleware.RecordIntegrationError("casedesk")
	}
	return account, err
}
