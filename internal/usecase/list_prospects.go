package usecase

import (
	"context"
	"strings"

	"github.com/xavierca1/immigration-crm/internal/entity"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListProspectsUseCase serves the read side used by the dashboards.
type ListProspectsUseCase struct {
	Repo entity.ProspectRepositoryInterface
}

func NewListProspectsUseCase(repo entity.ProspectRepositoryInterface) *ListProspectsUseCase {
	return &ListProspectsUseCase{Repo: repo}
}

// scope narrows what an actor sees: employees their own assignments, consultants the
// prospects that reached the consultation stage.
func scope(actor entity.Actor, q *entity.ProspectQuery) {
	switch actor.Role {
	case entity.RoleEmployee:
		q.AssignedTo = actor.ID
	case entity.RoleConsultant:
		if q.Status == "" {
			q.Statuses = []entity.Status{entity.StatusPaid, entity.StatusInConsultation, entity.StatusConverted}
		}
	}
}

func (uc *ListProspectsUseCase) List(ctx context.Context, actor entity.Actor, input ListProspectsInput) (*ListProspectsOutput, error) {
	if err := authorize(actor, OpList); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	q := entity.ProspectQuery{
		AssignedTo: strings.TrimSpace(input.AssignedTo),
		Search:     strings.TrimSpace(input.Search),
		SortBy:     input.SortBy,
		Descending: input.Order != "asc",
		Limit:      input.Limit,
		Offset:     input.Offset,
	}
	if input.Status != "" {
		q.Status, _ = entity.ParseStatus(input.Status)
	}
	if q.SortBy == "" {
		q.SortBy = "created_at"
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	scope(actor, &q)

	items, total, err := uc.Repo.List(ctx, q)
	if err != nil {
		return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: "failed to list prospects: " + err.Error(), Cause: err}
	}
	if items == nil {
		items = []*entity.Prospect{}
	}
	return &ListProspectsOutput{Items: items, Total: total}, nil
}

func (uc *ListProspectsUseCase) Get(ctx context.Context, actor entity.Actor, id string) (*entity.Prospect, error) {
	if err := authorize(actor, OpView); err != nil {
		return nil, err
	}
	if err := requireText("id", id); err != nil {
		return nil, err
	}
	p, err := uc.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err, id)
	}
	if actor.Role == entity.RoleEmployee && p.AssignedTo != actor.ID {
		return nil, &DomainError{Code: CodeForbidden, Message: "prospect is assigned to another employee"}
	}
	return p, nil
}

// Stats counts prospects per status within the actor's scope.
func (uc *ListProspectsUseCase) Stats(ctx context.Context, actor entity.Actor) (*PipelineStatsOutput, error) {
	if err := authorize(actor, OpStats); err != nil {
		return nil, err
	}
	assignedTo := ""
	if actor.Role == entity.RoleEmployee {
		assignedTo = actor.ID
	}
	counts, err := uc.Repo.CountByStatus(ctx, assignedTo)
	if err != nil {
		return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: "failed to count prospects: " + err.Error(), Cause: err}
	}

	out := &PipelineStatsOutput{Counts: make(map[entity.Status]int, len(entity.Statuses))}
	for _, st := range entity.Statuses {
		out.Counts[st] = counts[st]
		out.Total += counts[st]
	}
	return out, nil
}
