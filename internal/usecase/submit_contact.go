package usecase

import (
	"context"
	"log"
	"time"

	"github.com/xavierca1/immigration-crm/internal/entity"
)

// SubmitContactUseCase turns a public contact-form submission into a nouveau prospect.
type SubmitContactUseCase struct {
	Repo      entity.ProspectRepositoryInterface
	Publisher ActivityPublisher
	Now       func() time.Time
}

func NewSubmitContactUseCase(repo entity.ProspectRepositoryInterface, publisher ActivityPublisher) *SubmitContactUseCase {
	return &SubmitContactUseCase{
		Repo:      repo,
		Publisher: publisher,
		Now:       time.Now,
	}
}

func (uc *SubmitContactUseCase) Execute(ctx context.Context, input SubmitContactInput) (*entity.Prospect, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := requireText("name", input.Name); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if uc.Now != nil {
		now = uc.Now().UTC()
	}

	p := entity.NewProspect(
		input.Name, input.Email, input.Phone, input.Country, input.VisaType, input.Message,
		entity.SourceContactForm, now,
	)
	if err := uc.Repo.Create(ctx, p); err != nil {
		return nil, &TechnicalError{Code: "DATABASE_ERROR", Message: "failed to save contact message: " + err.Error(), Cause: err}
	}

	log.Printf("📥 New contact message %s from %s (%s)", p.ID, p.Email, p.VisaType)

	// the public form has no authenticated actor
	visitor := entity.Actor{ID: "contact-form", Name: p.Name}
	emitActivity(ctx, uc.Publisher, now, entity.EventProspectCreated, visitor, p, map[string]any{
		"name":      p.Name,
		"email":     p.Email,
		"country":   p.Country,
		"visa_type": p.VisaType,
	})
	return p, nil
}
