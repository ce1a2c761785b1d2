package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/integration/casedesk"
)

// DefaultConsultationFee is the fixed consultation payment recorded on paiement_50k.
const DefaultConsultationFee int64 = 50000

// LifecycleUseCase is the single authority for prospect status transitions.
// It keeps no state between calls; every method gets the caller as an explicit Actor.
type LifecycleUseCase struct {
	Repo            entity.ProspectRepositoryInterface
	Invoices        InvoiceNumberer
	Clients         ClientProvisioner
	Publisher       ActivityPublisher
	ConsultationFee int64
	Now             func() time.Time
}

func NewLifecycleUseCase(
	repo entity.ProspectRepositoryInterface,
	invoices InvoiceNumberer,
	clients ClientProvisioner,
	publisher ActivityPublisher,
	consultationFee int64,
) *LifecycleUseCase {
	return &LifecycleUseCase{
		Repo:            repo,
		Invoices:        invoices,
		Clients:         clients,
		Publisher:       publisher,
		ConsultationFee: consultationFee,
		Now:             time.Now,
	}
}

func (uc *LifecycleUseCase) now() time.Time {
	if uc.Now == nil {
		return time.Now().UTC()
	}
	return uc.Now().UTC()
}

func authorize(actor entity.Actor, op Operation) error {
	if !RoleAllowed(actor.Role, op) {
		return &DomainError{
			Code:    CodeForbidden,
			Message: fmt.Sprintf("role %q may not %s", actor.Role, op),
		}
	}
	return nil
}

// transition runs the common read-validate-write sequence for op. apply mutates the candidate
// record (side-effect fields) after preconditions passed; the status change and audit entry are
// added here.
func (uc *LifecycleUseCase) transition(
	ctx context.Context,
	actor entity.Actor,
	op Operation,
	prospectID string,
	expectedVersion int64,
	apply func(ctx context.Context, current, next *entity.Prospect) error,
) (*entity.Prospect, error) {
	return uc.transitionWithReplay(ctx, actor, op, prospectID, expectedVersion, nil, apply)
}

// transitionWithReplay is transition with an idempotency hook: when replay reports true for
// the locked record, nothing is written and the stored record is returned as is.
func (uc *LifecycleUseCase) transitionWithReplay(
	ctx context.Context,
	actor entity.Actor,
	op Operation,
	prospectID string,
	expectedVersion int64,
	replay func(current *entity.Prospect) bool,
	apply func(ctx context.Context, current, next *entity.Prospect) error,
) (*entity.Prospect, error) {
	to, isTransition := TargetStatus(op)

	saved, err := uc.Repo.Transition(ctx, prospectID, func(ctx context.Context, current *entity.Prospect) (*entity.Prospect, *entity.Mutation, error) {
		if replay != nil && replay(current) {
			return nil, nil, nil
		}
		if expectedVersion != 0 && current.Version != expectedVersion {
			return nil, nil, &DomainError{
				Code:    CodeConflict,
				Message: fmt.Sprintf("prospect is at version %d, request expected %d", current.Version, expectedVersion),
			}
		}
		if !StatusAllowed(op, current.Status) {
			code := CodeInvalidState
			if isTransition {
				code = CodeInvalidTransition
			}
			return nil, nil, &DomainError{
				Code:    code,
				Message: fmt.Sprintf("cannot %s a prospect in status %s", op, current.Status),
			}
		}

		now := uc.now()
		next := current.Clone()
		if apply != nil {
			if err := apply(ctx, current, next); err != nil {
				return nil, nil, err
			}
		}
		next.UpdatedAt = now

		mutation := &entity.Mutation{}
		if isTransition {
			change := entity.StatusChange{
				From:      current.Status,
				To:        to,
				ActorID:   actor.ID,
				ActorRole: actor.Role,
				At:        now,
			}
			next.Status = to
			next.StatusHistory = append(next.StatusHistory, change)
			mutation.Transition = &change
		}
		return next, mutation, nil
	})
	if err != nil {
		return nil, translateStoreError(err, prospectID)
	}
	return saved, nil
}

// translateStoreError maps repository sentinels onto the domain taxonomy.
func translateStoreError(err error, prospectID string) error {
	switch {
	case IsDomainError(err):
		return err
	case errors.Is(err, entity.ErrProspectNotFound):
		return &DomainError{Code: CodeNotFound, Message: fmt.Sprintf("prospect %s not found", prospectID), Cause: err}
	case errors.Is(err, entity.ErrVersionConflict):
		return &DomainError{Code: CodeConflict, Message: "prospect was modified by another request, reload and retry", Cause: err}
	case IsTechnicalError(err):
		return err
	default:
		return &TechnicalError{Code: "DATABASE_ERROR", Message: "failed to persist prospect: " + err.Error(), Cause: err}
	}
}

// emit publishes after commit. The sink is fire-and-forget: a failure is logged, the
// transition stands.
func (uc *LifecycleUseCase) emit(ctx context.Context, eventType string, actor entity.Actor, p *entity.Prospect, payload map[string]any) {
	emitActivity(ctx, uc.Publisher, uc.now(), eventType, actor, p, payload)
}

func emitActivity(ctx context.Context, publisher ActivityPublisher, now time.Time, eventType string, actor entity.Actor, p *entity.Prospect, payload map[string]any) {
	if publisher == nil {
		return
	}
	event := entity.ActivityEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		ProspectID: p.ID,
		Actor:      actor,
		Timestamp:  now,
		Payload:    payload,
	}
	if err := publisher.PublishActivity(ctx, event); err != nil {
		log.Printf("⚠️ %s committed for prospect %s, but activity publish failed: %v", eventType, p.ID, err)
	}
}

// Assign hands a new prospect to an employee. SUPERADMIN only.
func (uc *LifecycleUseCase) Assign(ctx context.Context, actor entity.Actor, input AssignInput) (*entity.Prospect, error) {
	if err := authorize(actor, OpAssign); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := requireText("assigned_to", input.EmployeeID); err != nil {
		return nil, err
	}

	p, err := uc.transition(ctx, actor, OpAssign, input.ProspectID, input.ExpectedVersion,
		func(_ context.Context, _, next *entity.Prospect) error {
			next.AssignedTo = input.EmployeeID
			next.AssignedToName = input.EmployeeName
			return nil
		})
	if err != nil {
		return nil, err
	}

	log.Printf("📌 Prospect %s assigned to %s by %s", p.ID, p.AssignedTo, actor.ID)
	uc.emit(ctx, entity.EventProspectAssigned, actor, p, map[string]any{
		"assigned_to":      p.AssignedTo,
		"assigned_to_name": p.AssignedToName,
	})
	return p, nil
}

// Reassign changes the responsible employee without touching the status.
func (uc *LifecycleUseCase) Reassign(ctx context.Context, actor entity.Actor, input AssignInput) (*entity.Prospect, error) {
	if err := authorize(actor, OpReassign); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := requireText("assigned_to", input.EmployeeID); err != nil {
		return nil, err
	}

	var previous string
	p, err := uc.transition(ctx, actor, OpReassign, input.ProspectID, input.ExpectedVersion,
		func(_ context.Context, current, next *entity.Prospect) error {
			previous = current.AssignedTo
			next.AssignedTo = input.EmployeeID
			next.AssignedToName = input.EmployeeName
			return nil
		})
	if err != nil {
		return nil, err
	}

	uc.emit(ctx, entity.EventProspectReassigned, actor, p, map[string]any{
		"previous_assigned_to": previous,
		"assigned_to":          p.AssignedTo,
		"assigned_to_name":     p.AssignedToName,
	})
	return p, nil
}

// AssignToConsultant records the fixed consultation payment, numbers the invoice and moves
// the prospect to paiement_50k. Replaying the same idempotency key returns the recorded
// payment without numbering a second invoice.
func (uc *LifecycleUseCase) AssignToConsultant(ctx context.Context, actor entity.Actor, input AssignToConsultantInput) (*entity.Prospect, error) {
	if err := authorize(actor, OpAssignToConsultant); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := requireText("payment_method", input.PaymentMethod); err != nil {
		return nil, err
	}

	replayed := false
	isReplay := func(current *entity.Prospect) bool {
		replayed = input.IdempotencyKey != "" && current.HasPayment() &&
			current.PaymentIdempotencyKey == input.IdempotencyKey
		return replayed
	}

	p, err := uc.transitionWithReplay(ctx, actor, OpAssignToConsultant, input.ProspectID, input.ExpectedVersion, isReplay,
		func(ctx context.Context, current, next *entity.Prospect) error {
			if current.HasPayment() {
				return &DomainError{Code: CodeInvalidState, Message: "consultation payment already recorded"}
			}
			amount := uc.ConsultationFee
			if amount <= 0 {
				return &DomainError{Code: CodeInvalidAmount, Message: fmt.Sprintf("consultation fee must be positive, got %d", amount)}
			}

			invoice, err := uc.Invoices.NextInvoiceNumber(ctx, current.ID)
			if err != nil {
				return &TechnicalError{Code: "INVOICE_NUMBERING_FAILED", Message: "failed to number invoice: " + err.Error(), Cause: err}
			}
			if invoice == "" {
				return &TechnicalError{Code: "INVOICE_NUMBERING_FAILED", Message: "invoice numbering returned an empty number"}
			}

			confirmedAt := uc.now()
			next.Payment50kAmount = amount
			next.PaymentMethod = input.PaymentMethod
			next.TransactionReference = input.TransactionReference
			next.InvoiceNumber = invoice
			next.PaymentIdempotencyKey = input.IdempotencyKey
			next.PaymentConfirmedAt = &confirmedAt
			return nil
		})
	if err != nil {
		return nil, err
	}
	if replayed {
		log.Printf("🔁 Payment replay for prospect %s (key %s), invoice %s", p.ID, input.IdempotencyKey, p.InvoiceNumber)
		return p, nil
	}

	log.Printf("💰 Consultation payment confirmed for prospect %s, invoice %s", p.ID, p.InvoiceNumber)
	uc.emit(ctx, entity.EventPaymentConfirmed, actor, p, map[string]any{
		"invoice_number":        p.InvoiceNumber,
		"amount":                p.Payment50kAmount,
		"payment_method":        p.PaymentMethod,
		"transaction_reference": p.TransactionReference,
		"name":                  p.Name,
		"email":                 p.Email,
	})
	return p, nil
}

// AddConsultantNote appends a note while the prospect is paid or in consultation.
func (uc *LifecycleUseCase) AddConsultantNote(ctx context.Context, actor entity.Actor, input AddConsultantNoteInput) (*entity.Prospect, error) {
	if err := authorize(actor, OpAddConsultantNote); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := requireText("note", input.Note); err != nil {
		return nil, err
	}

	createdBy := actor.Name
	if createdBy == "" {
		createdBy = actor.ID
	}
	note := entity.ConsultantNote{
		ID:        uuid.New().String(),
		Content:   input.Note,
		CreatedBy: createdBy,
		CreatedAt: uc.now(),
	}

	p, err := uc.Repo.AppendNote(ctx, input.ProspectID, note, func(current entity.Status) error {
		if !StatusAllowed(OpAddConsultantNote, current) {
			return &DomainError{
				Code:    CodeInvalidState,
				Message: fmt.Sprintf("notes can only be added while paid or in consultation, prospect is %s", current),
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, input.ProspectID)
	}

	uc.emit(ctx, entity.EventConsultantNoteAdded, actor, p, map[string]any{
		"note_id":    note.ID,
		"created_by": note.CreatedBy,
	})
	return p, nil
}

// EnterConsultation moves a paid prospect into consultation.
func (uc *LifecycleUseCase) EnterConsultation(ctx context.Context, actor entity.Actor, input TransitionInput) (*entity.Prospect, error) {
	if err := authorize(actor, OpEnterConsultation); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	p, err := uc.transition(ctx, actor, OpEnterConsultation, input.ProspectID, input.ExpectedVersion, nil)
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, entity.EventConsultationStarted, actor, p, nil)
	return p, nil
}

// ConvertToClient turns the prospect into a client. The client account and case are created
// while the record is locked, so concurrent conversions reach the case service only once.
func (uc *LifecycleUseCase) ConvertToClient(ctx context.Context, actor entity.Actor, input TransitionInput) (*entity.Prospect, error) {
	if err := authorize(actor, OpConvert); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	p, err := uc.transition(ctx, actor, OpConvert, input.ProspectID, input.ExpectedVersion,
		func(ctx context.Context, current, next *entity.Prospect) error {
			account, err := uc.Clients.CreateClient(ctx, clientInputFrom(current))
			if err != nil {
				return &TechnicalError{Code: "CLIENT_PROVISIONING_FAILED", Message: "failed to create client account: " + err.Error(), Cause: err}
			}
			next.ClientID = account.ClientID
			next.CaseID = account.CaseID
			return nil
		})
	if err != nil {
		return nil, err
	}

	log.Printf("🎉 Prospect %s converted: client %s, case %s", p.ID, p.ClientID, p.CaseID)
	uc.emit(ctx, entity.EventProspectConverted, actor, p, map[string]any{
		"client_id": p.ClientID,
		"case_id":   p.CaseID,
		"name":      p.Name,
		"email":     p.Email,
	})
	return p, nil
}

// Archive soft-deletes a prospect from any non-terminal status. Irreversible.
func (uc *LifecycleUseCase) Archive(ctx context.Context, actor entity.Actor, input TransitionInput) (*entity.Prospect, error) {
	if err := authorize(actor, OpArchive); err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	p, err := uc.transition(ctx, actor, OpArchive, input.ProspectID, input.ExpectedVersion, nil)
	if err != nil {
		return nil, err
	}
	uc.emit(ctx, entity.EventProspectArchived, actor, p, nil)
	return p, nil
}

func clientInputFrom(p *entity.Prospect) casedesk.CreateClientInput {
	return casedesk.CreateClientInput{
		Name:             p.Name,
		Email:            p.Email,
		Phone:            p.Phone,
		Country:          p.Country,
		VisaType:         p.VisaType,
		SourceProspectID: p.ID,
	}
}
