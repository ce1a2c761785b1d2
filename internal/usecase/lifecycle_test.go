package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/database/memory"
	"github.com/xavierca1/immigration-crm/internal/infra/integration/casedesk"
)

var (
	superAdmin = entity.Actor{ID: "sa-1", Name: "Fatou", Role: entity.RoleSuperAdmin}
	manager    = entity.Actor{ID: "mgr-1", Name: "Mariam", Role: entity.RoleManager}
	employee   = entity.Actor{ID: "emp-1", Name: "Awa", Role: entity.RoleEmployee}
	consultant = entity.Actor{ID: "cons-1", Name: "Jean", Role: entity.RoleConsultant}
	client     = entity.Actor{ID: "cli-1", Name: "Moussa", Role: entity.RoleClient}
)

type lifecycleFixture struct {
	repo      *memory.ProspectRepository
	invoices  *memory.InvoiceNumberer
	clients   *MockClientProvisioner
	publisher *MockActivityPublisher
	uc        *LifecycleUseCase
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		repo:      memory.NewProspectRepository(),
		invoices:  memory.NewInvoiceNumberer(),
		clients:   new(MockClientProvisioner),
		publisher: new(MockActivityPublisher),
	}
	f.publisher.On("PublishActivity", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.uc = NewLifecycleUseCase(f.repo, f.invoices, f.clients, f.publisher, DefaultConsultationFee)
	f.uc.Now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return f
}

func (f *lifecycleFixture) seed(t *testing.T) *entity.Prospect {
	t.Helper()
	p := entity.NewProspect("Koffi Mensah", "koffi@example.com", "+22890000000", "Togo", "study",
		"Je souhaite étudier au Canada", entity.SourceContactForm, time.Now().UTC())
	require.NoError(t, f.repo.Create(context.Background(), p))
	return p
}

// advance drives a fresh prospect to the requested status through the regular operations.
func (f *lifecycleFixture) advance(t *testing.T, to entity.Status) *entity.Prospect {
	t.Helper()
	ctx := context.Background()
	p := f.seed(t)
	if to == entity.StatusNew {
		return p
	}

	p, err := f.uc.Assign(ctx, superAdmin, AssignInput{ProspectID: p.ID, EmployeeID: employee.ID, EmployeeName: employee.Name})
	require.NoError(t, err)
	if to == entity.StatusAssigned {
		return p
	}

	p, err = f.uc.AssignToConsultant(ctx, employee, AssignToConsultantInput{ProspectID: p.ID, PaymentMethod: "Cash"})
	require.NoError(t, err)
	if to == entity.StatusPaid {
		return p
	}

	switch to {
	case entity.StatusInConsultation:
		p, err = f.uc.EnterConsultation(ctx, consultant, TransitionInput{ProspectID: p.ID})
	case entity.StatusConverted:
		f.clients.On("CreateClient", mock.Anything, mock.Anything).
			Return(&entity.ClientAccount{ClientID: "client-" + p.ID, CaseID: "case-" + p.ID}, nil).Once()
		p, err = f.uc.ConvertToClient(ctx, consultant, TransitionInput{ProspectID: p.ID})
	case entity.StatusArchived:
		p, err = f.uc.Archive(ctx, manager, TransitionInput{ProspectID: p.ID})
	}
	require.NoError(t, err)
	require.Equal(t, to, p.Status)
	return p
}

func TestLifecycle_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	p := f.seed(t)
	require.Equal(t, entity.StatusNew, p.Status)

	t.Run("SuperAdmin assigns a new prospect", func(t *testing.T) {
		got, err := f.uc.Assign(ctx, superAdmin, AssignInput{ProspectID: p.ID, EmployeeID: "emp-1", EmployeeName: "Awa"})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusAssigned, got.Status)
		assert.Equal(t, "emp-1", got.AssignedTo)
		assert.Equal(t, "Awa", got.AssignedToName)
	})

	t.Run("Employee records the consultation payment", func(t *testing.T) {
		got, err := f.uc.AssignToConsultant(ctx, employee, AssignToConsultantInput{ProspectID: p.ID, PaymentMethod: "Cash"})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPaid, got.Status)
		assert.Equal(t, int64(50000), got.Payment50kAmount)
		assert.Equal(t, "Cash", got.PaymentMethod)
		assert.Regexp(t, `^INV-\d{4}-000001$`, got.InvoiceNumber)
		require.NotNil(t, got.PaymentConfirmedAt)
	})

	t.Run("Consultant adds a note without changing status", func(t *testing.T) {
		got, err := f.uc.AddConsultantNote(ctx, consultant, AddConsultantNoteInput{ProspectID: p.ID, Note: "Client very motivated"})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPaid, got.Status)
		require.Len(t, got.ConsultantNotes, 1)
		assert.Equal(t, "Client very motivated", got.ConsultantNotes[0].Content)
		assert.Equal(t, "Jean", got.ConsultantNotes[0].CreatedBy)
	})

	t.Run("Consultant opens the consultation", func(t *testing.T) {
		got, err := f.uc.EnterConsultation(ctx, consultant, TransitionInput{ProspectID: p.ID})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusInConsultation, got.Status)
	})

	t.Run("Consultant converts and the client service is called once", func(t *testing.T) {
		f.clients.On("CreateClient", mock.Anything, casedesk.CreateClientInput{
			Name:             "Koffi Mensah",
			Email:            "koffi@example.com",
			Phone:            "+22890000000",
			Country:          "Togo",
			VisaType:         "study",
			SourceProspectID: p.ID,
		}).Return(&entity.ClientAccount{ClientID: "cl-9", CaseID: "case-9"}, nil).Once()

		got, err := f.uc.ConvertToClient(ctx, consultant, TransitionInput{ProspectID: p.ID})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusConverted, got.Status)
		assert.Equal(t, "cl-9", got.ClientID)
		assert.Equal(t, "case-9", got.CaseID)
		f.clients.AssertNumberOfCalls(t, "CreateClient", 1)
	})

	t.Run("History is a valid path through the graph", func(t *testing.T) {
		got, err := f.repo.FindByID(ctx, p.ID)
		require.NoError(t, err)

		path := []entity.Status{entity.StatusNew}
		for _, c := range got.StatusHistory {
			assert.Equal(t, path[len(path)-1], c.From)
			assert.True(t, validTransition(c.From, c.To), "%s -> %s", c.From, c.To)
			path = append(path, c.To)
		}
		assert.Equal(t, []entity.Status{
			entity.StatusNew, entity.StatusAssigned, entity.StatusPaid, entity.StatusInConsultation, entity.StatusConverted,
		}, path)
		assert.Equal(t, int64(5), got.Version, "notes do not bump the version")
	})

	f.publisher.AssertCalled(t, "PublishActivity", mock.Anything, eventOfType(entity.EventPaymentConfirmed))
	f.publisher.AssertCalled(t, "PublishActivity", mock.Anything, eventOfType(entity.EventProspectConverted))
}

func TestLifecycle_EmployeeCannotAssign(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	p := f.seed(t)

	_, err := f.uc.Assign(ctx, employee, AssignInput{ProspectID: p.ID, EmployeeID: "emp-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusNew, got.Status)
	assert.Empty(t, got.AssignedTo)
}

func TestLifecycle_RoleEnforcement(t *testing.T) {
	ctx := context.Background()

	type call func(f *lifecycleFixture, actor entity.Actor, id string) error
	ops := []struct {
		op   Operation
		from entity.Status
		call call
	}{
		{OpAssign, entity.StatusNew, func(f *lifecycleFixture, a entity.Actor, id string) error {
			_, err := f.uc.Assign(ctx, a, AssignInput{ProspectID: id, EmployeeID: "emp-9"})
			return err
		}},
		{OpReassign, entity.StatusAssigned, func(f *lifecycleFixture, a entity.Actor, id string) error {
			_, err := f.uc.Reassign(ctx, a, AssignInput{ProspectID: id, EmployeeID: "emp-9"})
			return err
		}},
		{OpAssignToConsultant, entity.StatusAssigned, func(f *lifecycleFixture, a entity.Actor, id string) error {
			_, err := f.uc.AssignToConsultant(ctx, a, AssignToConsultantInput{ProspectID: id, PaymentMethod: "Wave"})
			return err
		}},
		{OpAddConsultantNote, entity.StatusPaid, func(f *lifecycleFixture, a entity.Actor, id string) error {
			_, err := f.uc.AddConsultantNote(ctx, a, AddConsultantNoteInput{ProspectID: id, Note: "note"})
			return err
		}},
		{OpEnterConsultation, entity.StatusPaid, func(f *lifecycleFixture, a entity.Actor, id string) error {
			_, err := f.uc.EnterConsultation(ctx, a, TransitionInput{ProspectID: id})
			return err
		}},
		{OpConvert, entity.StatusInConsultation, func(f *lifecycleFixture, a entity.Actor, id string) error {
			_, err := f.uc.ConvertToClient(ctx, a, TransitionInput{ProspectID: id})
			return err
		}},
		{OpArchive, entity.StatusAssigned, func(f *lifecycleFixture, a entity.Actor, id string) error {
			_, err := f.uc.Archive(ctx, a, TransitionInput{ProspectID: id})
			return err
		}},
	}

	actors := []entity.Actor{superAdmin, manager, employee, consultant, client}
	for _, o := range ops {
		for _, actor := range actors {
			if RoleAllowed(actor.Role, o.op) {
				continue
			}
			t.Run(fmt.Sprintf("%s by %s", o.op, actor.Role), func(t *testing.T) {
				f := newLifecycleFixture(t)
				before := f.advance(t, o.from)

				err := o.call(f, actor, before.ID)
				assert.ErrorIs(t, err, ErrForbidden)

				after, err := f.repo.FindByID(ctx, before.ID)
				require.NoError(t, err)
				assert.Equal(t, before, after, "record must be untouched")
				f.clients.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything)
			})
		}
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("Assign twice", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.advance(t, entity.StatusAssigned)
		_, err := f.uc.Assign(ctx, superAdmin, AssignInput{ProspectID: p.ID, EmployeeID: "emp-2"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Payment skipped straight from nouveau", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.seed(t)
		_, err := f.uc.AssignToConsultant(ctx, manager, AssignToConsultantInput{ProspectID: p.ID, PaymentMethod: "Cash"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("Convert before payment", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.advance(t, entity.StatusAssigned)
		_, err := f.uc.ConvertToClient(ctx, manager, TransitionInput{ProspectID: p.ID})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		f.clients.AssertNotCalled(t, "CreateClient", mock.Anything, mock.Anything)
	})

	t.Run("Enter consultation twice", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.advance(t, entity.StatusInConsultation)
		_, err := f.uc.EnterConsultation(ctx, consultant, TransitionInput{ProspectID: p.ID})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	for _, terminal := range []entity.Status{entity.StatusConverted, entity.StatusArchived} {
		t.Run("Archive from "+string(terminal), func(t *testing.T) {
			f := newLifecycleFixture(t)
			p := f.advance(t, terminal)
			_, err := f.uc.Archive(ctx, manager, TransitionInput{ProspectID: p.ID})
			assert.ErrorIs(t, err, ErrInvalidTransition)

			_, err = f.uc.Reassign(ctx, manager, AssignInput{ProspectID: p.ID, EmployeeID: "emp-2"})
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestLifecycle_ArchiveFromEveryOpenStatus(t *testing.T) {
	for _, from := range []entity.Status{entity.StatusNew, entity.StatusAssigned, entity.StatusPaid, entity.StatusInConsultation} {
		t.Run(string(from), func(t *testing.T) {
			f := newLifecycleFixture(t)
			p := f.advance(t, from)

			got, err := f.uc.Archive(context.Background(), superAdmin, TransitionInput{ProspectID: p.ID})
			require.NoError(t, err)
			assert.Equal(t, entity.StatusArchived, got.Status)
			assert.Equal(t, p.InvoiceNumber, got.InvoiceNumber, "payment record survives archiving")
		})
	}
}

func TestLifecycle_NotFound(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.uc.Assign(context.Background(), superAdmin, AssignInput{ProspectID: "missing", EmployeeID: "emp-1"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.uc.AddConsultantNote(context.Background(), consultant, AddConsultantNoteInput{ProspectID: "missing", Note: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycle_ForbiddenBeforeNotFound(t *testing.T) {
	f := newLifecycleFixture(t)

	_, err := f.uc.Archive(context.Background(), employee, TransitionInput{ProspectID: "missing"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLifecycle_AssignToConsultantIdempotency(t *testing.T) {
	ctx := context.Background()
	invoices := new(MockInvoiceNumberer)
	f := newLifecycleFixture(t)
	f.uc.Invoices = invoices
	p := f.advance(t, entity.StatusAssigned)

	invoices.On("NextInvoiceNumber", mock.Anything, p.ID).Return("INV-2026-000042", nil).Once()

	input := AssignToConsultantInput{ProspectID: p.ID, PaymentMethod: "Orange Money", TransactionReference: "OM-123", IdempotencyKey: "pay-abc"}
	first, err := f.uc.AssignToConsultant(ctx, employee, input)
	require.NoError(t, err)

	input.ExpectedVersion = p.Version // stale, but a replay does not check it
	second, err := f.uc.AssignToConsultant(ctx, employee, input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "INV-2026-000042", second.InvoiceNumber)
	invoices.AssertNumberOfCalls(t, "NextInvoiceNumber", 1)

	// a single payment.confirmed for both calls
	confirmed := 0
	for _, c := range f.publisher.Calls {
		if c.Arguments.Get(1).(entity.ActivityEvent).Type == entity.EventPaymentConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)

	t.Run("A different key cannot record a second payment", func(t *testing.T) {
		input.IdempotencyKey = "pay-other"
		input.ExpectedVersion = 0
		_, err := f.uc.AssignToConsultant(ctx, employee, input)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		invoices.AssertNumberOfCalls(t, "NextInvoiceNumber", 1)
	})
}

func TestLifecycle_AssignToConsultantFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Non-positive fee", func(t *testing.T) {
		f := newLifecycleFixture(t)
		f.uc.ConsultationFee = 0
		p := f.advance(t, entity.StatusAssigned)

		_, err := f.uc.AssignToConsultant(ctx, employee, AssignToConsultantInput{ProspectID: p.ID, PaymentMethod: "Cash"})
		assert.ErrorIs(t, err, ErrInvalidAmount)

		got, _ := f.repo.FindByID(ctx, p.ID)
		assert.Equal(t, entity.StatusAssigned, got.Status)
		assert.Empty(t, got.InvoiceNumber)
	})

	t.Run("Missing payment method", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.advance(t, entity.StatusAssigned)

		_, err := f.uc.AssignToConsultant(ctx, employee, AssignToConsultantInput{ProspectID: p.ID, PaymentMethod: "   "})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Invoice numbering failure leaves the prospect unpaid", func(t *testing.T) {
		invoices := new(MockInvoiceNumberer)
		f := newLifecycleFixture(t)
		f.uc.Invoices = invoices
		p := f.advance(t, entity.StatusAssigned)
		invoices.On("NextInvoiceNumber", mock.Anything, p.ID).Return("", errors.New("sequence unavailable"))

		_, err := f.uc.AssignToConsultant(ctx, employee, AssignToConsultantInput{ProspectID: p.ID, PaymentMethod: "Cash"})
		require.Error(t, err)
		assert.True(t, IsTechnicalError(err))

		got, _ := f.repo.FindByID(ctx, p.ID)
		assert.Equal(t, entity.StatusAssigned, got.Status)
		assert.Equal(t, p.Version, got.Version)
	})
}

func TestLifecycle_InvoiceNumbersAreUnique(t *testing.T) {
	f := newLifecycleFixture(t)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		p := f.advance(t, entity.StatusPaid)
		assert.NotEmpty(t, p.InvoiceNumber)
		assert.False(t, seen[p.InvoiceNumber], "duplicate invoice %s", p.InvoiceNumber)
		seen[p.InvoiceNumber] = true
	}
}

func TestLifecycle_ConsultantNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("Append-only and ordered", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.advance(t, entity.StatusPaid)

		var prev []entity.ConsultantNote
		for i := 0; i < 3; i++ {
			got, err := f.uc.AddConsultantNote(ctx, consultant, AddConsultantNoteInput{ProspectID: p.ID, Note: fmt.Sprintf("note %d", i)})
			require.NoError(t, err)
			require.Len(t, got.ConsultantNotes, len(prev)+1)
			assert.Equal(t, prev, got.ConsultantNotes[:len(prev)])
			prev = got.ConsultantNotes
		}

		got, err := f.uc.EnterConsultation(ctx, employee, TransitionInput{ProspectID: p.ID})
		require.NoError(t, err)
		assert.Equal(t, prev, got.ConsultantNotes)
	})

	t.Run("Empty note", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.advance(t, entity.StatusPaid)
		_, err := f.uc.AddConsultantNote(ctx, consultant, AddConsultantNoteInput{ProspectID: p.ID, Note: "  \n"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Created by falls back to the actor id", func(t *testing.T) {
		f := newLifecycleFixture(t)
		p := f.advance(t, entity.StatusPaid)
		got, err := f.uc.AddConsultantNote(ctx, entity.Actor{ID: "cons-7", Role: entity.RoleConsultant}, AddConsultantNoteInput{ProspectID: p.ID, Note: "ok"})
		require.NoError(t, err)
		assert.Equal(t, "cons-7", got.ConsultantNotes[0].CreatedBy)
	})

	for _, status := range []entity.Status{entity.StatusNew, entity.StatusAssigned, entity.StatusConverted, entity.StatusArchived} {
		t.Run("Rejected in "+string(status), func(t *testing.T) {
			f := newLifecycleFixture(t)
			p := f.advance(t, status)
			_, err := f.uc.AddConsultantNote(ctx, consultant, AddConsultantNoteInput{ProspectID: p.ID, Note: "late"})
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestLifecycle_Reassign(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	p := f.advance(t, entity.StatusPaid)

	got, err := f.uc.Reassign(ctx, manager, AssignInput{ProspectID: p.ID, EmployeeID: "emp-2", EmployeeName: "Ibrahima"})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaid, got.Status)
	assert.Equal(t, "emp-2", got.AssignedTo)
	assert.Len(t, got.StatusHistory, len(p.StatusHistory), "reassignment is not a status change")

	f.publisher.AssertCalled(t, "PublishActivity", mock.Anything, mock.MatchedBy(func(e entity.ActivityEvent) bool {
		return e.Type == entity.EventProspectReassigned && e.Payload["previous_assigned_to"] == employee.ID
	}))

	fresh := f.seed(t)
	_, err = f.uc.Reassign(ctx, manager, AssignInput{ProspectID: fresh.ID, EmployeeID: "emp-2"})
	assert.ErrorIs(t, err, ErrInvalidState, "a new prospect goes through assign")
}

func TestLifecycle_ExpectedVersion(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	p := f.seed(t)

	_, err := f.uc.Assign(ctx, superAdmin, AssignInput{ProspectID: p.ID, EmployeeID: "emp-1", ExpectedVersion: p.Version + 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.True(t, de.Retryable())

	got, err := f.uc.Assign(ctx, superAdmin, AssignInput{ProspectID: p.ID, EmployeeID: "emp-1", ExpectedVersion: p.Version})
	require.NoError(t, err)
	assert.Equal(t, p.Version+1, got.Version)
}

func TestLifecycle_ConvertFailureKeepsStatus(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	p := f.advance(t, entity.StatusInConsultation)
	f.clients.On("CreateClient", mock.Anything, mock.Anything).Return(nil, errors.New("case service down")).Once()

	_, err := f.uc.ConvertToClient(ctx, consultant, TransitionInput{ProspectID: p.ID})
	require.Error(t, err)
	assert.True(t, IsTechnicalError(err))

	got, _ := f.repo.FindByID(ctx, p.ID)
	assert.Equal(t, entity.StatusInConsultation, got.Status)
	assert.Empty(t, got.ClientID)
}

func TestLifecycle_ConcurrentConvert(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	p := f.advance(t, entity.StatusPaid)

	f.clients.On("CreateClient", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(10 * time.Millisecond) }).
		Return(&entity.ClientAccount{ClientID: "cl-1", CaseID: "case-1"}, nil)

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.uc.ConvertToClient(ctx, consultant, TransitionInput{ProspectID: p.ID, ExpectedVersion: p.Version})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		code := ErrorCode(err)
		assert.Contains(t, []string{CodeConflict, CodeInvalidTransition}, code)
	}
	assert.Equal(t, 1, succeeded)
	f.clients.AssertNumberOfCalls(t, "CreateClient", 1)

	got, err := f.repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusConverted, got.Status)
}

func TestLifecycle_NoteRacingArchive(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	p := f.advance(t, entity.StatusPaid)

	var wg sync.WaitGroup
	var noteErr, archiveErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, noteErr = f.uc.AddConsultantNote(ctx, consultant, AddConsultantNoteInput{ProspectID: p.ID, Note: "racing"})
	}()
	go func() {
		defer wg.Done()
		_, archiveErr = f.uc.Archive(ctx, manager, TransitionInput{ProspectID: p.ID})
	}()
	wg.Wait()

	require.NoError(t, archiveErr)
	got, err := f.repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusArchived, got.Status)
	if noteErr != nil {
		assert.ErrorIs(t, noteErr, ErrInvalidState)
		assert.Empty(t, got.ConsultantNotes)
	} else {
		assert.Len(t, got.ConsultantNotes, 1)
	}
}

func TestLifecycle_PublishFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture(t)
	publisher := new(MockActivityPublisher)
	publisher.On("PublishActivity", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.uc.Publisher = publisher
	p := f.seed(t)

	got, err := f.uc.Assign(ctx, superAdmin, AssignInput{ProspectID: p.ID, EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAssigned, got.Status)
	publisher.AssertCalled(t, "PublishActivity", mock.Anything, eventOfType(entity.EventProspectAssigned))
}
