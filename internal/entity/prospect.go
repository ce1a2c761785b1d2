package entity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProspectNotFound = errors.New("prospect not found")
	ErrVersionConflict  = errors.New("prospect was modified concurrently")
)

// Status is the position of a prospect in the sales pipeline.
type Status string

const (
	StatusNew            Status = "nouveau"
	StatusAssigned       Status = "assigne_employe"
	StatusPaid           Status = "paiement_50k"
	StatusInConsultation Status = "en_consultation"
	StatusConverted      Status = "converti_client"
	StatusArchived       Status = "archive"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{
	StatusNew,
	StatusAssigned,
	StatusPaid,
	StatusInConsultation,
	StatusConverted,
	StatusArchived,
}

func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no transition may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusConverted || s == StatusArchived
}

const (
	SourceContactForm = "contact_form"
	SourceManual      = "manual"
)

type ConsultantNote struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusChange is one entry of the audit trail, written together with the status it records.
type StatusChange struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id"`
	ActorRole Role      `json:"actor_role"`
	At        time.Time `json:"at"`
}

// Prospect is an inbound lead ("contact message") tracked through the pipeline.
type Prospect struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Country  string `json:"country"`
	VisaType string `json:"visa_type"`
	Message  string `json:"message"`
	Source   string `json:"source"`
	Status   Status `json:"status"`

	AssignedTo     string `json:"assigned_to,omitempty"`
	AssignedToName string `json:"assigned_to_name,omitempty"`

	// Financial record of the consultation payment: empty before paiement_50k, immutable after.
	Payment50kAmount      int64      `json:"payment_50k_amount,omitempty"`
	PaymentMethod         string     `json:"payment_method,omitempty"`
	TransactionReference  string     `json:"transaction_reference,omitempty"`
	InvoiceNumber         string     `json:"invoice_number,omitempty"`
	PaymentIdempotencyKey string     `json:"-"`
	PaymentConfirmedAt    *time.Time `json:"payment_confirmed_at,omitempty"`

	ClientID string `json:"client_id,omitempty"`
	CaseID   string `json:"case_id,omitempty"`

	ConsultantNotes []ConsultantNote `json:"consultant_notes"`
	StatusHistory   []StatusChange   `json:"status_history"`

	ConversionProbability int `json:"conversion_probability"`
	LeadScore             int `json:"lead_score"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProspect builds a fresh prospect in status nouveau.
func NewProspect(name, email, phone, country, visaType, message, source string, now time.Time) *Prospect {
	return &Prospect{
		ID:              uuid.New().String(),
		Name:            strings.TrimSpace(name),
		Email:           strings.TrimSpace(strings.ToLower(email)),
		Phone:           strings.TrimSpace(phone),
		Country:         strings.TrimSpace(country),
		VisaType:        strings.TrimSpace(visaType),
		Message:         strings.TrimSpace(message),
		Source:          source,
		Status:          StatusNew,
		ConsultantNotes: []ConsultantNote{},
		StatusHistory:   []StatusChange{},
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy so callers can mutate a candidate without touching the loaded record.
func (p *Prospect) Clone() *Prospect {
	cp := *p
	cp.ConsultantNotes = append([]ConsultantNote{}, p.ConsultantNotes...)
	cp.StatusHistory = append([]StatusChange{}, p.StatusHistory...)
	if p.PaymentConfirmedAt != nil {
		t := *p.PaymentConfirmedAt
		cp.PaymentConfirmedAt = &t
	}
	return &cp
}

// HasPayment reports whether the consultation payment has been recorded.
func (p *Prospect) HasPayment() bool {
	return p.InvoiceNumber != ""
}

// Mutation describes what a unit of work appends besides the updated scalar fields.
type Mutation struct {
	Transition *StatusChange
}

// TransitionFunc receives the locked, current record and returns the record to persist.
// Returning a nil prospect commits nothing and the call succeeds.
type TransitionFunc func(ctx context.Context, current *Prospect) (*Prospect, *Mutation, error)

// NoteGuard vets the current status before a note is appended.
type NoteGuard func(current Status) error

type ProspectQuery struct {
	Status Status
	// Statuses restricts the result to any of the listed statuses when Status is empty.
	Statuses   []Status
	AssignedTo string
	Search     string
	SortBy     string
	Descending bool
	Limit      int
	Offset     int
}

type ProspectRepositoryInterface interface {
	Create(ctx context.Context, p *Prospect) error
	FindByID(ctx context.Context, id string) (*Prospect, error)
	List(ctx context.Context, q ProspectQuery) ([]*Prospect, int, error)
	CountByStatus(ctx context.Context, assignedTo string) (map[Status]int, error)

	// Transition runs fn under an exclusive per-record lock and persists its result with a
	// version check; the stored version is incremented on success.
	Transition(ctx context.Context, id string, fn TransitionFunc) (*Prospect, error)

	// AppendNote adds a note under a shared lock: notes do not exclude each other but are
	// serialized with Transition on the same record.
	AppendNote(ctx context.Context, id string, note ConsultantNote, guard NoteGuard) (*Prospect, error)
}
