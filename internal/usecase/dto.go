package usecase

import "github.com/xavierca1/immigration-crm/internal/entity"

type SubmitContactInput struct {
	Name     string `json:"name" validate:"required,min=2,max=200"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"required,min=6,max=32"`
	Country  string `json:"country" validate:"max=100"`
	VisaType string `json:"visa_type" validate:"max=100"`
	Message  string `json:"message" validate:"max=5000"`
}

type AssignInput struct {
	ProspectID      string `json:"-" validate:"required"`
	EmployeeID      string `json:"assigned_to" validate:"required"`
	EmployeeName    string `json:"assigned_to_name" validate:"max=200"`
	ExpectedVersion int64  `json:"version"`
}

type AssignToConsultantInput struct {
	ProspectID           string `json:"-" validate:"required"`
	PaymentMethod        string `json:"payment_method" validate:"required,max=50"`
	TransactionReference string `json:"transaction_reference" validate:"max=120"`
	IdempotencyKey       string `json:"idempotency_key" validate:"max=200"`
	ExpectedVersion      int64  `json:"version"`
}

type AddConsultantNoteInput struct {
	ProspectID string `json:"-" validate:"required"`
	Note       string `json:"note" validate:"required,max=10000"`
}

type TransitionInput struct {
	ProspectID      string `json:"-" validate:"required"`
	ExpectedVersion int64  `json:"version"`
}

type ListProspectsInput struct {
	Status     string `validate:"omitempty,oneof=nouveau assigne_employe paiement_50k en_consultation converti_client archive"`
	AssignedTo string
	Search     string `validate:"max=200"`
	SortBy     string `validate:"omitempty,oneof=created_at name lead_score status"`
	Order      string `validate:"omitempty,oneof=asc desc"`
	Limit      int    `validate:"gte=0,lte=200"`
	Offset     int    `validate:"gte=0"`
}

type ListProspectsOutput struct {
	Items []*entity.Prospect `json:"items"`
	Total int                `json:"total"`
}

type PipelineStatsOutput struct {
	Counts map[entity.Status]int `json:"counts"`
	Total  int                   `json:"total"`
}
