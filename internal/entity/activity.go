package entity

import "time"

const (
	EventProspectCreated     = "prospect.created"
	EventProspectAssigned    = "prospect.assigned"
	EventProspectReassigned  = "prospect.reassigned"
	EventPaymentConfirmed    = "payment.confirmed"
	EventConsultantNoteAdded = "consultant_note.added"
	EventConsultationStarted = "consultation.started"
	EventProspectConverted   = "prospect.converted"
	EventProspectArchived    = "prospect.archived"
)

// ActivityEvent is the fire-and-forget message sent to the notification/activity sink.
type ActivityEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	ProspectID string         `json:"prospect_id"`
	Actor      Actor          `json:"actor"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}
