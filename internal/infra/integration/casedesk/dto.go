package casedesk

// CreateClientInput is what the Client/Case service needs to open a client file.
type CreateClientInput struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	Country          string `json:"country"`
	VisaType         string `json:"visa_type"`
	SourceProspectID string `json:"source_prospect_id"`
}

type createClientResponse struct {
	ClientID string `json:"client_id"`
	CaseID   string `json:"case_id"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
