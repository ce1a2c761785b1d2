package entity

// ClientAccount is what the Client/Case service returns after a conversion.
type ClientAccount struct {
	ClientID string `json:"client_id"`
	CaseID   string `json:"case_id"`
}
