package mail

type PaymentReceiptData struct {
	ProspectID           string
	Name                 string
	Email                string
	InvoiceNumber        string
	Amount               int64
	PaymentMethod        string
	TransactionReference string
}

type WelcomeData struct {
	Name     string
	Email    string
	ClientID string
	CaseID   string
}

type EmailSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	dialer dialer
}
