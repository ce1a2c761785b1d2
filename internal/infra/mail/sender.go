package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(
	template.New("").Funcs(template.FuncMap{"amount": formatAmount}).ParseFS(templateFS, "templates/*.html"),
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

func NewEmailSender(host string, port int, user, password, from string) *EmailSender {
	return &EmailSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		From:     from,
		dialer:   gomail.NewDialer(host, port, user, password),
	}
}

func (s *EmailSender) SendPaymentReceipt(ctx context.Context, data PaymentReceiptData) error {
	body, err := render("payment_receipt.html", data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Reçu de paiement %s - consultation", data.InvoiceNumber)
	return s.send(ctx, data.Email, subject, body)
}

func (s *EmailSender) SendWelcome(ctx context.Context, data WelcomeData) error {
	body, err := render("welcome.html", data)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Bienvenue %s, votre dossier est ouvert", data.Name)
	return s.send(ctx, data.Email, subject, body)
}

func (s *EmailSender) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email via SMTP: %w", err)
	}
	return nil
}

func render(name string, data any) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return body.String(), nil
}

// formatAmount groups digits by thousands: 50000 -> "50 000".
func formatAmount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
