package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/mail"
)

// Notifier sends the e-mails triggered by activity events.
type Notifier interface {
	SendPaymentReceipt(ctx context.Context, data mail.PaymentReceiptData) error
	SendWelcome(ctx context.Context, data mail.WelcomeData) error
}

// errMalformed marks deliveries that will never succeed and must not be requeued.
var errMalformed = errors.New("malformed activity event")

type delivery struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ProspectID string          `json:"prospect_id"`
	Actor      entity.Actor    `json:"actor"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload"`
}

type paymentPayload struct {
	InvoiceNumber        string `json:"invoice_number"`
	Amount               int64  `json:"amount"`
	PaymentMethod        string `json:"payment_method"`
	TransactionReference string `json:"transaction_reference"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
}

type convertedPayload struct {
	ClientID string `json:"client_id"`
	CaseID   string `json:"case_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type Worker struct {
	Channel  *amqp.Channel
	Notifier Notifier
}

func NewWorker(ch *amqp.Channel, notifier Notifier) *Worker {
	return &Worker{
		Channel:  ch,
		Notifier: notifier,
	}
}

// Start consumes queueName until ctx is cancelled or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(
		queueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register RabbitMQ consumer: %w", err)
	}

	log.Printf(" [*] Worker waiting on queue '%s'", queueName)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handleDelivery(ctx, d)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, d amqp.Delivery) {
	err := w.Process(ctx, d.Body)
	switch {
	case err == nil:
		d.Ack(false)
	case errors.Is(err, errMalformed):
		log.Printf("❌ [WORKER] Dropping message: %s", err)
		d.Nack(false, false)
	case d.Redelivered:
		// second failure goes to the DLQ
		log.Printf("❌ [WORKER] Notification failed again, dead-lettering: %s", err)
		d.Nack(false, false)
	default:
		log.Printf("⚠️ [WORKER] Notification failed, requeueing: %s", err)
		d.Nack(false, true)
	}
}

// Process decodes one event body and sends the matching notification.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var ev delivery
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	switch ev.Type {
	case entity.EventPaymentConfirmed:
		var p paymentPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		if p.Email == "" || p.InvoiceNumber == "" {
			return fmt.Errorf("%w: payment event %s without email or invoice", errMalformed, ev.ID)
		}
		log.Printf("🧾 [WORKER] Sending receipt %s to %s", p.InvoiceNumber, p.Email)
		return w.Notifier.SendPaymentReceipt(ctx, mail.PaymentReceiptData{
			ProspectID:           ev.ProspectID,
			Name:                 p.Name,
			Email:                p.Email,
			InvoiceNumber:        p.InvoiceNumber,
			Amount:               p.Amount,
			PaymentMethod:        p.PaymentMethod,
			TransactionReference: p.TransactionReference,
		})

	case entity.EventProspectConverted:
		var p convertedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		if p.Email == "" {
			return fmt.Errorf("%w: conversion event %s without email", errMalformed, ev.ID)
		}
		log.Printf("🎉 [WORKER] Sending welcome to %s (client %s)", p.Email, p.ClientID)
		return w.Notifier.SendWelcome(ctx, mail.WelcomeData{
			Name:     p.Name,
			Email:    p.Email,
			ClientID: p.ClientID,
			CaseID:   p.CaseID,
		})

	default:
		log.Printf("📥 [WORKER] %s for prospect %s, nothing to send", ev.Type, ev.ProspectID)
		return nil
	}
}
