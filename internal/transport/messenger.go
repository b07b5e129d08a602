package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tolkly/bookingd/internal/notify"
)

// Messenger bundles the three senders behind the dispatcher's transport
// contract.
type Messenger struct {
	push  *PushSender
	sms   *SMSSender
	email *EmailSender
}

func NewMessenger(push *PushSender, sms *SMSSender, email *EmailSender) *Messenger {
	return &Messenger{push: push, sms: sms, email: email}
}

func (m *Messenger) SendPush(ctx context.Context, recipients []uuid.UUID, jobID uuid.UUID, notificationType, message string, deliverAfter *time.Time) error {
	return m.push.Send(ctx, recipients, jobID, notificationType, message, deliverAfter)
}

func (m *Messenger) SendSMS(ctx context.Context, toNumber, message string) error {
	return m.sms.Send(ctx, toNumber, message)
}

func (m *Messenger) SendEmail(ctx context.Context, to, name, subject, template string, data map[string]string) error {
	return m.email.Send(ctx, to, name, subject, template, data)
}

var _ notify.MessageTransport = (*Messenger)(nil)
