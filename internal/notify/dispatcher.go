package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	"github.com/hackgods/clinic-scheduling/internal/waitlist"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"

	statusSent    = "sent"
	statusFailed  = "failed"
	statusSkipped = "skipped"
)

// Dispatcher turns booking events into patient messages. Each message goes
// to every channel the patient has contact data for. Either sender may be
// nil.
type Dispatcher struct {
	whatsapp    TextSender
	email       MailSender
	metrics     *metrics.Metrics
	countryCode string
}

func NewDispatcher(whatsapp TextSender, email MailSender, m *metrics.Metrics, countryCode string) *Dispatcher {
	return &Dispatcher{
		whatsapp:    whatsapp,
		email:       email,
		metrics:     m,
		countryCode: countryCode,
	}
}

func (d *Dispatcher) AppointmentBooked(ctx context.Context, n appointment.Notice) error {
	body := fmt.Sprintf("Hello %s, your %s with %s is booked for %s at %s.",
		firstName(n.PatientName), n.ExamName, n.DoctorName, formatDay(n.Date), n.Time)
	return d.deliver(ctx, n.PatientPhone, n.PatientEmail, "Appointment booked", body)
}

func (d *Dispatcher) AppointmentCanceled(ctx context.Context, n appointment.Notice) error {
	body := fmt.Sprintf("Hello %s, your %s with %s on %s at %s was canceled.",
		firstName(n.PatientName), n.ExamName, n.DoctorName, formatDay(n.Date), n.Time)
	if n.Reason != "" {
		body += " Reason: " + n.Reason + "."
	}
	body += " Please contact the clinic to book a new time."
	return d.deliver(ctx, n.PatientPhone, n.PatientEmail, "Appointment canceled", body)
}

func (d *Dispatcher) SlotOffered(ctx context.Context, e waitlist.Entry, date time.Time, clock string) error {
	body := fmt.Sprintf("Hello %s, a time opened up on %s at %s. Reply or call the clinic to book it.",
		firstName(e.PatientName), formatDay(date), clock)
	return d.deliver(ctx, e.PatientPhone, nil, "", body)
}

func (d *Dispatcher) deliver(ctx context.Context, phone string, email *string, subject, body string) error {
	logger := zerolog.Ctx(ctx)
	var errs []error

	if d.whatsapp != nil && phone != "" {
		id, err := d.whatsapp.SendText(ctx, d.international(phone), body)
		if err != nil {
			d.metrics.ObserveNotification(ChannelWhatsApp, statusFailed)
			errs = append(errs, fmt.Errorf("whatsapp: %w", err))
		} else {
			d.metrics.ObserveNotification(ChannelWhatsApp, statusSent)
			logger.Debug().Str("message_id", id).Msg("whatsapp message sent")
		}
	} else {
		d.metrics.ObserveNotification(ChannelWhatsApp, statusSkipped)
	}

	if d.email != nil && email != nil && *email != "" && subject != "" {
		if err := d.email.SendMail(ctx, *email, subject, body); err != nil {
			d.metrics.ObserveNotification(ChannelEmail, statusFailed)
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			d.metrics.ObserveNotification(ChannelEmail, statusSent)
		}
	} else {
		d.metrics.ObserveNotification(ChannelEmail, statusSkipped)
	}

	return errors.Join(errs...)
}

// international prefixes national numbers (up to 11 digits) with the
// configured country code.
func (d *Dispatcher) international(phone string) string {
	digits := appointment.NormalizePhone(phone)
	if d.countryCode != "" && len(digits) <= 11 {
		return d.countryCode + digits
	}
	return digits
}

func firstName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

func formatDay(t time.Time) string {
	return t.Format("Mon, Jan 2 2006")
}
