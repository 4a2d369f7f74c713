package email

import (
	"fmt"
	"time"

	gomail "gopkg.in/gomail.v2"

	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/pkg/circuitbreaker"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender delivers booking lifecycle emails over SMTP. A circuit
// breaker keeps a flapping mail server from stalling the event worker.
type Sender struct {
	dialer *gomail.Dialer
	from   string
	cb     *circuitbreaker.CircuitBreaker
}

func NewSender(cfg Config) *Sender {
	return &Sender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "smtp",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (s *Sender) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	return s.cb.Execute(func() error {
		return s.dialer.DialAndSend(m)
	})
}

func (s *Sender) BookingConfirmation(to string, b *model.ConfirmedBooking) error {
	subject := fmt.Sprintf("Booking confirmed: %s", b.Reference)
	body := fmt.Sprintf(
		"Your %s session is confirmed.\n\nReference: %s\nStarts: %s\nEnds: %s\n\nPlease arrive 10 minutes early.",
		b.SessionType,
		b.Reference,
		b.StartTime.Format(time.RFC1123),
		b.EndTime.Format(time.RFC1123),
	)
	return s.Send(to, subject, body)
}

func (s *Sender) BookingCancellation(to string, b *model.ConfirmedBooking) error {
	subject := fmt.Sprintf("Booking cancelled: %s", b.Reference)
	reason := ""
	if b.CancelReason != nil {
		reason = "\nReason: " + *b.CancelReason
	}
	body := fmt.Sprintf(
		"Your booking %s scheduled for %s has been cancelled.%s",
		b.Reference,
		b.StartTime.Format(time.RFC1123),
		reason,
	)
	return s.Send(to, subject, body)
}
