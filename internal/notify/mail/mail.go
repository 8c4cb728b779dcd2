// Package mail delivers artist-facing notify events by email.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"

	gomail "github.com/go-mail/mail/v2"
	"github.com/zulandar/soundcheck/internal/notify"
)

// sender is the subset of *gomail.Dialer we use.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sink emails the track owner. Events without an artist address are ignored.
type Sink struct {
	dialer sender
	from   string
}

// Opts holds parameters for creating a Sink.
type Opts struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// For testing: inject a mock sender instead of dialing SMTP.
	Sender sender
}

// New creates a mail Sink using STARTTLS.
func New(opts Opts) (*Sink, error) {
	if opts.From == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	if opts.Sender != nil {
		return &Sink{dialer: opts.Sender, from: opts.From}, nil
	}
	if opts.Host == "" {
		return nil, fmt.Errorf("mail: smtp host is required")
	}
	port := opts.Port
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(opts.Host, port, opts.Username, opts.Password)
	d.StartTLSPolicy = gomail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{ServerName: opts.Host}
	return &Sink{dialer: d, from: opts.From}, nil
}

func (s *Sink) Name() string { return "mail" }

// Deliver sends ev to its artist address.
func (s *Sink) Deliver(_ context.Context, ev notify.Event) error {
	if ev.ArtistEmail == "" || ev.Kind == notify.IntegrityAlert {
		return nil
	}
	msg := notify.Format(ev)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", ev.ArtistEmail)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("mail: send to %s: %w", ev.ArtistEmail, err)
	}
	return nil
}
