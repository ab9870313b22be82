// Package notify holds publishers that deliver a digest somewhere other
// than the destination channel, and helpers to combine publishers.
package notify

import (
	"context"
	"regexp"
	"strings"
	"time"

	gomail "gopkg.in/mail.v2"

	"eventdigest/internal/config"
	"eventdigest/internal/digest"
	appLog "eventdigest/internal/log"
)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailPublisher mails a plain-text copy of each digest.
type EmailPublisher struct {
	cfg    config.EmailConfig
	dialer sender
}

// NewEmailPublisher creates a publisher for the SMTP settings in cfg.
func NewEmailPublisher(cfg config.EmailConfig) *EmailPublisher {
	d := gomail.NewDialer(cfg.SMTPServer, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	d.Timeout = 10 * time.Second
	return &EmailPublisher{cfg: cfg, dialer: d}
}

// Publish sends the digest to the configured recipient. destination is the
// Slack channel the digest went to and is only mentioned in the body.
func (p *EmailPublisher) Publish(ctx context.Context, destination string, pl digest.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.cfg.FromEmail)
	m.SetHeader("To", p.cfg.ToEmail)
	m.SetHeader("Subject", pl.Text)
	m.SetBody("text/plain", PlainText(pl)+"\n\n-- \nposted to "+destination+"\n")

	if err := p.dialer.DialAndSend(m); err != nil {
		appLog.Error("email send failed", err, "to", p.cfg.ToEmail)
		return err
	}
	appLog.Info("digest emailed", "to", p.cfg.ToEmail)
	return nil
}

var (
	linkRe   = regexp.MustCompile(`<([^|>]+)\|([^>]*)>`)
	boldRe   = regexp.MustCompile(`\*([^*\n]+)\*`)
	unescape = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")
)

// PlainText converts the payload's mrkdwn into text suitable for mail:
// links become "title (url)" and bold markers are dropped.
func PlainText(pl digest.Payload) string {
	s := pl.PlainText()
	s = linkRe.ReplaceAllString(s, "$2 ($1)")
	s = boldRe.ReplaceAllString(s, "$1")
	return unescape.Replace(s)
}
