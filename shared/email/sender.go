package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"net/smtp"

	"github.com/dustin/go-humanize"

	"velocity-scout/internal/models"
	"velocity-scout/shared/config"
)

//go:embed templates/digest.html
var templates embed.FS

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	config *config.EmailConfig
	send   sendFunc
}

func NewSender(cfg *config.EmailConfig) *Sender {
	return &Sender{
		config: cfg,
		send:   smtp.SendMail,
	}
}

// SendReport mails the digest. A report with no items is not sent.
func (s *Sender) SendReport(report *models.DigestReport) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	total := report.TotalItems()
	if total == 0 {
		return nil
	}

	subject := fmt.Sprintf("Video Velocity Digest - %d Fast-Rising Videos (%s)",
		total, report.Date.Format("Jan 2, 2006"))

	body, err := s.generateEmailBody(report)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	return s.SendHTML(subject, body)
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	return s.sendViaSMTP(subject, htmlBody)
}

func (s *Sender) sendViaSMTP(subject, body string) error {
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)

	to := []string{s.config.ToEmail}
	msg := []byte(fmt.Sprintf(`To: %s
From: %s
Subject: %s
MIME-Version: 1.0
Content-Type: text/html; charset=UTF-8

%s`, s.config.ToEmail, s.config.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	return s.send(addr, auth, s.config.FromEmail, to, msg)
}

func (s *Sender) generateEmailBody(report *models.DigestReport) (string, error) {
	tmpl, err := template.New("digest.html").Funcs(template.FuncMap{
		"inc":      func(i int) int { return i + 1 },
		"commas":   humanize.Comma,
		"velocity": func(v float64) string { return humanize.Comma(int64(math.Round(v))) },
	}).ParseFS(templates, "templates/digest.html")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}
