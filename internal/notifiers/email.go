package notifiers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"datastore-downloader/internal/query"
	"datastore-downloader/pkg/models"
)

var (
	startTemplate = template.Must(template.New("start").Parse(`Hello,

Your download on {{.SiteTitle}} has started.
{{if .StatusURL}}You can follow its progress at {{.StatusURL}}
{{end}}`))

	endTemplate = template.Must(template.New("end").Parse(`Hello,

Your download on {{.SiteTitle}} is ready: {{.DownloadURL}}
`))

	errorTemplate = template.Must(template.New("error").Parse(`Hello,

Your download on {{.SiteTitle}} has failed.
{{if .Error}}{{.Error}}
{{end}}{{if .StatusURL}}More details are at {{.StatusURL}}
{{end}}`))
)

type emailArgs struct {
	Emails []string `json:"emails"`
}

type sendFunc func(addr string, from string, to []string, msg []byte) error

// Email sends plain text mail. Nothing is sent when no SMTP host is configured.
type Email struct {
	env    Env
	to     []string
	send   sendFunc
	logger *slog.Logger
}

func newEmail(env Env, args map[string]any) (Notifier, error) {
	var parsed emailArgs
	if err := decodeArgs("email", args, &parsed); err != nil {
		return nil, err
	}
	var to []string
	for _, address := range parsed.Emails {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if !strings.Contains(address, "@") {
			return nil, query.Invalidf("invalid email address: %s", address)
		}
		to = append(to, address)
	}
	if len(to) == 0 {
		return nil, query.Invalidf("email notifier needs at least one address")
	}
	return &Email{
		env:    env,
		to:     to,
		send:   sendPlain,
		logger: slog.Default(),
	}, nil
}

func sendPlain(addr, from string, to []string, msg []byte) error {
	return smtp.SendMail(addr, nil, from, to, msg)
}

func (e *Email) Start(_ context.Context, request *models.DownloadRequest) error {
	return e.mail("Download started", startTemplate, e.env.message(request, ""))
}

func (e *Email) End(_ context.Context, request *models.DownloadRequest, url string) error {
	return e.mail("Download ready", endTemplate, e.env.message(request, url))
}

func (e *Email) Error(_ context.Context, request *models.DownloadRequest) error {
	return e.mail("Download failed", errorTemplate, e.env.message(request, ""))
}

func (e *Email) mail(subject string, tmpl *template.Template, msg Message) error {
	if e.env.SMTP.Host == "" {
		e.logger.Warn("Email notifications are not configured", "request_id", msg.RequestID, "subject", subject)
		return nil
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, msg); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", e.env.SMTP.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&buf, "Subject: %s: %s\r\n", msg.SiteTitle, subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))

	addr := net.JoinHostPort(e.env.SMTP.Host, strconv.Itoa(e.env.SMTP.Port))
	if err := e.send(addr, e.env.SMTP.From, e.to, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	e.logger.Info("Sent download email", "request_id", msg.RequestID, "subject", subject, "recipients", len(e.to))
	return nil
}
