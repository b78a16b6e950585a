package services

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"studyvault/internal/config"
	"studyvault/internal/domain"
	"studyvault/internal/logger"
)

const (
	TemplateWelcome        = "welcome"
	TemplateReset          = "reset"
	TemplateProfileChanged = "profile-changed"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type Message struct {
	To       string
	Template string
	Data     map[string]any
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// renderer turns a Message into a subject line and a plain-text body.
type renderer struct {
	templates map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{templates: map[string]*template.Template{}}
	for _, name := range []string{TemplateWelcome, TemplateReset, TemplateProfileChanged} {
		t, err := template.ParseFS(templateFS, "templates/"+name+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse mail template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

func (r *renderer) render(msg Message) (string, string, error) {
	t, ok := r.templates[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown mail template %q", domain.ErrValidation, msg.Template)
	}
	data := map[string]any{"Email": msg.To}
	for k, v := range msg.Data {
		data[k] = v
	}

	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", data); err != nil {
		return "", "", fmt.Errorf("render mail subject: %w", err)
	}
	if err := t.ExecuteTemplate(&body, "body", data); err != nil {
		return "", "", fmt.Errorf("render mail body: %w", err)
	}
	return strings.TrimSpace(subject.String()), strings.TrimSpace(body.String()), nil
}

// NewMailer picks the SendGrid client when an API key is configured and
// falls back to logging every message otherwise.
func NewMailer(cfg config.Config, log *logger.Logger) (Mailer, error) {
	if strings.TrimSpace(cfg.MailAPIKey) == "" {
		log.Warn("MAIL_API_KEY not set, mail is only logged")
		m, err := NewLogMailer(log)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	m, err := NewSendGridMailer(cfg, log)
	if err != nil {
		return nil, err
	}
	return m, nil
}

type SendGridMailer struct {
	log        *logger.Logger
	renderer   *renderer
	apiKey     string
	baseURL    string
	from       string
	httpClient *http.Client
}

func NewSendGridMailer(cfg config.Config, log *logger.Logger) (*SendGridMailer, error) {
	r, err := newRenderer()
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.MailBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}
	return &SendGridMailer{
		log:        log.With("client", "SendGridMailer"),
		renderer:   r,
		apiKey:     cfg.MailAPIKey,
		baseURL:    baseURL,
		from:       cfg.MailFrom,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type emailAddress struct {
	Email string `json:"email"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
	Categories       []string          `json:"categories,omitempty"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%w: mail recipient required", domain.ErrValidation)
	}
	subject, body, err := m.renderer.render(msg)
	if err != nil {
		return err
	}

	wire := mailSendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: msg.To}}}},
		From:             emailAddress{Email: m.from},
		Subject:          subject,
		Content:          []mailContent{{Type: "text/plain", Value: body}},
		Categories:       []string{msg.Template},
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(wire); err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/mail/send", buf)
	if err != nil {
		return fmt.Errorf("%w: create mail request: %w", domain.ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mail request failed: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeMailError(resp)
	}
	m.log.Info("mail sent", "template", msg.Template, "to", msg.To,
		"message_id", strings.TrimSpace(resp.Header.Get("X-Message-Id")))
	return nil
}

func decodeMailError(resp *http.Response) error {
	var er struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 && er.Errors[0].Message != "" {
		return fmt.Errorf("%w: sendgrid http %d: %s", domain.ErrUpstream, resp.StatusCode, er.Errors[0].Message)
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = "<empty body>"
	}
	return fmt.Errorf("%w: sendgrid http %d: %s", domain.ErrUpstream, resp.StatusCode, msg)
}

// LogMailer renders messages and writes them to the log instead of sending.
type LogMailer struct {
	log      *logger.Logger
	renderer *renderer
}

func NewLogMailer(log *logger.Logger) (*LogMailer, error) {
	r, err := newRenderer()
	if err != nil {
		return nil, err
	}
	return &LogMailer{log: log.With("client", "LogMailer"), renderer: r}, nil
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%w: mail recipient required", domain.ErrValidation)
	}
	subject, body, err := m.renderer.render(msg)
	if err != nil {
		return err
	}
	m.log.Info("mail (not sent)", "template", msg.Template, "to", msg.To, "subject", subject)
	// the body carries live verify and reset links
	m.log.Debug("mail body (not sent)", "template", msg.Template, "body", body)
	return nil
}
