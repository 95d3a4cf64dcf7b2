package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Message is a single outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers email through one provider.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Sender identifies the From address used by every provider.
type Sender struct {
	Address string
	Name    string
}

// NewMailer picks the provider configured by name: zepto, sendgrid or log.
func NewMailer(provider string, from Sender, zeptoURL, zeptoKey, sendgridKey string, log zerolog.Logger) (Mailer, error) {
	switch provider {
	case "zepto":
		if zeptoURL == "" || zeptoKey == "" || from.Address == "" {
			return nil, fmt.Errorf("missing ZEPTO_API_URL, ZEPTO_API_KEY, or EMAIL_FROM")
		}
		return &ZeptoMailer{APIURL: zeptoURL, APIKey: zeptoKey, From: from, Client: &http.Client{Timeout: 15 * time.Second}}, nil
	case "sendgrid":
		if sendgridKey == "" || from.Address == "" {
			return nil, fmt.Errorf("missing SENDGRID_API_KEY or EMAIL_FROM")
		}
		return NewSendgridMailer(sendgridKey, from), nil
	case "", "log":
		return &LogMailer{Log: log}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", provider)
	}
}

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
	TextBody string        `json:"textbody,omitempty"`
}

type emailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// ZeptoMailer sends HTML email using the ZeptoMail HTTP API.
type ZeptoMailer struct {
	APIURL string // e.g. https://api.zeptomail.com/v1.1/email
	APIKey string // e.g. Zoho-enczapikey xxxxx
	From   Sender
	Client *http.Client
}

func (z *ZeptoMailer) Send(ctx context.Context, msg Message) error {
	payload := emailRequest{
		From: emailAddress{Address: z.From.Address, Name: z.From.Name},
		To: []toRecipient{
			{
				Email: emailWithName{
					Address: msg.To,
					Name:    msg.ToName,
				},
			},
		},
		Subject:  msg.Subject,
		HtmlBody: msg.HTML,
		TextBody: msg.Text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.APIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", z.APIKey)

	client := z.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them. It also keeps
// them in memory, which tests use to assert on outgoing mail.
type LogMailer struct {
	Log zerolog.Logger

	mu   sync.Mutex
	sent []Message
}

func (l *LogMailer) Send(_ context.Context, msg Message) error {
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()

	l.Log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email (log provider)")
	return nil
}

// Sent returns a copy of the messages handed to the mailer so far.
func (l *LogMailer) Sent() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.sent...)
}
