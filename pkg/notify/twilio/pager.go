// Package twilio pages agricultural experts by SMS when a farmer asks to be
// connected with one.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/harunnryd/agrichat/pkg/redact"
)

const DefaultStatusPath = "/sms/status"

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	// PublicURL, when set, makes Twilio post delivery updates to
	// PublicURL + StatusPath.
	PublicURL  string
	StatusPath string
	// MaxQuestion bounds the farmer's question quoted in the SMS.
	MaxQuestion int
}

func (c Config) withDefaults() Config {
	if c.StatusPath == "" {
		c.StatusPath = DefaultStatusPath
	}
	if c.MaxQuestion <= 0 {
		c.MaxQuestion = 120
	}
	return c
}

// Page is one expert notification.
type Page struct {
	To       string
	Expert   string
	Question string
	Language string
	TurnID   string
}

// Pager sends expert pages through the Twilio messages API.
type Pager struct {
	cfg    Config
	client messageCreator
}

func NewPager(cfg Config) *Pager {
	return &Pager{cfg: cfg.withDefaults()}
}

// Send texts the expert and returns the message SID. The question is
// redacted before it leaves the process.
func (p *Pager) Send(ctx context.Context, page Page) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(page.To) == "" || p.cfg.From == "" {
		return "", errors.New("to/from required")
	}
	client := p.client
	if client == nil {
		if p.cfg.AccountSID == "" || p.cfg.AuthToken == "" {
			return "", errors.New("missing twilio credentials")
		}
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: p.cfg.AccountSID,
			Password: p.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateMessageParams{}
	params.SetTo(page.To)
	params.SetFrom(p.cfg.From)
	params.SetBody(p.body(page))
	if p.cfg.PublicURL != "" {
		params.SetStatusCallback(strings.TrimRight(p.cfg.PublicURL, "/") + p.cfg.StatusPath)
	}
	// CreateMessage takes no context; the caller stops waiting when ctx
	// ends and the request finishes on its own.
	type result struct {
		resp *api.ApiV2010Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := client.CreateMessage(params)
		done <- result{resp: resp, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		if r.resp == nil || r.resp.Sid == nil {
			return "", fmt.Errorf("missing message sid")
		}
		return *r.resp.Sid, nil
	}
}

func (p *Pager) body(page Page) string {
	var b strings.Builder
	b.WriteString("AgriChat: a farmer asked for an expert")
	if page.Expert != "" {
		b.WriteString(" (" + page.Expert + ")")
	}
	if page.Language != "" {
		b.WriteString(" [" + page.Language + "]")
	}
	b.WriteString(". ")
	if q := strings.TrimSpace(page.Question); q != "" {
		b.WriteString("\"" + truncate(redact.Mask(q), p.cfg.MaxQuestion) + "\" ")
	}
	if page.TurnID != "" {
		b.WriteString("Ref " + page.TurnID)
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
