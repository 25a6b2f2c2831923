package dispatch

import (
	"net/url"
	"strings"

	"github.com/lzyats/bot-relay/pkg/bot"
)

const (
	CallbackPath = "/channels/conversations/response"

	tokenParam             = "_token"
	assistantIdentityParam = "_assistantIdentity"
)

// Assembler builds the envelope posted to the bot.
type Assembler struct {
	Domain       string
	CallbackPath string
}

func (a Assembler) Build(ev bot.Event, token string) bot.Envelope {
	path := a.CallbackPath
	if path == "" {
		path = CallbackPath
	}
	return bot.Envelope{
		Body:      ev.Body,
		Identity:  bot.DeriveIdentity(ev.Author),
		SessionID: ev.Ref().SessionID(),
		Webhook:   CallbackURL(a.Domain, path, token, ev.AssistantIdentity),
	}
}

// BuildEnvelope assembles an envelope whose callback lands on the default path.
func BuildEnvelope(ev bot.Event, token, domain string) bot.Envelope {
	return Assembler{Domain: domain}.Build(ev, token)
}

// CallbackURL returns https://<domain><path>?_token=<token>[&_assistantIdentity=<id>].
func CallbackURL(domain, path, token, assistantIdentity string) string {
	var sb strings.Builder
	sb.WriteString("https://")
	sb.WriteString(strings.TrimSuffix(domain, "/"))
	if !strings.HasPrefix(path, "/") {
		sb.WriteByte('/')
	}
	sb.WriteString(path)
	sb.WriteString("?" + tokenParam + "=")
	sb.WriteString(url.QueryEscape(token))
	if assistantIdentity != "" {
		sb.WriteString("&" + assistantIdentityParam + "=")
		sb.WriteString(url.QueryEscape(assistantIdentity))
	}
	return sb.String()
}
