package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lzyats/bot-relay/pkg/bot"
)

const (
	// ClaimKey is the single claim carried by callback tokens.
	ClaimKey = "assistantSid"
	TokenTTL = 5 * time.Minute
)

type claims struct {
	AssistantSid string `json:"assistantSid"`
	jwt.RegisteredClaims
}

// Codec mints and verifies the short-lived callback tokens.
// The secret is the account auth token.
type Codec struct {
	secret string
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// Mint signs {assistantSid: subjectID} with HS256 and a fixed five minute expiry.
func (c *Codec) Mint(subjectID string) (string, error) {
	if c.secret == "" {
		return "", fmt.Errorf("%w: no auth token found", bot.ErrConfiguration)
	}
	if subjectID == "" {
		return "", bot.ErrMissingBotID
	}
	now := c.now()
	cl := claims{
		AssistantSid: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString([]byte(c.secret))
}

// Verify reports whether token was issued with this secret, has not expired
// and carries the assistantSid claim. A malformed or forged token is not an
// error; only a missing token or a missing secret is.
func (c *Codec) Verify(token string) (bool, error) {
	_, ok, err := c.Subject(token)
	return ok, err
}

// Subject is Verify returning the assistantSid of an accepted token.
func (c *Codec) Subject(token string) (string, bool, error) {
	if token == "" {
		return "", false, bot.ErrMissingToken
	}
	if c.secret == "" {
		return "", false, fmt.Errorf("%w: no auth token found", bot.ErrConfiguration)
	}

	var cl claims
	parsed, err := jwt.ParseWithClaims(token, &cl, func(*jwt.Token) (any, error) {
		return []byte(c.secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid || cl.AssistantSid == "" {
		return "", false, nil
	}
	return cl.AssistantSid, true, nil
}

func Mint(secret, subjectID string) (string, error) {
	return NewCodec(secret).Mint(subjectID)
}

func Verify(secret, token string) (bool, error) {
	return NewCodec(secret).Verify(token)
}
