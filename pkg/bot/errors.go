package bot

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrMissingBotID  = errors.New("missing bot id configuration")
	ErrMissingToken  = errors.New("missing token")
)

// DispatchError is returned when the bot endpoint rejects a message.
type DispatchError struct {
	StatusCode int
	Body       string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to send request to bot: status=%d %s", e.StatusCode, e.Body)
}
