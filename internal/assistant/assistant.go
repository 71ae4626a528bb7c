// Package assistant relays chat conversations to a hosted text-generation
// model.
package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/erazemk/bazar/internal/model"
)

// Greeting opens every new chat session.
const Greeting = "Hi! I'm your Bazar assistant. How can I help you today?"

// Instructions steer the model towards the marketplace's own workflows.
const Instructions = `You are the help assistant of Bazar, a marketplace where students and staff of
one campus buy and sell second-hand items. Buyers order an item, receive a 6-digit
one-time code, and tell it to the seller at hand-off; the seller enters it to complete
delivery. Codes expire after 30 minutes and allow 3 wrong attempts; buyers can request a
new one. Either side may cancel a pending order. No payment happens through the site.
Answer briefly and never ask users to share their code with anyone but the seller.`

// MaxHistory is the number of most recent messages sent upstream.
const MaxHistory = 20

// ErrEmptyReply is returned when the model produced no text, for example
// because a safety filter blocked the answer.
var ErrEmptyReply = errors.New("assistant returned no reply")

// Completer produces the assistant's next message for a conversation. The
// last message of history is the user's newest question.
type Completer interface {
	Complete(ctx context.Context, history []model.ChatMessage) (string, error)
}

// StatusError is a non-success answer from the upstream API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assistant upstream returned %d: %s", e.Code, e.Body)
}

// trimHistory keeps the newest MaxHistory messages and drops leading
// assistant turns, since a conversation sent upstream must open with the user.
func trimHistory(history []model.ChatMessage) []model.ChatMessage {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	for len(history) > 0 && history[0].Role != model.ChatRoleUser {
		history = history[1:]
	}
	return history
}
