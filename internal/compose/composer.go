package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

const (
	followUpMaxTokens int32 = 100
	replyMaxTokens    int32 = 300
)

// Composer turns missed calls and inbound texts into short SMS bodies.
// All generation failures propagate to the caller; there is no canned
// substitute message, a bad text is worse than no text.
type Composer struct {
	llm             LLMClient
	model           string
	registrationURL string
	logger          *logging.Logger
}

// NewComposer builds a composer on top of an LLM client. model may be
// empty for providers that carry their own model id.
func NewComposer(llm LLMClient, model, registrationURL string, logger *logging.Logger) *Composer {
	if llm == nil {
		panic("compose: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Composer{
		llm:             llm,
		model:           model,
		registrationURL: registrationURL,
		logger:          logger,
	}
}

// ComposeFollowUp writes the first outbound text after a missed call.
func (c *Composer) ComposeFollowUp(ctx context.Context, client *directory.ClientRecord) (string, error) {
	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{followUpSystemPrompt(c.registrationLink(client))},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: followUpUserMessage}},
		MaxTokens:   followUpMaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("compose: follow-up generation failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("compose: follow-up generation returned empty text")
	}
	c.logger.Debug("composed follow-up", "tokens", resp.Usage.OutputTokens)
	return text, nil
}

// ComposeReply answers an inbound text, grounded on the client's
// scraped FAQ and program details. history is the prior thread in
// chronological order; the inbound message is appended last.
func (c *Composer) ComposeReply(ctx context.Context, client *directory.ClientRecord, history []calls.ConversationTurn, inbound string) (string, error) {
	if strings.TrimSpace(inbound) == "" {
		return "", errors.New("compose: inbound message is empty")
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		role := ChatRoleUser
		if turn.Role == calls.RoleAI {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: turn.Body})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: inbound})

	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{replySystemPrompt(client, c.registrationLink(client))},
		Messages:    messages,
		MaxTokens:   replyMaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("compose: reply generation failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("compose: reply generation returned empty text")
	}
	c.logger.Debug("composed reply", "tokens", resp.Usage.OutputTokens)
	return text, nil
}

// registrationLink prefers the client's own booking URL over the
// program-wide default.
func (c *Composer) registrationLink(client *directory.ClientRecord) string {
	if client != nil && client.BookingURL != "" {
		return client.BookingURL
	}
	return c.registrationURL
}
