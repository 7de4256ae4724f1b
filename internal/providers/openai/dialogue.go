package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"talkback/internal/domain"
)

// Dialogue sends the full conversation to the chat completion endpoint and
// returns one assistant message. A single attempt, no retry.
type Dialogue struct {
	client       *goopenai.Client
	model        string
	systemPrompt string
}

func NewDialogue(client *goopenai.Client, model string, systemPrompt string) *Dialogue {
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &Dialogue{client: client, model: model, systemPrompt: systemPrompt}
}

func (d *Dialogue) Complete(ctx context.Context, history []domain.Turn) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(history)+1)
	if d.systemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: d.systemPrompt,
		})
	}
	for _, turn := range history {
		role := goopenai.ChatMessageRoleUser
		if turn.Role == domain.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	response, err := d.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    d.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}
