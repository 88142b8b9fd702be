package openai

import "github.com/koscakluka/ema-duet/core/llms"

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(prompt llms.Prompt) []message {
	messages := []message{}
	if prompt.System != "" {
		messages = append(messages, message{Role: messageRoleSystem, Content: prompt.System})
	}
	return append(messages, message{Role: messageRoleUser, Content: prompt.User})
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Role    messageRole `json:"role"`
			Content string      `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
