package endpoint

import (
	"context"
	"net/http"

	"github.com/radlab/llm-router/apierror"
)

const (
	promptConversation = "builtin/system/{lang}/chat-conversation-simple"
	promptAnswer       = "builtin/system/{lang}/answer-from-context-simple"
	promptQuestions    = "builtin/system/{lang}/generate-questions"
	promptTranslate    = "builtin/system/{lang}/translate-to-pl"
	promptSimplify     = "builtin/system/{lang}/simplify-text"
	promptNewsArticle  = "builtin/system/{lang}/news-on-sm"
	promptFullArticle  = "builtin/system/{lang}/full-article"
	promptFileSummary  = "builtin/system/{lang}/file-summary"
)

// anyLang maps every request language to the same prompt id; the prompt
// store resolves the {lang} token.
func anyLang(id string) map[string]string {
	return map[string]string{"*": id}
}

// Conversation is the conversation_with_model endpoint: chat with the
// built-in system prompt, optionally seeded with prior turns.
type Conversation struct{}

func (Conversation) Descriptor() Descriptor {
	return Descriptor{
		Name:              "conversation_with_model",
		Path:              "/conversation_with_model",
		Method:            http.MethodPost,
		Required:          []string{"model_name", "user_last_statement"},
		Optional:          []string{"language", "historical_messages", "temperature", "max_tokens", "max_new_tokens", "options"},
		SystemPromptNames: anyLang(promptConversation),
		Operation:         OpChat,
	}
}

func (Conversation) PreparePayload(_ context.Context, call *Call) error {
	statement, ok := call.Consume("user_last_statement").(string)
	if !ok || statement == "" {
		return apierror.ValidationError("user_last_statement", "must be a non-empty string")
	}

	var messages []any
	if history, ok := call.Consume("historical_messages").([]any); ok {
		messages = append(messages, history...)
	}
	messages = append(messages, map[string]any{"role": "user", "content": statement})
	call.Envelope["messages"] = messages
	return nil
}

// ExtendedConversation is conversation_with_model with a caller-supplied
// system prompt that replaces the built-in one.
type ExtendedConversation struct{}

func (ExtendedConversation) Descriptor() Descriptor {
	d := Conversation{}.Descriptor()
	d.Name = "extended_conversation_with_model"
	d.Path = "/extended_conversation_with_model"
	d.Required = append(d.Required, "system_prompt")
	return d
}

func (ExtendedConversation) PreparePayload(ctx context.Context, call *Call) error {
	prompt, ok := call.Consume("system_prompt").(string)
	if !ok || prompt == "" {
		return apierror.ValidationError("system_prompt", "must be a non-empty string")
	}
	call.PromptStrForce = prompt
	return Conversation{}.PreparePayload(ctx, call)
}

// GenerativeAnswer answers a question from caller-provided context.
type GenerativeAnswer struct{}

func (GenerativeAnswer) Descriptor() Descriptor {
	return Descriptor{
		Name:              "generative_answer",
		Path:              "/generative_answer",
		Method:            http.MethodPost,
		Required:          []string{"model_name", "question", "context"},
		Optional:          []string{"language", "temperature", "max_tokens", "max_new_tokens"},
		SystemPromptNames: anyLang(promptAnswer),
		Operation:         OpChat,
	}
}

func (GenerativeAnswer) PreparePayload(_ context.Context, call *Call) error {
	question, ok := call.Consume("question").(string)
	if !ok || question == "" {
		return apierror.ValidationError("question", "must be a non-empty string")
	}
	contextText, ok := call.Consume("context").(string)
	if !ok || contextText == "" {
		return apierror.ValidationError("context", "must be a non-empty string")
	}

	call.MapPrompt = map[string]string{"##QUESTION_STR##": question}
	call.Envelope["messages"] = []any{
		map[string]any{"role": "user", "content": contextText},
	}
	return nil
}
