package endpoint

import (
	"context"
	"net/http"
	"strconv"

	"github.com/radlab/llm-router/apierror"
)

// TextTask is the common shape of the single-text built-ins: the text
// becomes the sole user message and a per-task system prompt does the
// work.
type TextTask struct {
	name     string
	promptID string
}

// NewTranslate builds the translate endpoint.
func NewTranslate() TextTask { return TextTask{name: "translate", promptID: promptTranslate} }

// NewSimplifyText builds the simplify_text endpoint.
func NewSimplifyText() TextTask { return TextTask{name: "simplify_text", promptID: promptSimplify} }

// NewGenerateArticle builds the generate_article_from_text endpoint.
func NewGenerateArticle() TextTask {
	return TextTask{name: "generate_article_from_text", promptID: promptNewsArticle}
}

func (t TextTask) Descriptor() Descriptor {
	return Descriptor{
		Name:              t.name,
		Path:              "/" + t.name,
		Method:            http.MethodPost,
		Required:          []string{"model_name", "text"},
		Optional:          []string{"language", "temperature", "max_tokens", "max_new_tokens"},
		SystemPromptNames: anyLang(t.promptID),
		Operation:         OpChat,
	}
}

func (t TextTask) PreparePayload(_ context.Context, call *Call) error {
	text, ok := call.Consume("text").(string)
	if !ok || text == "" {
		return apierror.ValidationError("text", "must be a non-empty string")
	}
	call.Envelope["messages"] = []any{
		map[string]any{"role": "user", "content": text},
	}
	return nil
}

// GenerateQuestions produces N questions about a text.
type GenerateQuestions struct{}

const defaultQuestionsNumber = 5

func (GenerateQuestions) Descriptor() Descriptor {
	return Descriptor{
		Name:              "generate_questions",
		Path:              "/generate_questions",
		Method:            http.MethodPost,
		Required:          []string{"model_name", "text"},
		Optional:          []string{"language", "questions_number", "temperature", "max_tokens", "max_new_tokens"},
		SystemPromptNames: anyLang(promptQuestions),
		Operation:         OpChat,
	}
}

func (GenerateQuestions) PreparePayload(_ context.Context, call *Call) error {
	n := call.IntArg("questions_number", defaultQuestionsNumber)
	call.Consume("questions_number")
	if n <= 0 {
		return apierror.ValidationError("questions_number", "must be a positive integer")
	}
	call.MapPrompt = map[string]string{"##QUESTION_NUM_STR##": strconv.Itoa(n)}

	text, ok := call.Consume("text").(string)
	if !ok || text == "" {
		return apierror.ValidationError("text", "must be a non-empty string")
	}
	call.Envelope["messages"] = []any{
		map[string]any{"role": "user", "content": text},
	}
	return nil
}
