package endpoint

import (
	"context"
	"net/http"
	"strings"

	"github.com/radlab/llm-router/apierror"
)

// FullArticle merges several source texts into one article. Each text is
// summarised in its own upstream call against the same provider and the
// parts are joined in request order.
type FullArticle struct{}

func (FullArticle) Descriptor() Descriptor {
	return Descriptor{
		Name:               "create_full_article_from_texts",
		Path:               "/create_full_article_from_texts",
		Method:             http.MethodPost,
		Required:           []string{"model_name", "texts"},
		Optional:           []string{"language", "temperature", "max_tokens", "max_new_tokens"},
		SystemPromptNames:  anyLang(promptFullArticle),
		CallForEachUserMsg: true,
		Operation:          OpChat,
	}
}

func (FullArticle) PreparePayload(_ context.Context, call *Call) error {
	raw, ok := call.Consume("texts").([]any)
	if !ok || len(raw) == 0 {
		return apierror.ValidationError("texts", "must be a non-empty array of strings")
	}
	messages := make([]any, 0, len(raw))
	for _, item := range raw {
		text, ok := item.(string)
		if !ok || text == "" {
			return apierror.ValidationError("texts", "entries must be non-empty strings")
		}
		messages = append(messages, map[string]any{"role": "user", "content": text})
	}
	call.Envelope["messages"] = messages
	return nil
}

func (FullArticle) AggregateResponses(call *Call, _ []map[string]any, contents []string) (map[string]any, error) {
	return map[string]any{
		"response":        strings.Join(contents, "\n\n"),
		"generation_time": call.Elapsed().Seconds(),
	}, nil
}

// BatchFileSummaries summarises a batch of files, one upstream call per
// file, all against the provider locked for the batch.
type BatchFileSummaries struct{}

func (BatchFileSummaries) Descriptor() Descriptor {
	return Descriptor{
		Name:               "batch_file_summaries",
		Path:               "/batch_file_summaries",
		Method:             http.MethodPost,
		Required:           []string{"model_name", "files"},
		Optional:           []string{"language", "temperature", "max_tokens", "max_new_tokens"},
		SystemPromptNames:  anyLang(promptFileSummary),
		CallForEachUserMsg: true,
		Operation:          OpChat,
	}
}

func (BatchFileSummaries) PreparePayload(_ context.Context, call *Call) error {
	raw, ok := call.Consume("files").([]any)
	if !ok || len(raw) == 0 {
		return apierror.ValidationError("files", "must be a non-empty array of {name, content} objects")
	}

	names := make([]string, 0, len(raw))
	messages := make([]any, 0, len(raw))
	for _, item := range raw {
		file, ok := item.(map[string]any)
		if !ok {
			return apierror.ValidationError("files", "entries must be {name, content} objects")
		}
		name, _ := file["name"].(string)
		content, _ := file["content"].(string)
		if name == "" || content == "" {
			return apierror.ValidationError("files", "entries need non-empty name and content")
		}
		names = append(names, name)
		messages = append(messages, map[string]any{"role": "user", "content": content})
	}
	call.Meta["file_names"] = names
	call.Envelope["messages"] = messages
	return nil
}

func (BatchFileSummaries) AggregateResponses(call *Call, _ []map[string]any, contents []string) (map[string]any, error) {
	names, _ := call.Meta["file_names"].([]string)
	summaries := make([]map[string]any, 0, len(contents))
	for i, summary := range contents {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		summaries = append(summaries, map[string]any{
			"name":       name,
			"summary":    summary,
			"key_points": keyPoints(summary),
		})
	}
	return map[string]any{
		"response":        summaries,
		"generation_time": call.Elapsed().Seconds(),
	}, nil
}

// keyPoints pulls bullet-style lines out of a summary.
func keyPoints(summary string) []string {
	points := []string{}
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(line, marker) {
				if point := strings.TrimSpace(line[len(marker):]); point != "" {
					points = append(points, point)
				}
				break
			}
		}
	}
	return points
}
