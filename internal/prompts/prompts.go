// Package prompts resolves system prompt templates from a tree of text
// files. Prompt ids are slash-separated paths relative to the repository
// root, e.g. "builtin/system/en/chat-conversation-simple".
package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no file backs the requested prompt id.
var ErrNotFound = errors.New("prompt not found")

// Repository is the lookup contract the endpoint layer depends on.
type Repository interface {
	// Get returns the prompt text for id. A "{lang}" token inside id is
	// replaced with language before resolution.
	Get(id, language string) (string, error)
}

// FileStore is a Repository over a directory of .txt files.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) Get(id, language string) (string, error) {
	id = strings.ReplaceAll(id, "{lang}", language)
	if strings.Contains(id, "..") {
		return "", fmt.Errorf("prompt id %q: path escapes are not allowed", id)
	}
	path := filepath.Join(s.root, filepath.FromSlash(id)+".txt")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("prompt %q (language %s): %w", id, language, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read prompt %q: %w", id, err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// Substitute applies a single left-to-right pass of placeholder
// replacements over a prompt. Placeholders are bounded literals such as
// "##QUESTION_STR##"; values are inserted verbatim and never re-scanned.
func Substitute(prompt string, replacements map[string]string) string {
	if len(replacements) == 0 {
		return prompt
	}
	pairs := make([]string, 0, 2*len(replacements))
	for token, value := range replacements {
		pairs = append(pairs, token, value)
	}
	return strings.NewReplacer(pairs...).Replace(prompt)
}
