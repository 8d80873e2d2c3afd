package hook

// MessageContents extracts the string content of every message in an
// envelope, in order. Non-string contents (multi-part messages) are
// skipped.
func MessageContents(envelope map[string]any) []string {
	raw, ok := envelope["messages"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, m := range raw {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := msg["content"].(string); ok {
			out = append(out, s)
		}
	}
	return out
}
