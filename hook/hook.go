// Package hook defines the masker, guardrail and auditor contracts that
// wrap the upstream call in the request pipeline.
//
// Maskers rewrite the request envelope (PII scrubbing and similar) and emit
// audit records. Guardrails inspect an envelope and either allow it or
// block the request. The auditor is the sink both feed. Hooks are stateless
// between requests; built-in implementations live in the internal/hooks/*
// packages and are registered by importing them with a blank import
// (e.g. _ "github.com/radlab/llm-router/internal/hooks/wordguard").
package hook

import "context"

// AuditRecord is one event forwarded to the auditor collaborator.
type AuditRecord struct {
	AuditType string         `json:"audit_type"`
	Payload   map[string]any `json:"payload"`
}

// Verdict is a guardrail decision.
type Verdict struct {
	Allow  bool
	Reason string
}

// Masker rewrites a request envelope. Returning a nil record means there is
// nothing to audit for this request.
type Masker interface {
	Name() string
	Init(config map[string]any) error
	Mask(ctx context.Context, envelope map[string]any) (map[string]any, *AuditRecord, error)
}

// Guardrail classifies an envelope. A Verdict with Allow=false blocks the
// request.
type Guardrail interface {
	Name() string
	Init(config map[string]any) error
	Inspect(ctx context.Context, envelope map[string]any) (Verdict, error)
}

// Auditor persists audit records. Implementations may encrypt at rest; the
// pipeline does not require it.
type Auditor interface {
	Log(ctx context.Context, rec AuditRecord) error
}
