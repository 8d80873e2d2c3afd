// Package auditlogger bridges pipeline audit records to the persistent
// audit writer and mirrors them to the structured log.
package auditlogger

import (
	"context"

	"github.com/radlab/llm-router/hook"
	"github.com/radlab/llm-router/internal/audit"
	"github.com/radlab/llm-router/internal/logging"
)

// Auditor implements hook.Auditor on top of an audit.Writer.
type Auditor struct {
	writer audit.Writer
}

// New creates an Auditor. A nil writer falls back to audit.NoopWriter.
func New(w audit.Writer) *Auditor {
	if w == nil {
		w = audit.NoopWriter{}
	}
	return &Auditor{writer: w}
}

// Log persists one audit record, annotated with the request ID from ctx.
func (a *Auditor) Log(ctx context.Context, rec hook.AuditRecord) error {
	entry := audit.Entry{
		RequestID: logging.RequestIDFromContext(ctx),
		AuditType: rec.AuditType,
		Payload:   rec.Payload,
	}
	if model, ok := rec.Payload["model"].(string); ok {
		entry.Model = model
	}
	if ep, ok := rec.Payload["endpoint"].(string); ok {
		entry.Endpoint = ep
	}
	logging.FromContext(ctx).Debug("audit record", "audit_type", rec.AuditType)
	return a.writer.Write(ctx, entry)
}
