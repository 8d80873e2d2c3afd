package hook

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager holds the ordered hook pipelines and the auditor they report to.
type Manager struct {
	maskers    []Masker
	reqGuards  []Guardrail
	respGuards []Guardrail

	auditor        Auditor
	auditMasking   bool
	auditGuardrail bool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// SetAuditor wires the audit sink. auditMasking and auditGuardrail control
// which pipelines forward their records.
func (m *Manager) SetAuditor(a Auditor, auditMasking, auditGuardrail bool) {
	m.auditor = a
	m.auditMasking = auditMasking
	m.auditGuardrail = auditGuardrail
}

// AddMasker appends a masker to the request pipeline.
func (m *Manager) AddMasker(mk Masker) {
	m.maskers = append(m.maskers, mk)
	slog.Info("masker registered", "name", mk.Name())
}

// AddRequestGuardrail appends a guardrail to the request pipeline.
func (m *Manager) AddRequestGuardrail(g Guardrail) {
	m.reqGuards = append(m.reqGuards, g)
	slog.Info("request guardrail registered", "name", g.Name())
}

// AddResponseGuardrail appends a guardrail to the response pipeline.
func (m *Manager) AddResponseGuardrail(g Guardrail) {
	m.respGuards = append(m.respGuards, g)
	slog.Info("response guardrail registered", "name", g.Name())
}

// HasMaskers reports whether any masker is configured.
func (m *Manager) HasMaskers() bool { return len(m.maskers) > 0 }

// HasRequestGuardrails reports whether the request guardrail pipeline is
// non-empty.
func (m *Manager) HasRequestGuardrails() bool { return len(m.reqGuards) > 0 }

// HasResponseGuardrails reports whether the response guardrail pipeline is
// non-empty.
func (m *Manager) HasResponseGuardrails() bool { return len(m.respGuards) > 0 }

// RunMaskers passes the envelope through the masking pipeline in order.
// When only is non-empty, pipeline members outside it are skipped. Audit
// records are forwarded to the auditor; a failing auditor never fails the
// request.
func (m *Manager) RunMaskers(ctx context.Context, envelope map[string]any, only []string) (map[string]any, error) {
	selected := map[string]bool{}
	for _, name := range only {
		selected[name] = true
	}
	for _, mk := range m.maskers {
		if len(selected) > 0 && !selected[mk.Name()] {
			continue
		}
		rewritten, rec, err := mk.Mask(ctx, envelope)
		if err != nil {
			return nil, fmt.Errorf("masker %s: %w", mk.Name(), err)
		}
		envelope = rewritten
		if rec != nil && m.auditMasking {
			m.audit(ctx, *rec)
		}
	}
	return envelope, nil
}

// RunRequestGuardrails runs the request pipeline. The first block verdict
// wins; its guardrail name and reason are returned.
func (m *Manager) RunRequestGuardrails(ctx context.Context, envelope map[string]any) (Verdict, string, error) {
	return m.runGuards(ctx, m.reqGuards, envelope, "guardrail_request")
}

// RunResponseGuardrails runs the response pipeline over a buffered response
// body.
func (m *Manager) RunResponseGuardrails(ctx context.Context, body map[string]any) (Verdict, string, error) {
	return m.runGuards(ctx, m.respGuards, body, "guardrail_response")
}

func (m *Manager) runGuards(ctx context.Context, guards []Guardrail, envelope map[string]any, auditType string) (Verdict, string, error) {
	for _, g := range guards {
		v, err := g.Inspect(ctx, envelope)
		if err != nil {
			return Verdict{}, g.Name(), fmt.Errorf("guardrail %s: %w", g.Name(), err)
		}
		if !v.Allow {
			if m.auditGuardrail {
				m.audit(ctx, AuditRecord{
					AuditType: auditType,
					Payload: map[string]any{
						"guardrail": g.Name(),
						"reason":    v.Reason,
					},
				})
			}
			return v, g.Name(), nil
		}
	}
	return Verdict{Allow: true}, "", nil
}

func (m *Manager) audit(ctx context.Context, rec AuditRecord) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Log(ctx, rec); err != nil {
		slog.Warn("audit write failed", "audit_type", rec.AuditType, "err", err)
	}
}
