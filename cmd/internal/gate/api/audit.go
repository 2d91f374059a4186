package gateapi

import (
	"context"
	"encoding/json"
	"strings"
)

func (h *Handler) auditVisitCreated(ctx context.Context, actorID, visitID string, walkIn bool) {
	h.insertAudit(ctx, "visit.created", actorID, map[string]any{
		"visit_id": visitID,
		"walk_in":  walkIn,
	})
}

func (h *Handler) auditVisitAction(ctx context.Context, actorID, visitID, action string) {
	h.insertAudit(ctx, action, actorID, map[string]any{
		"visit_id": visitID,
	})
}

func (h *Handler) auditBlacklist(ctx context.Context, actorID, visitorID, action string) {
	h.insertAudit(ctx, action, actorID, map[string]any{
		"visitor_id": visitorID,
	})
}

// insertAudit is best effort: a failed audit write is logged, never surfaced.
func (h *Handler) insertAudit(ctx context.Context, action, actorID string, meta map[string]any) {
	if h == nil || h.pool == nil {
		return
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return
	}

	var metaVal *string
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := h.pool.Exec(ctx, `
		INSERT INTO gatepass.audit_log (
			actor_id, action, created_at, meta
		) VALUES ($1, $2, now(), $3::jsonb)
	`, actorID, action, metaVal)
	if err != nil {
		h.log.Error("gate.audit.insert.fail", "err", err, "action", action)
	}
}
