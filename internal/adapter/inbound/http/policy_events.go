package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/auth"
)

// policyEventsUpgrader matches the teacher's own Origin-checked websocket
// upgrader: DNSRebindingProtection already gates Origin at the mux level, so
// CheckOrigin here just accepts whatever already passed that middleware.
var policyEventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const policyEventPingInterval = 30 * time.Second

// handlePolicyEventsWS streams a small JSON message every time the policy
// store's rule set changes, per spec.md §6's admin policy-events endpoint.
// Requires the admin role; any other authenticated identity gets 403 rather
// than silently receiving an empty stream.
func (h *GatewayHandler) handlePolicyEventsWS(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil || !identity.HasRole(auth.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required")
		return
	}

	conn, err := policyEventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("policy events websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	changes := h.policyStore.Subscribe(ctx)

	ticker := time.NewTicker(policyEventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := h.sendPolicySnapshotEvent(ctx, conn); err != nil {
				h.logger.Warn("policy events websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// policyEvent is the wire shape pushed to connected admin UIs: the rule
// count and each rule's ID/name/enabled state, enough to refresh a policy
// list view without a follow-up REST call.
type policyEvent struct {
	RuleCount int                `json:"rule_count"`
	Rules     []policyEventEntry `json:"rules"`
}

type policyEventEntry struct {
	RuleID  string `json:"rule_id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (h *GatewayHandler) sendPolicySnapshotEvent(ctx context.Context, conn *websocket.Conn) error {
	snapshot, err := h.policyStore.GetSnapshot(ctx)
	if err != nil {
		return err
	}

	event := policyEvent{RuleCount: len(snapshot), Rules: make([]policyEventEntry, 0, len(snapshot))}
	for _, r := range snapshot {
		event.Rules = append(event.Rules, policyEventEntry{RuleID: r.ID, Name: r.Name, Enabled: r.Enabled})
	}

	return conn.WriteJSON(event)
}
