package runsync

import (
	"strings"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// statusRules are checked in order; the first matching substring wins.
var statusRules = []struct {
	substr string
	status domain.NodeStatus
}{
	{"await", domain.NodeStatusAwaiting},
	{"active", domain.NodeStatusActive},
	{"complete", domain.NodeStatusCompleted},
	{"error", domain.NodeStatusError},
	{"ready", domain.NodeStatusReady},
}

// NormalizeStatus maps a backend status string onto NodeStatus by
// case-insensitive substring match. Unrecognized input maps to idle.
func NormalizeStatus(raw string) domain.NodeStatus {
	s := strings.ToLower(raw)
	for _, r := range statusRules {
		if strings.Contains(s, r.substr) {
			return r.status
		}
	}
	return domain.NodeStatusIdle
}
