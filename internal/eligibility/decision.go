package eligibility

import (
	"fmt"

	"github.com/google/uuid"
)

// Decision is the answer to "may this pair be called now?".
//
// Reason is human readable and stable enough to assert on. Check names the rule
// that fired and is meant for machines (metrics, UI copy lookups).
type Decision struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
	Check    Check  `json:"check"`
}

type Check string

const (
	CheckPassed             Check = "passed"
	CheckProjectNotFound    Check = "project_not_found"
	CheckProjectSuppressed  Check = "project_suppressed"
	CheckGlobalTerminal     Check = "global_terminal"
	CheckProjectTerminal    Check = "project_terminal"
	CheckProjectCooldown    Check = "project_cooldown"
	CheckProjectDailyLimit  Check = "project_daily_limit"
	CheckProjectWeeklyLimit Check = "project_weekly_limit"
	CheckContactNotFound    Check = "contact_not_found"
	CheckContactDoNotCall   Check = "contact_do_not_call"
	CheckContactTerminal    Check = "contact_terminal"
	CheckContactSuppressed  Check = "contact_suppressed_for_project"
	CheckContactDailyLimit  Check = "contact_daily_limit"
	CheckContactWeeklyLimit Check = "contact_weekly_limit"
	CheckPairTerminal       Check = "pair_terminal"
)

func allow() Decision {
	return Decision{Eligible: true, Reason: "eligible", Check: CheckPassed}
}

func deny(check Check, format string, args ...any) Decision {
	return Decision{Check: check, Reason: fmt.Sprintf(format, args...)}
}

// ContactRef addresses a contact by internal or external key. When both are set
// they must name the same row.
type ContactRef struct {
	ID         *uuid.UUID `json:"contact_id,omitempty"`
	ExternalID *string    `json:"contact_external_id,omitempty"`
}

func (r *ContactRef) empty() bool {
	return r == nil || (r.ID == nil && (r.ExternalID == nil || *r.ExternalID == ""))
}
