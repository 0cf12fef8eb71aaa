package rewards

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"avolve-rewards/models"
)

// DefaultRequiredChallenges is reported when the server threshold cannot be read.
// It is informational only: a gate running on it always fails closed.
const DefaultRequiredChallenges = 3

// Reason codes attached to negative decisions.
const (
	ReasonThresholdNotMet    = "threshold_not_met"
	ReasonUnverifiable       = "unverifiable"
	ReasonAlreadyClaimed     = "already_claimed"
	ReasonCoolingDown        = "cooling_down"
	ReasonRequirementsNotMet = "requirements_not_met"
	ReasonMissingToken       = "missing_token"
	ReasonUnavailable        = "unavailable"
)

var printer = message.NewPrinter(language.English)

// Decision is the outcome of a gate: whether the action is allowed and, if
// not, a code and a reason the UI can show as-is.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(code, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Err converts a negative decision into a taxonomy error, nil when allowed.
func (d Decision) Err(op string) error {
	if d.Allowed {
		return nil
	}
	switch d.Code {
	case ReasonUnverifiable:
		return NewError(ErrConfigUnavailable, op, d.Reason, nil)
	case ReasonAlreadyClaimed:
		return NewError(ErrAlreadyActed, op, d.Reason, nil)
	default:
		return NewError(ErrNotEligible, op, d.Reason, nil)
	}
}

// CheckTeamCreation gates team creation on completed challenges.
//
// When the threshold lookup failed (or returned a nonsensical value) the gate
// fails closed: the user is reported ineligible with an "unable to verify"
// reason, and RequiredChallenges carries the local fallback flagged as degraded.
func CheckTeamCreation(completed, required int, lookupErr error) models.TeamEligibility {
	if completed < 0 {
		completed = 0
	}
	if lookupErr != nil || required < 1 {
		return models.TeamEligibility{
			CompletedChallenges: completed,
			RequiredChallenges:  DefaultRequiredChallenges,
			Degraded:            true,
			ReasonCode:          ReasonUnverifiable,
			Reason:              ErrConfigUnavailable.Error(),
		}
	}

	out := models.TeamEligibility{
		CompletedChallenges: completed,
		RequiredChallenges:  required,
		IsEligible:          completed >= required,
	}
	if !out.IsEligible {
		missing := required - completed
		out.ReasonCode = ReasonThresholdNotMet
		out.Reason = printer.Sprintf("you need %d more %s to create a team (%d of %d completed)",
			missing, plural(missing, "challenge", "challenges"), completed, required)
	}
	return out
}

// TeamDecision flattens a TeamEligibility into a Decision.
func TeamDecision(e models.TeamEligibility) Decision {
	if e.IsEligible {
		return allow()
	}
	return deny(e.ReasonCode, e.Reason)
}

// UnlockDecision describes access to a token-gated resource.
type UnlockDecision struct {
	Decision
	Token    models.TokenType   `json:"token"`
	Progress int                `json:"progress"` // 0-100
	Owned    []models.TokenType `json:"owned_prerequisites"`
	Missing  []models.TokenType `json:"missing_prerequisites"`
}

// CheckContentUnlock gates a resource that requires token. Access needs the
// token itself; progress is the share of its prerequisite child tokens owned.
func CheckContentUnlock(token models.TokenType, owned []models.TokenType) UnlockDecision {
	have := make(map[models.TokenType]bool, len(owned))
	for _, t := range owned {
		have[t] = true
	}

	out := UnlockDecision{
		Token:   token,
		Owned:   []models.TokenType{},
		Missing: []models.TokenType{},
	}
	children := models.TokenHierarchy[token]
	for _, child := range children {
		if have[child] {
			out.Owned = append(out.Owned, child)
		} else {
			out.Missing = append(out.Missing, child)
		}
	}

	if have[token] {
		out.Progress = 100
		out.Decision = allow()
		return out
	}

	if len(children) > 0 {
		out.Progress = len(out.Owned) * 100 / len(children)
	}
	reason := printer.Sprintf("requires the %s token", token)
	switch {
	case len(out.Missing) > 0:
		reason += printer.Sprintf(" (%d of %d prerequisite tokens owned, missing %s)",
			len(out.Owned), len(children), joinTokens(out.Missing))
	case len(children) > 0:
		reason += " (all prerequisite tokens owned)"
	}
	out.Decision = deny(ReasonMissingToken, reason)
	return out
}

// CheckRewardClaim decides whether reward can be claimed at now:
// it must be unclaimed, past its next-available time and, when progress is
// tracked, have met its requirement.
func CheckRewardClaim(r models.Reward, now time.Time) Decision {
	if r.IsClaimed {
		return deny(ReasonAlreadyClaimed, "this reward has already been claimed")
	}
	if r.NextAvailable != nil && r.NextAvailable.After(now) {
		wait := r.NextAvailable.Sub(now)
		return deny(ReasonCoolingDown, fmt.Sprintf("available again in %s", humanizeDuration(wait)))
	}
	if p := r.RequirementsProgress; p != nil && !p.Met() {
		return deny(ReasonRequirementsNotMet,
			printer.Sprintf("progress %d of %d required", p.Current, p.Required))
	}
	return allow()
}

// ApplyClaimability recomputes CanClaim on a copy of rewards. A reward is
// claimable only when both the backend flag and the local gate agree.
func ApplyClaimability(in []models.Reward, now time.Time) []models.Reward {
	out := make([]models.Reward, len(in))
	for i, r := range in {
		d := CheckRewardClaim(r, now)
		switch {
		case !d.Allowed:
			r.CanClaim = false
			r.BlockedReason = d.Reason
		case !r.CanClaim:
			r.BlockedReason = "this reward is not available yet"
		default:
			r.BlockedReason = ""
		}
		out[i] = r
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func joinTokens(tokens []models.TokenType) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func humanizeDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	var parts []string
	if days > 0 {
		parts = append(parts, printer.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, printer.Sprintf("%dh", hours))
	}
	if minutes > 0 && days == 0 {
		parts = append(parts, printer.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}
