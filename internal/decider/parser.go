package decider

import "strings"

// ParseAction extracts the action and reason from the decider's free-text
// response. The decider is expected to lead with BUY/SELL/HOLD; anything
// it cannot parse is treated as HOLD so a misbehaving decider degrades to
// doing nothing rather than trading on garbage.
func ParseAction(text string) (Action, string, error) {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)

	var action Action
	switch {
	case strings.HasPrefix(upper, "BUY"):
		action = Buy
	case strings.HasPrefix(upper, "SELL"):
		action = Sell
	default:
		action = Hold
	}

	reason := trimmed
	if idx := strings.IndexAny(trimmed, ":\n"); idx >= 0 && idx < len(trimmed)-1 {
		reason = strings.TrimSpace(trimmed[idx+1:])
	}
	if reason == "" {
		reason = trimmed
	}

	return action, reason, nil
}
