package pipeline

import "strings"

// VoiceSelection lists the voices a run may synthesize with, in priority
// order: the user's selection, the configured fallbacks, then saved (cloned)
// voices.
type VoiceSelection struct {
	Selected  string
	Fallbacks []string
	Saved     []string
}

// Resolve returns the first non-empty voice ID, or "" when there is none.
func (v VoiceSelection) Resolve() string {
	if id := strings.TrimSpace(v.Selected); id != "" {
		return id
	}
	for _, list := range [][]string{v.Fallbacks, v.Saved} {
		for _, id := range list {
			if id = strings.TrimSpace(id); id != "" {
				return id
			}
		}
	}
	return ""
}
