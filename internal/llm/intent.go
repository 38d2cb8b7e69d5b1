package llm

import "strings"

var confirmWords = []string{"yes", "confirm", "ok", "okay", "sure", "do it", "go ahead", "proceed", "yep", "yeah"}
var rejectWords = []string{"no", "cancel", "stop", "nope", "don't", "do not", "never mind", "nevermind"}
var restartWords = []string{"restart", "start over", "try again", "redo"}

// classifyByKeyword applies the fixed keyword whitelist (spec §4.8: "first
// a fixed keyword whitelist"). ok is false when no keyword matched and the
// caller should fall back to an LLM classification.
func classifyByKeyword(input string) (Intent, bool) {
	text := strings.ToLower(strings.TrimSpace(input))
	if text == "" {
		return "", false
	}

	for _, word := range restartWords {
		if strings.Contains(text, word) {
			return IntentRestart, true
		}
	}
	for _, word := range rejectWords {
		if strings.Contains(text, word) {
			return IntentReject, true
		}
	}
	for _, word := range confirmWords {
		if text == word || strings.HasPrefix(text, word+" ") || strings.Contains(text, " "+word) {
			return IntentConfirm, true
		}
	}
	return "", false
}

// parseIntent maps the LLM classification call's raw reply to an Intent,
// defaulting to ambiguous on anything it doesn't recognize.
func parseIntent(reply string) Intent {
	text := strings.ToLower(strings.TrimSpace(reply))
	switch {
	case strings.Contains(text, "confirm"):
		return IntentConfirm
	case strings.Contains(text, "reject"):
		return IntentReject
	case strings.Contains(text, "restart"):
		return IntentRestart
	default:
		return IntentAmbiguous
	}
}
