package core

import "strings"

// parseCommandText extracts a command route and its arguments from message
// text. "/remind@tickbot 2h tea" yields ("remind", "2h tea", ["2h","tea"],
// true). Non-command text returns ok=false.
func parseCommandText(text string) (route, argText string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", nil, false
	}
	word, rest, _ := strings.Cut(text[1:], " ")
	// Strip the @botname suffix Telegram appends in groups.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", "", nil, false
	}
	rest = strings.TrimSpace(rest)
	return word, rest, strings.Fields(rest), true
}
