// Package command extracts structured status commands from free-text chat
// messages. Parsing is best-effort: anything that does not match the code
// and alias grammar is dropped, never reported as an error.
package command

import (
	"regexp"
	"strings"

	"albumline/internal/domain"
	"albumline/internal/status"
)

// codeRe matches album codes: a short department letter prefix, a dash and
// a number, e.g. "A-101" or "ФТ-23".
var codeRe = regexp.MustCompile(`^[A-Za-zА-Яа-яЁё]{1,4}-[0-9]{1,5}$`)

// Parse scans one message and returns every (code, status, path?) command
// it contains, in order of appearance. A code and an alias pair up in
// either order; filler words between them are ignored. Unknown aliases and
// unpaired fragments yield nothing.
func Parse(text string) []domain.StatusCommand {
	tokens := strings.Fields(text)
	var cmds []domain.StatusCommand
	var pendingCode, pendingStatus string
	attachTo := -1 // command index still eligible for a trailing path token

	for i := 0; i < len(tokens); {
		if st, n, ok := matchAlias(tokens, i); ok {
			if pendingCode != "" {
				cmds = append(cmds, domain.StatusCommand{AlbumCode: pendingCode, StatusCode: st.Code})
				pendingCode = ""
				attachTo = len(cmds) - 1
			} else {
				pendingStatus = st.Code
				attachTo = -1
			}
			i += n
			continue
		}
		tok := trimToken(tokens[i])
		switch {
		case codeRe.MatchString(tok):
			code := strings.ToUpper(tok)
			if pendingStatus != "" {
				cmds = append(cmds, domain.StatusCommand{AlbumCode: code, StatusCode: pendingStatus})
				pendingStatus = ""
				attachTo = len(cmds) - 1
			} else {
				pendingCode = code
				attachTo = -1
			}
		case isPathLike(tok):
			// Path tokens are kept verbatim, straight from the message.
			if attachTo >= 0 && cmds[attachTo].LocalPath == "" {
				cmds[attachTo].LocalPath = tokens[i]
				attachTo = -1
			}
		}
		i++
	}
	return cmds
}

// matchAlias tries the longest alias first so that "в производстве" wins
// over a hypothetical single-word match at the same position.
func matchAlias(tokens []string, i int) (status.Status, int, bool) {
	max := status.MaxAliasWords()
	if rest := len(tokens) - i; rest < max {
		max = rest
	}
	for n := max; n >= 1; n-- {
		parts := make([]string, 0, n)
		for _, t := range tokens[i : i+n] {
			parts = append(parts, trimToken(t))
		}
		if st, ok := status.ByAlias(strings.Join(parts, " ")); ok {
			return st, n, true
		}
	}
	return status.Status{}, 0, false
}

func trimToken(tok string) string {
	return strings.Trim(tok, ",.;:!?()[]\"'«»")
}

func isPathLike(tok string) bool {
	return strings.ContainsAny(tok, `/\`)
}
