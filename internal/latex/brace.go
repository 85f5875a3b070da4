package latex

import "strings"

// Match is one occurrence of a command with a brace-balanced argument.
// Start and End delimit the full \command{...} text, ArgStart and ArgEnd
// the argument between the outer braces. All offsets are byte positions
// and End/ArgEnd are exclusive.
type Match struct {
	Start    int
	End      int
	ArgStart int
	ArgEnd   int
}

// FindBracedCommand locates every occurrence of \command{...} in text,
// matching the argument by brace depth counting. Captions routinely nest
// \label{...} or \text{...} inside their argument, which a non-recursive
// regular expression cannot close correctly.
// Occurrences with unbalanced braces are skipped.
func FindBracedCommand(text, command string) []Match {
	token := "\\" + command + "{"
	var matches []Match

	pos := 0
	for {
		idx := strings.Index(text[pos:], token)
		if idx < 0 {
			break
		}
		start := pos + idx
		argStart := start + len(token)

		depth := 1
		end := -1
		for i := argStart; i < len(text); i++ {
			switch text[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = i
				}
			}
			if end >= 0 {
				break
			}
		}

		if end < 0 {
			// Unbalanced argument, keep scanning after the token
			pos = argStart
			continue
		}

		matches = append(matches, Match{
			Start:    start,
			End:      end + 1,
			ArgStart: argStart,
			ArgEnd:   end,
		})
		pos = end + 1
	}

	return matches
}

// FindCaptions returns the argument text of every \caption{...} in order
func FindCaptions(text string) []string {
	matches := FindBracedCommand(text, "caption")
	if len(matches) == 0 {
		return nil
	}
	captions := make([]string, 0, len(matches))
	for _, m := range matches {
		captions = append(captions, text[m.ArgStart:m.ArgEnd])
	}
	return captions
}

// LastCaption returns the argument of the last \caption{...} in text,
// or "" if there is none
func LastCaption(text string) string {
	captions := FindCaptions(text)
	if len(captions) == 0 {
		return ""
	}
	return captions[len(captions)-1]
}

// HasCaption reports whether text contains at least one \caption{...}
func HasCaption(text string) bool {
	return len(FindBracedCommand(text, "caption")) > 0
}
