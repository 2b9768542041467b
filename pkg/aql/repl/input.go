package repl

import (
	"strings"

	perrors "github.com/sambeau/aql/pkg/aql/errors"
)

var commands = []string{":help", ":json", ":explain", ":check", ":limits", ":stats", ":forget", ":purge"}

var functions = []string{
	"LENGTH", "COUNT", "SUM", "MIN", "MAX", "AVERAGE", "CONCAT", "LOWER", "UPPER",
	"SUBSTRING", "CONTAINS", "DOCUMENT", "FIRST", "LAST", "UNIQUE", "KEYS", "VALUES",
	"MERGE", "HAS", "IS_NULL", "TO_NUMBER", "TO_STRING", "DATE_NOW",
}

// filterCompletions returns completion suggestions for the last word typed.
// Keywords and functions complete case-insensitively to upper case.
func filterCompletions(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if last := line[len(line)-1]; last == ' ' || last == '\t' {
		return nil
	}

	start := strings.LastIndexAny(line, " \t\n([{,") + 1
	prefix, word := line[:start], line[start:]

	var candidates []string
	switch {
	case strings.HasPrefix(word, ":") && start == 0:
		candidates = commands
	default:
		candidates = append(append([]string{}, perrors.Keywords...), functions...)
		word = strings.ToUpper(word)
	}

	var matches []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) && c != word {
			matches = append(matches, prefix+c)
		}
	}
	return matches
}

// needsMoreInput reports whether input has unclosed brackets, strings or
// block comments.
func needsMoreInput(input string) bool {
	depth := 0
	var quote byte
	inComment := false

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if inComment {
			if ch == '*' && i+1 < len(input) && input[i+1] == '/' {
				inComment = false
				i++
			}
			continue
		}

		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '/':
			if i+1 < len(input) {
				switch input[i+1] {
				case '/':
					for i < len(input) && input[i] != '\n' {
						i++
					}
				case '*':
					inComment = true
					i++
				}
			}
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		}
	}

	return depth > 0 || quote != 0 || inComment
}
