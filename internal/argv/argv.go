// Package argv splits a command line into arguments with POSIX shell
// quoting, without expansion of any kind.
package argv

import (
	"errors"
	"strings"
)

// ErrUnterminated is returned for a line ending inside quotes or after a
// lone backslash.
var ErrUnterminated = errors.New("unterminated quote or escape")

// Split splits line into arguments.
//
//   - Unquoted spaces, tabs and newlines separate arguments.
//   - Single quotes preserve their contents literally.
//   - Double quotes preserve their contents; a backslash escapes only $, `,
//     ", \ or a newline, and is literal before anything else.
//   - Outside quotes, a backslash escapes the next character; a
//     backslash-newline is removed.
//   - A # at the start of an argument comments out the rest of the line.
//
// Quoted empty strings ('' or "") are arguments.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			escaped = false
			if quote == '"' && !strings.ContainsRune("$`\"\\\n", r) {
				cur.WriteRune('\\')
			}
			if r != '\n' {
				cur.WriteRune(r)
				inArg = true
			}
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\\':
			escaped = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		case r == '#' && !inArg:
			return args, nil
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 || escaped {
		return nil, ErrUnterminated
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
