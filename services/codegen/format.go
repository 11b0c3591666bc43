package codegen

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FormatTag identifies the layout rules applied by Format.
const FormatTag = "python/pep8-lite"

const maxBlankLines = 2

// Format normalizes program text so that equal programs are byte-identical:
// LF line endings, tabs expanded to four spaces, no trailing whitespace, no
// leading blank lines, at most two consecutive blank lines and exactly one
// trailing newline. Format(Format(s)) == Format(s).
func Format(code string) string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.ReplaceAll(code, "\r", "\n")
	code = strings.ReplaceAll(code, "\t", "    ")

	var b strings.Builder
	blanks := 0
	started := false
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimRight(line, " \f\v")
		if line == "" {
			if started {
				blanks++
			}
			continue
		}
		if started {
			for i := 0; i < min(blanks, maxBlankLines); i++ {
				b.WriteByte('\n')
			}
		}
		blanks = 0
		started = true
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Hash returns the hex SHA-256 digest of the formatted code.
func Hash(code string) string {
	sum := sha256.Sum256([]byte(Format(code)))
	return hex.EncodeToString(sum[:])
}
