// Package knol derives the stable identity of a note from its content, so a
// re-import recognizes notes it has already turned into cards.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/grove/internal/parser"
)

var normalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizePart(part string) string {
	return strings.TrimSpace(strings.ToLower(normalizer.Replace(part)))
}

// Normalize lowercases, trims and unifies line endings of each field, then
// joins them with newlines so words from adjacent fields never run together.
func Normalize(n parser.Note) string {
	return strings.Join([]string{
		normalizePart(n.Question),
		normalizePart(n.Answer),
		normalizePart(n.Context),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized note. Where the note came
// from (file, line) does not contribute, so moving a note keeps its card.
func Hash(n parser.Note) string {
	sum := sha256.Sum256([]byte(Normalize(n)))
	return hex.EncodeToString(sum[:])
}
