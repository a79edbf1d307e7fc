// Package rand produces short random identifiers for workload names.
package rand

import (
	"strings"

	"github.com/google/uuid"
)

// SuffixLen is the length of the string returned by Suffix.
const SuffixLen = 8

// Suffix returns SuffixLen lowercase hex characters from a random v4 UUID.
func Suffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:SuffixLen]
}

