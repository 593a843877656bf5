package helpers

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID returns a fresh UUID, used to tag a malhtool invocation's
// log lines with a correlation id.
func GenerateUUID() string {
	return uuid.New().String()
}

// StripQuotes removes a single matching pair of surrounding quotes from a
// tuple line read from an insert input file, so a tuple like
// "alice,30,sydney" can be quoted as a whole to protect it from shell
// word-splitting without the quotes becoming part of the first attribute.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// TimeNow returns the current time as a string, used to timestamp
// malhtool's stats output.
func TimeNow() string {
	return time.Now().Format(time.RFC3339)
}
