package ledger

import (
	"errors"
	"regexp"
	"strings"
)

var forbiddenFilterWords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|exec|execute|merge|call|copy)\b`)

// ValidateFilterClause accepts a single boolean predicate written by an administrator.
func ValidateFilterClause(clause string) error {
	c := strings.TrimSpace(clause)
	if c == "" {
		return nil
	}
	if strings.Contains(c, ";") || strings.Contains(c, "--") || strings.Contains(c, "/*") {
		return errors.New("filter clause must be a single predicate without comments")
	}
	if forbiddenFilterWords.MatchString(c) {
		return errors.New("filter clause may only contain a read predicate")
	}
	if strings.Count(c, "(") != strings.Count(c, ")") {
		return errors.New("filter clause has unbalanced parentheses")
	}
	return nil
}
