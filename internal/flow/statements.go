package flow

import (
	"strings"

	"github.com/tapflow/tapflow/internal/models"
)

// ExtractSetupStatements pulls "Even though ..." setup statements out of a
// visible model reply, used when a round starts without the directive
// carrying them. Lines may be quoted or bulleted; at most three statements
// are returned.
func ExtractSetupStatements(reply string) []string {
	var statements []string
	for _, line := range strings.Split(reply, "\n") {
		candidate := strings.TrimSpace(line)
		candidate = strings.Trim(candidate, `"'`)
		candidate = strings.TrimLeft(candidate, "-*0123456789. ")
		candidate = strings.Trim(candidate, `"'`)
		if len(candidate) < len("Even though") {
			continue
		}
		if strings.EqualFold(candidate[:len("Even though")], "Even though") {
			statements = append(statements, candidate)
			if len(statements) == models.MaxSetupStatements {
				break
			}
		}
	}
	return statements
}

// DefaultStatementOrder maps the eight tapping points onto the three setup
// statements when the director does not supply an explicit order.
func DefaultStatementOrder() []int {
	return []int{0, 1, 2, 0, 1, 2, 0, 1}
}

// ValidStatementOrder reports whether an order covers all eight points with
// statement indices in range.
func ValidStatementOrder(order []int) bool {
	if len(order) != models.NumTappingPoints {
		return false
	}
	for _, idx := range order {
		if idx < 0 || idx >= models.MaxSetupStatements {
			return false
		}
	}
	return true
}
