package calculator

import "fmt"

// IssueCode identifies a validation finding from the calculation engines.
type IssueCode string

const (
	// IssueUnassignedItem flags a line item with no assigned participants.
	IssueUnassignedItem IssueCode = "unassigned_item"

	// IssueSharesDoNotSumToOne flags a custom assignment whose shares fail
	// the sum-to-1 tolerance check.
	IssueSharesDoNotSumToOne IssueCode = "shares_do_not_sum_to_one"

	// IssueNegativeTotal flags a participant whose computed total went
	// negative.
	IssueNegativeTotal IssueCode = "negative_total"

	// IssueComputationMismatch flags distributed amounts that do not sum to
	// the expense total. This indicates an engine bug, never a user input
	// problem.
	IssueComputationMismatch IssueCode = "computation_mismatch"

	// IssueExtremePercentage flags a tax or tip percentage above the sanity
	// threshold. Advisory only.
	IssueExtremePercentage IssueCode = "extreme_percentage"
)

// Issue is a validation finding. Blocking issues prevent the caller from
// accepting the computed result; warnings accompany a valid result.
type Issue struct {
	Code     IssueCode
	Message  string
	Blocking bool
}

func (i Issue) String() string {
	kind := "warning"
	if i.Blocking {
		kind = "error"
	}
	return fmt.Sprintf("%s (%s): %s", i.Code, kind, i.Message)
}

func blocking(code IssueCode, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), Blocking: true}
}

func warning(code IssueCode, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), Blocking: false}
}

// HasBlocking reports whether any issue in the list is blocking.
func HasBlocking(issues []Issue) bool {
	for _, i := range issues {
		if i.Blocking {
			return true
		}
	}
	return false
}
