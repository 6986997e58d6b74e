package domain

import (
	"fmt"
	"strings"
)

type VerificationStatus string

const (
	StatusPending    VerificationStatus = "pending"
	StatusVerified   VerificationStatus = "verified"
	StatusMismatched VerificationStatus = "mismatched"
)

// ParseVerificationStatus maps stored values back to the closed set. Unknown
// or empty values read as pending.
func ParseVerificationStatus(s string) VerificationStatus {
	switch VerificationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusVerified:
		return StatusVerified
	case StatusMismatched:
		return StatusMismatched
	default:
		return StatusPending
	}
}

type MismatchField string

const (
	MismatchName        MismatchField = "name"
	MismatchDateOfBirth MismatchField = "dob"
)

type VerificationResult struct {
	Status           VerificationStatus `json:"status"`
	MismatchedFields []MismatchField    `json:"mismatched_fields"`
	Errors           []string           `json:"errors"`
	NameVerified     bool               `json:"name_verified"`
	DOBVerified      bool               `json:"dob_verified"`
}

func (r VerificationResult) HasMismatch(field MismatchField) bool {
	for _, f := range r.MismatchedFields {
		if f == field {
			return true
		}
	}
	return false
}

// ErrorText joins the errors for storage in a single column.
func (r VerificationResult) ErrorText() string {
	return strings.Join(r.Errors, "; ")
}

func (r VerificationResult) String() string {
	if len(r.Errors) == 0 {
		return string(r.Status)
	}
	return fmt.Sprintf("%s (%s)", r.Status, r.ErrorText())
}
