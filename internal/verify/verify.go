// Package verify cross-checks identity fields between a worker's personal
// and educational documents.
package verify

import (
	"fmt"
	"strings"

	"docverify/internal/dates"
	"docverify/internal/domain"
)

// Verify compares name and dob across the two extractions. A disagreeing
// pair makes the result Mismatched even when the other pair is incomplete;
// missing values alone only ever yield Pending.
func Verify(personal, educational domain.ExtractedFields) domain.VerificationResult {
	result := domain.VerificationResult{
		MismatchedFields: []domain.MismatchField{},
		Errors:           []string{},
	}
	missing := false

	pName, pOK := personal.Get("name")
	eName, eOK := educational.Get("name")
	switch {
	case !pOK || !eOK:
		missing = true
		result.Errors = append(result.Errors, missingMessage("name", pOK, eOK))
	case NormalizeName(pName) != NormalizeName(eName):
		result.MismatchedFields = append(result.MismatchedFields, domain.MismatchName)
		result.Errors = append(result.Errors, fmt.Sprintf("name mismatch: '%s' vs '%s'", pName, eName))
	default:
		result.NameVerified = true
	}

	pDOB, pOK := personal.Get("dob")
	eDOB, eOK := educational.Get("dob")
	switch {
	case !pOK || !eOK:
		missing = true
		result.Errors = append(result.Errors, missingMessage("dob", pOK, eOK))
	case dates.Normalize(strings.TrimSpace(pDOB)) != dates.Normalize(strings.TrimSpace(eDOB)):
		result.MismatchedFields = append(result.MismatchedFields, domain.MismatchDateOfBirth)
		result.Errors = append(result.Errors, fmt.Sprintf("dob mismatch: '%s' vs '%s'", pDOB, eDOB))
	default:
		result.DOBVerified = true
	}

	switch {
	case len(result.MismatchedFields) > 0:
		result.Status = domain.StatusMismatched
	case missing:
		result.Status = domain.StatusPending
	default:
		result.Status = domain.StatusVerified
	}
	return result
}

// NormalizeName lowercases and collapses runs of whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func missingMessage(field string, personal, educational bool) string {
	switch {
	case !personal && !educational:
		return field + " missing from both documents"
	case !personal:
		return field + " missing from personal document"
	default:
		return field + " missing from educational document"
	}
}
