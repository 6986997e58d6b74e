package domain

import (
	"fmt"
	"strings"
	"time"
)

type ReuploadAction string

const (
	ActionEducationalOnly        ReuploadAction = "educational_only"
	ActionPersonalAndEducational ReuploadAction = "personal_and_educational"
)

// ParseReuploadAction lowercases and trims the input before matching.
func ParseReuploadAction(s string) (ReuploadAction, bool) {
	switch ReuploadAction(strings.ToLower(strings.TrimSpace(s))) {
	case ActionEducationalOnly:
		return ActionEducationalOnly, true
	case ActionPersonalAndEducational:
		return ActionPersonalAndEducational, true
	}
	return "", false
}

type WorkerState string

const (
	StateAwaitingDocuments   WorkerState = "awaiting_documents"
	StatePendingVerification WorkerState = "pending_verification"
	StateVerified            WorkerState = "verified"
	StateMismatched          WorkerState = "mismatched"
)

type WorkerDocumentState struct {
	WorkerID           string
	MobileNumber       string
	Personal           DocumentState
	Educational        DocumentState
	VerificationStatus VerificationStatus
	VerificationErrors string
	VerifiedAt         *time.Time
	CreatedAt          time.Time
}

// State derives the lifecycle position from what is stored.
func (w WorkerDocumentState) State() WorkerState {
	if !w.Personal.Present || !w.Educational.Present {
		return StateAwaitingDocuments
	}
	switch w.VerificationStatus {
	case StatusVerified:
		return StateVerified
	case StatusMismatched:
		return StateMismatched
	default:
		return StatePendingVerification
	}
}

// VerificationBasis identifies the pair of stored extractions a verification
// result was computed from.
type VerificationBasis struct {
	PersonalExtractedAt time.Time
	EducationalDocID    int64
}

func (w WorkerDocumentState) Basis() VerificationBasis {
	return VerificationBasis{
		PersonalExtractedAt: w.Personal.ExtractedAt,
		EducationalDocID:    w.Educational.DocumentID,
	}
}

// Dependents counts rows derived from a verified identity.
type Dependents struct {
	WorkExperience     int `json:"work_experience"`
	VoiceSessions      int `json:"voice_sessions"`
	ExperienceSessions int `json:"experience_sessions"`
}

func (d Dependents) String() string {
	return fmt.Sprintf("experience=%d voice=%d interview=%d", d.WorkExperience, d.VoiceSessions, d.ExperienceSessions)
}
