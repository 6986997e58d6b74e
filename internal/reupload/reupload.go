// Package reupload lets a worker discard extracted document data after a
// failed verification so the documents can be uploaded again.
package reupload

import (
	"context"
	"errors"
	"fmt"

	"docverify/internal/domain"
	"docverify/internal/metrics"
	"docverify/internal/storage/sqlite"

	"go.uber.org/zap"
)

var (
	ErrUnknownWorker = errors.New("unknown worker")
	ErrPersistence   = errors.New("failed to clear document data")
)

// InvalidActionError carries the rejected action value as received.
type InvalidActionError struct {
	Value string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid re-upload action %q", e.Value)
}

const (
	messageEducationalOnly        = "Educational document data cleared. Please re-upload the correct educational document."
	messagePersonalAndEducational = "All document data cleared. Please start over by uploading your personal document first."
)

// Gateway is the slice of the store the state machine needs. Clear
// operations must be all-or-nothing.
type Gateway interface {
	GetWorker(ctx context.Context, workerID string) (domain.WorkerDocumentState, error)
	ClearEducationalDocumentsForReupload(ctx context.Context, workerID string) error
	ClearAllDocumentsForReupload(ctx context.Context, workerID string) error
}

type Outcome struct {
	WorkerID      string
	Action        domain.ReuploadAction
	Message       string
	Cleared       map[string]bool
	PreviousState domain.WorkerState
	State         domain.WorkerState
}

type Service struct {
	gateway Gateway
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewService(gateway Gateway, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{gateway: gateway, logger: logger, metrics: m}
}

// Apply clears the data selected by action for workerID. Errors are
// *InvalidActionError, ErrUnknownWorker or ErrPersistence (wrapped); on any
// error the worker's stored state is unchanged.
func (s *Service) Apply(ctx context.Context, workerID, action string) (Outcome, error) {
	log := s.logger.With(zap.String("worker_id", workerID), zap.String("action", action))

	before, err := s.gateway.GetWorker(ctx, workerID)
	if errors.Is(err, sqlite.ErrWorkerNotFound) {
		s.metrics.Reupload(actionLabel(action), "unknown_worker")
		log.Info("re-upload for unknown worker")
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	if err != nil {
		s.metrics.Reupload(actionLabel(action), "persistence_failure")
		log.Error("re-upload worker lookup failed", zap.Error(err))
		return Outcome{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	parsed, ok := domain.ParseReuploadAction(action)
	if !ok {
		s.metrics.Reupload("invalid", "invalid_action")
		log.Info("re-upload rejected: invalid action")
		return Outcome{}, &InvalidActionError{Value: action}
	}

	previous := before.State()
	if previous != domain.StateMismatched {
		log.Warn("re-upload requested outside mismatched state", zap.String("state", string(previous)))
	}

	outcome := Outcome{
		WorkerID:      workerID,
		Action:        parsed,
		PreviousState: previous,
		State:         domain.StateAwaitingDocuments,
	}
	switch parsed {
	case domain.ActionEducationalOnly:
		err = s.gateway.ClearEducationalDocumentsForReupload(ctx, workerID)
		outcome.Message = messageEducationalOnly
		outcome.Cleared = map[string]bool{"educational": true, "personal": false}
	case domain.ActionPersonalAndEducational:
		err = s.gateway.ClearAllDocumentsForReupload(ctx, workerID)
		outcome.Message = messagePersonalAndEducational
		outcome.Cleared = map[string]bool{"educational": true, "personal": true, "experience": true, "voice_sessions": true}
	}
	if errors.Is(err, sqlite.ErrWorkerNotFound) {
		s.metrics.Reupload(string(parsed), "unknown_worker")
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}
	if err != nil {
		s.metrics.Reupload(string(parsed), "persistence_failure")
		log.Error("re-upload clear failed", zap.Error(err))
		return Outcome{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.metrics.Reupload(string(parsed), "ok")
	log.Info("re-upload cleared documents",
		zap.String("previous_state", string(previous)),
		zap.String("state", string(outcome.State)),
	)
	return outcome, nil
}

// actionLabel keeps metric label values inside the closed action set.
func actionLabel(action string) string {
	if parsed, ok := domain.ParseReuploadAction(action); ok {
		return string(parsed)
	}
	return "invalid"
}
