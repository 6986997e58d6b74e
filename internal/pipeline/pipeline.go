// Package pipeline runs OCR text through extraction, persistence and
// cross-document verification for one worker at a time.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"docverify/internal/domain"
	"docverify/internal/extract"
	"docverify/internal/metrics"
	"docverify/internal/verify"

	"go.uber.org/zap"
)

type Extractor interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) (extract.Extraction, error)
}

type Store interface {
	GetWorker(ctx context.Context, workerID string) (domain.WorkerDocumentState, error)
	SavePersonalExtraction(ctx context.Context, workerID string, doc domain.DocumentState) error
	SaveEducationalExtraction(ctx context.Context, workerID string, doc domain.DocumentState) (int64, error)
	SaveVerification(ctx context.Context, workerID string, basis domain.VerificationBasis, result domain.VerificationResult, at time.Time) error
}

type Notifier interface {
	NotifyMismatch(ctx context.Context, workerID string, result domain.VerificationResult) error
}

type Outcome struct {
	WorkerID     string
	Category     domain.DocumentCategory
	Fields       domain.ExtractedFields
	Warnings     []string
	Verification *domain.VerificationResult
	State        domain.WorkerState
}

type Processor struct {
	extractor Extractor
	store     Store
	notifier  Notifier
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewProcessor wires the pipeline. notifier may be nil.
func NewProcessor(extractor Extractor, store Store, notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		extractor: extractor,
		store:     store,
		notifier:  notifier,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// ProcessDocument extracts fields from rawText, stores them for the worker
// and verifies the worker once both documents are present. Nothing is stored
// when extraction fails.
func (p *Processor) ProcessDocument(ctx context.Context, workerID string, category domain.DocumentCategory, rawText, documentPath string) (Outcome, error) {
	if _, err := p.store.GetWorker(ctx, workerID); err != nil {
		return Outcome{}, fmt.Errorf("load worker %s: %w", workerID, err)
	}

	extraction, err := p.extractor.Extract(ctx, domain.ExtractionRequest{RawText: rawText, Category: category})
	if err != nil {
		return Outcome{}, err
	}

	doc := domain.DocumentState{
		DocumentPath: documentPath,
		Fields:       extraction.Fields,
		RawOCRText:   rawText,
		AuditJSON:    extraction.AuditJSON,
	}
	switch category {
	case domain.CategoryPersonal:
		err = p.store.SavePersonalExtraction(ctx, workerID, doc)
	case domain.CategoryEducational:
		_, err = p.store.SaveEducationalExtraction(ctx, workerID, doc)
	default:
		err = fmt.Errorf("unknown document category %q", category)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("save %s extraction for %s: %w", category, workerID, err)
	}
	p.logger.Info("extraction stored",
		zap.String("worker_id", workerID),
		zap.String("category", string(category)),
		zap.Int("warnings", len(extraction.Warnings)),
	)

	state, result, err := p.Reverify(ctx, workerID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		WorkerID:     workerID,
		Category:     category,
		Fields:       extraction.Fields,
		Warnings:     extraction.Warnings,
		Verification: result,
		State:        state.State(),
	}, nil
}

// Reverify recomputes verification from the stored extractions. The result
// is nil while either document is still missing.
func (p *Processor) Reverify(ctx context.Context, workerID string) (domain.WorkerDocumentState, *domain.VerificationResult, error) {
	state, err := p.store.GetWorker(ctx, workerID)
	if err != nil {
		return domain.WorkerDocumentState{}, nil, fmt.Errorf("load worker %s: %w", workerID, err)
	}
	if !state.Personal.Present || !state.Educational.Present {
		return state, nil, nil
	}

	result := verify.Verify(state.Personal.Fields, state.Educational.Fields)
	at := p.now()
	if err := p.store.SaveVerification(ctx, workerID, state.Basis(), result, at); err != nil {
		return domain.WorkerDocumentState{}, nil, fmt.Errorf("save verification for %s: %w", workerID, err)
	}
	p.metrics.Verification(string(result.Status))

	state.VerificationStatus = result.Status
	state.VerificationErrors = result.ErrorText()
	state.VerifiedAt = nil
	if result.Status == domain.StatusVerified {
		state.VerifiedAt = &at
	}

	log := p.logger.With(zap.String("worker_id", workerID), zap.String("status", string(result.Status)))
	switch result.Status {
	case domain.StatusMismatched:
		log.Warn("verification mismatch", zap.Strings("errors", result.Errors))
		if p.notifier != nil {
			if err := p.notifier.NotifyMismatch(ctx, workerID, result); err != nil {
				log.Error("mismatch notification failed", zap.Error(err))
			}
		}
	case domain.StatusPending:
		log.Info("verification pending", zap.Strings("errors", result.Errors))
	default:
		log.Info("verification passed")
	}
	return state, &result, nil
}
