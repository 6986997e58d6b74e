package sqlite

import (
	"context"
	"database/sql"
	"time"

	"docverify/internal/domain"
)

// Gateway exposes the package functions as methods so services can depend
// on narrow interfaces instead of *sql.DB.
type Gateway struct {
	DB *sql.DB
}

func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{DB: db}
}

func (g *Gateway) CreateWorker(ctx context.Context, workerID, mobileNumber string) error {
	return CreateWorker(ctx, g.DB, workerID, mobileNumber)
}

func (g *Gateway) GetWorker(ctx context.Context, workerID string) (domain.WorkerDocumentState, error) {
	return GetWorker(ctx, g.DB, workerID)
}

func (g *Gateway) SavePersonalExtraction(ctx context.Context, workerID string, doc domain.DocumentState) error {
	return SavePersonalExtraction(ctx, g.DB, workerID, doc)
}

func (g *Gateway) SaveEducationalExtraction(ctx context.Context, workerID string, doc domain.DocumentState) (int64, error) {
	return SaveEducationalExtraction(ctx, g.DB, workerID, doc)
}

func (g *Gateway) SaveVerification(ctx context.Context, workerID string, basis domain.VerificationBasis, result domain.VerificationResult, at time.Time) error {
	return SaveVerification(ctx, g.DB, workerID, basis, result, at)
}

func (g *Gateway) ClearEducationalDocumentsForReupload(ctx context.Context, workerID string) error {
	return ClearEducationalDocumentsForReupload(ctx, g.DB, workerID)
}

func (g *Gateway) ClearAllDocumentsForReupload(ctx context.Context, workerID string) error {
	return ClearAllDocumentsForReupload(ctx, g.DB, workerID)
}

func (g *Gateway) CountDependents(ctx context.Context, workerID string) (domain.Dependents, error) {
	return CountDependents(ctx, g.DB, workerID)
}

func (g *Gateway) ListWorkers(ctx context.Context) ([]domain.WorkerDocumentState, error) {
	return ListWorkers(ctx, g.DB)
}

func (g *Gateway) ListPendingComplete(ctx context.Context) ([]string, error) {
	return ListPendingComplete(ctx, g.DB)
}
