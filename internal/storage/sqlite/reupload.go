package sqlite

import (
	"context"
	"database/sql"
	"time"

	"docverify/internal/domain"
)

// ClearEducationalDocumentsForReupload removes the worker's educational
// documents and resets verification. Personal extraction is kept.
func ClearEducationalDocumentsForReupload(ctx context.Context, db *sql.DB, workerID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE workers SET
			educational_document_paths = NULL,
			verification_status = ?, verification_errors = NULL, verified_at = NULL,
			name_verified = 0, dob_verified = 0, updated_at = ?
		 WHERE worker_id = ?`,
		string(domain.StatusPending), time.Now().UTC(), workerID,
	)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM educational_documents WHERE worker_id = ?`, workerID); err != nil {
		return err
	}
	return tx.Commit()
}

// ClearAllDocumentsForReupload resets the worker to its freshly registered
// state: personal and educational extractions, verification, and every
// record derived from the verified identity are removed.
func ClearAllDocumentsForReupload(ctx context.Context, db *sql.DB, workerID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE workers SET
			name = NULL, dob = NULL, address = NULL,
			personal_document_path = NULL, educational_document_paths = NULL, video_url = NULL,
			personal_extracted_name = NULL, personal_extracted_dob = NULL,
			personal_extracted_address = NULL, personal_extracted_mobile = NULL,
			personal_raw_ocr_text = NULL, personal_llm_extracted_data = NULL, personal_extracted_at = NULL,
			verification_status = ?, verification_errors = NULL, verified_at = NULL,
			name_verified = 0, dob_verified = 0, updated_at = ?
		 WHERE worker_id = ?`,
		string(domain.StatusPending), time.Now().UTC(), workerID,
	)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM educational_documents WHERE worker_id = ?`,
		`DELETE FROM work_experience WHERE worker_id = ?`,
		`DELETE FROM voice_sessions WHERE worker_id = ?`,
		`DELETE FROM experience_sessions WHERE worker_id = ?`,
		`DELETE FROM cv_status WHERE worker_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, workerID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
