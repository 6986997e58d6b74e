package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"docverify/internal/domain"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func CreateWorker(ctx context.Context, db *sql.DB, workerID, mobileNumber string) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO workers (worker_id, mobile_number, verification_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		workerID, mobileNumber, string(domain.StatusPending), now, now,
	)
	return err
}

// GetWorker reads the worker row and its latest educational document inside
// one transaction so a concurrent clear is seen either fully or not at all.
func GetWorker(ctx context.Context, db *sql.DB, workerID string) (domain.WorkerDocumentState, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkerDocumentState{}, err
	}
	defer tx.Rollback()

	state, err := getWorker(ctx, tx, workerID)
	if err != nil {
		return domain.WorkerDocumentState{}, err
	}
	return state, tx.Commit()
}

func getWorker(ctx context.Context, q queryer, workerID string) (domain.WorkerDocumentState, error) {
	var (
		state                          domain.WorkerDocumentState
		status, errorsText             sql.NullString
		verifiedAt, personalAt         sql.NullTime
		pName, pDOB, pAddress, pMobile sql.NullString
		pRaw, pAudit, pPath            sql.NullString
		createdAt                      sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT worker_id, mobile_number, verification_status, verification_errors, verified_at,
		        personal_extracted_name, personal_extracted_dob, personal_extracted_address, personal_extracted_mobile,
		        personal_raw_ocr_text, personal_llm_extracted_data, personal_document_path, personal_extracted_at, created_at
		 FROM workers WHERE worker_id = ?`,
		workerID,
	).Scan(
		&state.WorkerID, &state.MobileNumber, &status, &errorsText, &verifiedAt,
		&pName, &pDOB, &pAddress, &pMobile,
		&pRaw, &pAudit, &pPath, &personalAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorkerDocumentState{}, ErrWorkerNotFound
	}
	if err != nil {
		return domain.WorkerDocumentState{}, err
	}

	state.VerificationStatus = domain.ParseVerificationStatus(status.String)
	state.VerificationErrors = errorsText.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		state.VerifiedAt = &t
	}
	if createdAt.Valid {
		state.CreatedAt = createdAt.Time
	}
	if personalAt.Valid {
		state.Personal = domain.DocumentState{
			Present:      true,
			DocumentPath: pPath.String,
			RawOCRText:   pRaw.String,
			AuditJSON:    pAudit.String,
			ExtractedAt:  personalAt.Time,
			Fields: domain.ExtractedFields{
				"name":    nullable(pName),
				"dob":     nullable(pDOB),
				"address": nullable(pAddress),
				"mobile":  nullable(pMobile),
			},
		}
	}

	educational, err := latestEducationalDocument(ctx, q, workerID)
	if err != nil {
		return domain.WorkerDocumentState{}, err
	}
	state.Educational = educational
	return state, nil
}

func latestEducationalDocument(ctx context.Context, q queryer, workerID string) (domain.DocumentState, error) {
	var (
		id                                int64
		name, dob, docType, qualification sql.NullString
		board, stream, year, school       sql.NullString
		marksType, marks, raw, audit      sql.NullString
		createdAt                         sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, extracted_name, extracted_dob, document_type, qualification, board, stream,
		        year_of_passing, school_name, marks_type, marks, raw_ocr_text, llm_extracted_data, created_at
		 FROM educational_documents WHERE worker_id = ? ORDER BY id DESC LIMIT 1`,
		workerID,
	).Scan(
		&id, &name, &dob, &docType, &qualification, &board, &stream,
		&year, &school, &marksType, &marks, &raw, &audit, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DocumentState{}, nil
	}
	if err != nil {
		return domain.DocumentState{}, err
	}
	doc := domain.DocumentState{
		DocumentID: id,
		Present:    true,
		RawOCRText: raw.String,
		AuditJSON:  audit.String,
		Fields: domain.ExtractedFields{
			"name":            nullable(name),
			"dob":             nullable(dob),
			"document_type":   nullable(docType),
			"qualification":   nullable(qualification),
			"board":           nullable(board),
			"stream":          nullable(stream),
			"year_of_passing": nullable(year),
			"school_name":     nullable(school),
			"marks_type":      nullable(marksType),
			"marks":           nullable(marks),
		},
	}
	if createdAt.Valid {
		doc.ExtractedAt = createdAt.Time
	}
	return doc, nil
}

// SavePersonalExtraction stores the personal document fields and resets the
// cross-document verification to pending.
func SavePersonalExtraction(ctx context.Context, db *sql.DB, workerID string, doc domain.DocumentState) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	f := doc.Fields
	res, err := tx.ExecContext(ctx,
		`UPDATE workers SET
			personal_extracted_name = ?, personal_extracted_dob = ?,
			personal_extracted_address = ?, personal_extracted_mobile = ?,
			personal_raw_ocr_text = ?, personal_llm_extracted_data = ?, personal_extracted_at = ?,
			personal_document_path = COALESCE(?, personal_document_path),
			name = ?, dob = ?, address = ?,
			verification_status = ?, verification_errors = NULL, verified_at = NULL,
			name_verified = 0, dob_verified = 0, updated_at = ?
		 WHERE worker_id = ?`,
		f["name"], f["dob"], f["address"], f["mobile"],
		doc.RawOCRText, doc.AuditJSON, now,
		nullIfEmpty(doc.DocumentPath),
		f["name"], f["dob"], f["address"],
		string(domain.StatusPending), now,
		workerID,
	)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveEducationalExtraction appends an educational document row and resets
// the cross-document verification to pending. It returns the new row id.
func SaveEducationalExtraction(ctx context.Context, db *sql.DB, workerID string, doc domain.DocumentState) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var paths any
	if doc.DocumentPath != "" {
		b, _ := json.Marshal([]string{doc.DocumentPath})
		paths = string(b)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE workers SET
			educational_document_paths = COALESCE(?, educational_document_paths),
			verification_status = ?, verification_errors = NULL, verified_at = NULL,
			name_verified = 0, dob_verified = 0, updated_at = ?
		 WHERE worker_id = ?`,
		paths, string(domain.StatusPending), now, workerID,
	)
	if err != nil {
		return 0, err
	}
	if err := requireRow(res); err != nil {
		return 0, err
	}

	f := doc.Fields
	res, err = tx.ExecContext(ctx,
		`INSERT INTO educational_documents (
			worker_id, document_type, qualification, board, stream, year_of_passing, school_name,
			marks_type, marks, extracted_name, extracted_dob, raw_ocr_text, llm_extracted_data,
			verification_status, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		workerID, f["document_type"], f["qualification"], f["board"], f["stream"], f["year_of_passing"], f["school_name"],
		f["marks_type"], f["marks"], f["name"], f["dob"], doc.RawOCRText, doc.AuditJSON,
		string(domain.StatusPending), now,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// SaveVerification records result against the worker and the documents it
// was computed from. ErrStaleState is returned when the personal extraction
// was replaced or the educational document is no longer the worker's latest.
func SaveVerification(ctx context.Context, db *sql.DB, workerID string, basis domain.VerificationBasis, result domain.VerificationResult, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var latest sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(id) FROM educational_documents WHERE worker_id = ?`, workerID,
	).Scan(&latest)
	if err != nil {
		return err
	}
	if !latest.Valid || latest.Int64 != basis.EducationalDocID {
		return ErrStaleState
	}

	var personalAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT personal_extracted_at FROM workers WHERE worker_id = ?`, workerID,
	).Scan(&personalAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWorkerNotFound
	}
	if err != nil {
		return err
	}
	if !personalAt.Valid || !personalAt.Time.Equal(basis.PersonalExtractedAt) {
		return ErrStaleState
	}

	var verifiedAt any
	if result.Status == domain.StatusVerified {
		verifiedAt = at.UTC()
	}
	errorsText := nullIfEmpty(result.ErrorText())

	res, err := tx.ExecContext(ctx,
		`UPDATE workers SET verification_status = ?, verification_errors = ?, verified_at = ?,
			name_verified = ?, dob_verified = ?, updated_at = ?
		 WHERE worker_id = ? AND personal_extracted_at IS NOT NULL`,
		string(result.Status), errorsText, verifiedAt,
		boolInt(result.NameVerified), boolInt(result.DOBVerified), at.UTC(),
		workerID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrStaleState
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE educational_documents SET verification_status = ?, verification_errors = ? WHERE id = ?`,
		string(result.Status), errorsText, basis.EducationalDocID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func CountDependents(ctx context.Context, db *sql.DB, workerID string) (domain.Dependents, error) {
	var d domain.Dependents
	err := db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM work_experience WHERE worker_id = ?),
			(SELECT COUNT(*) FROM voice_sessions WHERE worker_id = ?),
			(SELECT COUNT(*) FROM experience_sessions WHERE worker_id = ?)`,
		workerID, workerID, workerID,
	).Scan(&d.WorkExperience, &d.VoiceSessions, &d.ExperienceSessions)
	return d, err
}

// ListWorkers returns every worker ordered by creation time.
func ListWorkers(ctx context.Context, db *sql.DB) ([]domain.WorkerDocumentState, error) {
	ids, err := queryIDs(ctx, db, `SELECT worker_id FROM workers ORDER BY created_at, worker_id`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkerDocumentState, 0, len(ids))
	for _, id := range ids {
		state, err := GetWorker(ctx, db, id)
		if errors.Is(err, ErrWorkerNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// ListPendingComplete returns workers holding both documents whose
// verification has not been decided.
func ListPendingComplete(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryIDs(ctx, db,
		`SELECT w.worker_id FROM workers w
		 WHERE w.personal_extracted_at IS NOT NULL
		   AND COALESCE(w.verification_status, 'pending') = 'pending'
		   AND EXISTS (SELECT 1 FROM educational_documents e WHERE e.worker_id = w.worker_id)
		 ORDER BY w.worker_id`,
	)
}

func queryIDs(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWorkerNotFound
	}
	return nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
