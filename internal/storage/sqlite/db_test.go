package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"docverify/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "docverify-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func personalDoc() domain.DocumentState {
	return domain.DocumentState{
		RawOCRText:   "GOVERNMENT OF INDIA Babu Khan DOB 01/12/1987",
		AuditJSON:    `{"name":"Babu Khan","dob":"01/12/1987"}`,
		DocumentPath: "uploads/w1/aadhaar.jpg",
		Fields: domain.ExtractedFields{
			"name":    domain.StringPtr("Babu Khan"),
			"dob":     domain.StringPtr("01-12-1987"),
			"address": domain.StringPtr("12 MG Road, Pune"),
			"mobile":  nil,
		},
	}
}

func educationalDoc(dob string) domain.DocumentState {
	return domain.DocumentState{
		RawOCRText: "CBSE MARKSHEET BABU KHAN",
		AuditJSON:  `{"name":"BABU KHAN"}`,
		Fields: domain.ExtractedFields{
			"name":            domain.StringPtr("BABU KHAN"),
			"dob":             domain.StringPtr(dob),
			"document_type":   domain.StringPtr("marksheet"),
			"qualification":   domain.StringPtr("Class 10"),
			"board":           domain.StringPtr("CBSE"),
			"stream":          nil,
			"year_of_passing": domain.StringPtr("2003"),
			"school_name":     domain.StringPtr("ST DON BOSCO COLLEGE"),
			"marks_type":      domain.StringPtr("CGPA"),
			"marks":           domain.StringPtr("7.4 CGPA"),
		},
	}
}

// seedWorker creates a worker with both documents, a stored verification and
// one row in every dependent table.
func seedWorker(t *testing.T, db *sql.DB, workerID string, status domain.VerificationStatus) int64 {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, CreateWorker(ctx, db, workerID, "9876543210"))
	require.NoError(t, SavePersonalExtraction(ctx, db, workerID, personalDoc()))
	docID, err := SaveEducationalExtraction(ctx, db, workerID, educationalDoc("01-12-1987"))
	require.NoError(t, err)

	result := domain.VerificationResult{Status: status}
	if status == domain.StatusMismatched {
		result.MismatchedFields = []domain.MismatchField{domain.MismatchDateOfBirth}
		result.Errors = []string{"dob mismatch: '01-12-1987' vs '02-12-1987'"}
		result.NameVerified = true
	}
	state, err := GetWorker(ctx, db, workerID)
	require.NoError(t, err)
	require.Equal(t, docID, state.Educational.DocumentID)
	require.NoError(t, SaveVerification(ctx, db, workerID, state.Basis(), result, time.Now()))

	_, err = db.Exec(`INSERT INTO work_experience (worker_id, primary_skill, experience_years) VALUES (?, 'Electrician', 4)`, workerID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO voice_sessions (call_id, worker_id, phone_number, transcript) VALUES (?, ?, '9876543210', 'hello')`, "call-"+workerID, workerID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO experience_sessions (session_id, worker_id, raw_conversation) VALUES (?, ?, '[]')`, "sess-"+workerID, workerID)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO cv_status (worker_id, has_cv) VALUES (?, 1)`, workerID)
	require.NoError(t, err)
	return docID
}

func TestInitDBRecordsMigrations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	applied, err := AppliedMigrations(ctx, db)
	require.NoError(t, err)
	require.Len(t, applied, len(migrations))
	for i, m := range migrations {
		assert.Equal(t, m.name, applied[i].Name)
		assert.False(t, applied[i].AppliedAt.IsZero())
	}

	// Running again is a no-op.
	require.NoError(t, Migrate(ctx, db))
	again, err := AppliedMigrations(ctx, db)
	require.NoError(t, err)
	assert.Len(t, again, len(migrations))
}

func TestInitDBAddsVerificationColumns(t *testing.T) {
	db := newTestDB(t)

	for _, c := range []struct{ table, column string }{
		{"workers", "verification_status"},
		{"workers", "personal_llm_extracted_data"},
		{"educational_documents", "llm_extracted_data"},
		{"educational_documents", "extracted_dob"},
	} {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "%s.%s", c.table, c.column)
	}
}

func TestMigrateToleratesPreexistingColumn(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "legacy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, initSchema(ctx, tx))
	_, err = tx.Exec(`ALTER TABLE workers ADD COLUMN verification_status TEXT DEFAULT 'pending'`)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.NoError(t, Migrate(ctx, db))
}

func TestGetWorkerUnknown(t *testing.T) {
	db := newTestDB(t)
	_, err := GetWorker(context.Background(), db, "missing")
	assert.ErrorIs(t, err, ErrWorkerNotFound)
}

func TestFreshWorkerAwaitsDocuments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, CreateWorker(ctx, db, "w1", "9876543210"))

	state, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.Equal(t, "9876543210", state.MobileNumber)
	assert.False(t, state.Personal.Present)
	assert.False(t, state.Educational.Present)
	assert.Equal(t, domain.StatusPending, state.VerificationStatus)
	assert.Equal(t, domain.StateAwaitingDocuments, state.State())
}

func TestSaveExtractionsAndVerification(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	docID := seedWorker(t, db, "w1", domain.StatusVerified)

	state, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.True(t, state.Personal.Present)
	assert.Equal(t, "Babu Khan", state.Personal.Fields.Value("name"))
	assert.Nil(t, state.Personal.Fields["mobile"])
	assert.Equal(t, "uploads/w1/aadhaar.jpg", state.Personal.DocumentPath)
	assert.Contains(t, state.Personal.AuditJSON, "01/12/1987")

	assert.True(t, state.Educational.Present)
	assert.Equal(t, docID, state.Educational.DocumentID)
	assert.Equal(t, "Class 10", state.Educational.Fields.Value("qualification"))
	assert.Nil(t, state.Educational.Fields["stream"])
	assert.Len(t, state.Educational.Fields, len(domain.CategoryEducational.Fields()))

	assert.Equal(t, domain.StatusVerified, state.VerificationStatus)
	require.NotNil(t, state.VerifiedAt)
	assert.Equal(t, domain.StateVerified, state.State())

	var profileName string
	require.NoError(t, db.QueryRow(`SELECT name FROM workers WHERE worker_id = 'w1'`).Scan(&profileName))
	assert.Equal(t, "Babu Khan", profileName)
}

func TestNewExtractionResetsVerification(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusVerified)

	_, err := SaveEducationalExtraction(ctx, db, "w1", educationalDoc("02-12-1987"))
	require.NoError(t, err)

	state, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, state.VerificationStatus)
	assert.Nil(t, state.VerifiedAt)
	assert.Equal(t, "02-12-1987", state.Educational.Fields.Value("dob"))
	assert.Equal(t, domain.StatePendingVerification, state.State())
}

func TestSaveVerificationRejectsStaleDocument(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusPending)
	before, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)

	_, err = SaveEducationalExtraction(ctx, db, "w1", educationalDoc("02-12-1987"))
	require.NoError(t, err)

	err = SaveVerification(ctx, db, "w1", before.Basis(), domain.VerificationResult{Status: domain.StatusVerified}, time.Now())
	assert.ErrorIs(t, err, ErrStaleState)

	require.NoError(t, ClearEducationalDocumentsForReupload(ctx, db, "w1"))
	err = SaveVerification(ctx, db, "w1", before.Basis(), domain.VerificationResult{Status: domain.StatusVerified}, time.Now())
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestSaveVerificationRejectsReplacedPersonalDocument(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusPending)
	before, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)

	replacement := personalDoc()
	replacement.Fields["name"] = domain.StringPtr("Someone Else")
	require.NoError(t, SavePersonalExtraction(ctx, db, "w1", replacement))

	err = SaveVerification(ctx, db, "w1", before.Basis(), domain.VerificationResult{
		Status: domain.StatusVerified, NameVerified: true, DOBVerified: true,
	}, time.Now())
	assert.ErrorIs(t, err, ErrStaleState)

	after, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.Equal(t, "Someone Else", after.Personal.Fields.Value("name"))
	assert.Equal(t, domain.StatusPending, after.VerificationStatus)
	assert.Nil(t, after.VerifiedAt)

	require.NoError(t, SaveVerification(ctx, db, "w1", after.Basis(), domain.VerificationResult{
		Status: domain.StatusMismatched, MismatchedFields: []domain.MismatchField{domain.MismatchName},
	}, time.Now()))
}

func TestSaveVerificationRejectsClearedPersonalDocument(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusPending)
	before, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)

	require.NoError(t, ClearAllDocumentsForReupload(ctx, db, "w1"))
	err = SaveVerification(ctx, db, "w1", before.Basis(), domain.VerificationResult{Status: domain.StatusVerified}, time.Now())
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestMismatchedVerificationStoresErrors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusMismatched)

	state, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMismatched, state.VerificationStatus)
	assert.Nil(t, state.VerifiedAt)
	assert.Contains(t, state.VerificationErrors, "dob mismatch")

	var nameVerified, dobVerified int
	var docStatus string
	require.NoError(t, db.QueryRow(`SELECT name_verified, dob_verified FROM workers WHERE worker_id = 'w1'`).Scan(&nameVerified, &dobVerified))
	require.NoError(t, db.QueryRow(`SELECT verification_status FROM educational_documents WHERE worker_id = 'w1'`).Scan(&docStatus))
	assert.Equal(t, 1, nameVerified)
	assert.Equal(t, 0, dobVerified)
	assert.Equal(t, "mismatched", docStatus)
}

func TestClearEducationalKeepsPersonal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusMismatched)

	require.NoError(t, ClearEducationalDocumentsForReupload(ctx, db, "w1"))

	state, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.True(t, state.Personal.Present)
	assert.Equal(t, "Babu Khan", state.Personal.Fields.Value("name"))
	assert.False(t, state.Educational.Present)
	assert.Equal(t, domain.StatusPending, state.VerificationStatus)
	assert.Empty(t, state.VerificationErrors)
	assert.Equal(t, domain.StateAwaitingDocuments, state.State())

	deps, err := CountDependents(ctx, db, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.Dependents{WorkExperience: 1, VoiceSessions: 1, ExperienceSessions: 1}, deps)
}

func TestClearAllRemovesEverything(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusMismatched)
	seedWorker(t, db, "w2", domain.StatusMismatched)

	require.NoError(t, ClearAllDocumentsForReupload(ctx, db, "w1"))

	state, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.False(t, state.Personal.Present)
	assert.False(t, state.Educational.Present)
	assert.Equal(t, "9876543210", state.MobileNumber)
	assert.Equal(t, domain.StatusPending, state.VerificationStatus)

	deps, err := CountDependents(ctx, db, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.Dependents{}, deps)

	var profileName sql.NullString
	require.NoError(t, db.QueryRow(`SELECT name FROM workers WHERE worker_id = 'w1'`).Scan(&profileName))
	assert.False(t, profileName.Valid)

	var cvRows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM cv_status WHERE worker_id = 'w1'`).Scan(&cvRows))
	assert.Zero(t, cvRows)

	// Other workers are untouched.
	other, err := GetWorker(ctx, db, "w2")
	require.NoError(t, err)
	assert.Equal(t, domain.StateMismatched, other.State())
	otherDeps, err := CountDependents(ctx, db, "w2")
	require.NoError(t, err)
	assert.Equal(t, 1, otherDeps.VoiceSessions)
}

func TestClearUnknownWorker(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	assert.ErrorIs(t, ClearEducationalDocumentsForReupload(ctx, db, "nope"), ErrWorkerNotFound)
	assert.ErrorIs(t, ClearAllDocumentsForReupload(ctx, db, "nope"), ErrWorkerNotFound)
}

func TestClearAllIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "w1", domain.StatusMismatched)

	// A trigger that aborts the voice_sessions delete makes the transaction
	// fail halfway through.
	_, err := db.Exec(`CREATE TRIGGER block_voice_delete BEFORE DELETE ON voice_sessions
		BEGIN SELECT RAISE(ABORT, 'voice sessions locked'); END`)
	require.NoError(t, err)

	err = ClearAllDocumentsForReupload(ctx, db, "w1")
	require.Error(t, err)

	state, err := GetWorker(ctx, db, "w1")
	require.NoError(t, err)
	assert.True(t, state.Personal.Present)
	assert.True(t, state.Educational.Present)
	assert.Equal(t, domain.StatusMismatched, state.VerificationStatus)
	deps, err := CountDependents(ctx, db, "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, deps.WorkExperience)
}

func TestListPendingComplete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedWorker(t, db, "verified", domain.StatusVerified)
	seedWorker(t, db, "pending", domain.StatusPending)
	require.NoError(t, CreateWorker(ctx, db, "fresh", "1"))
	require.NoError(t, SavePersonalExtraction(ctx, db, "fresh", personalDoc()))

	ids, err := ListPendingComplete(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"pending"}, ids)

	all, err := ListWorkers(ctx, db)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGatewayDelegates(t *testing.T) {
	db := newTestDB(t)
	g := NewGateway(db)
	ctx := context.Background()

	require.NoError(t, g.CreateWorker(ctx, "w1", "1"))
	require.NoError(t, g.SavePersonalExtraction(ctx, "w1", personalDoc()))
	state, err := g.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, state.Personal.Present)
	require.NoError(t, g.ClearAllDocumentsForReupload(ctx, "w1"))
	state, err = g.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, state.Personal.Present)
}
