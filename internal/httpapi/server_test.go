package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"docverify/internal/domain"
	"docverify/internal/extract"
	"docverify/internal/integrations/llm"
	"docverify/internal/metrics"
	"docverify/internal/pipeline"
	"docverify/internal/reupload"
	"docverify/internal/storage/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	personal    map[string]any
	educational map[string]any
	err         error
}

func (f *fakeCompleter) ExtractJSON(_ context.Context, systemPrompt, _ string) (llm.Result, error) {
	if f.err != nil {
		return llm.Result{}, f.err
	}
	if strings.Contains(systemPrompt, "CRITICAL") {
		return llm.Result{Fields: f.educational, Raw: "{}", Attempts: 1}, nil
	}
	return llm.Result{Fields: f.personal, Raw: "{}", Attempts: 1}, nil
}

type testEnv struct {
	server    *Server
	store     *sqlite.Gateway
	completer *fakeCompleter
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "httpapi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := sqlite.NewGateway(db)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := zap.NewNop()

	completer := &fakeCompleter{
		personal: map[string]any{"name": "Babu Khan", "dob": "01/12/1987", "address": "Pune", "mobile": nil},
		educational: map[string]any{
			"name": "BABU KHAN", "dob": "01-12-1987", "document_type": "marksheet",
			"qualification": "Class X", "board": "CBSE", "year_of_passing": "2003",
		},
	}
	extractor, err := extract.NewExtractor(completer, logger, m)
	require.NoError(t, err)
	processor := pipeline.NewProcessor(extractor, store, nil, logger, m)
	service := reupload.NewService(store, logger, m)

	server, err := NewServer(processor, service, store, logger, Config{LLMEnabled: true, Gatherer: reg})
	require.NoError(t, err)
	return testEnv{server: server, store: store, completer: completer}
}

func (e testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.echo.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (e testEnv) seedWorker(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.store.CreateWorker(context.Background(), id, "9876543210"))
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil, nil, zap.NewNop(), Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["llm_enabled"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorker(t, "w1")
	env.do(t, http.MethodPost, "/w1/document-reupload", `{"action":"educational_only"}`)

	rec, _ := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docverify_reuploads_total")
}

func TestCreateWorker(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodPost, "/workers", `{"mobile_number":"9876543210"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := body["worker_id"].(string)
	require.NotEmpty(t, id)

	rec, body = env.do(t, http.MethodGet, "/"+id+"/verification", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.StateAwaitingDocuments), body["state"])

	rec, _ = env.do(t, http.MethodPost, "/workers", `{"mobile_number":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentFlowVerifiesWorker(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorker(t, "w1")

	rec, body := env.do(t, http.MethodPost, "/w1/documents/personal", `{"raw_text":"GOVERNMENT OF INDIA Babu Khan"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.StateAwaitingDocuments), body["state"])
	assert.Nil(t, body["verification"])

	rec, body = env.do(t, http.MethodPost, "/w1/documents/educational", `{"raw_text":"CBSE MARKSHEET BABU KHAN"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(domain.StateVerified), body["state"])
	verification := body["verification"].(map[string]any)
	assert.Equal(t, "verified", verification["status"])
	assert.Equal(t, true, verification["name_verified"])
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "Class 10", fields["qualification"])

	rec, body = env.do(t, http.MethodGet, "/w1/verification", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "verified", body["verification_status"])
	assert.NotNil(t, body["verified_at"])
	personal := body["personal"].(map[string]any)
	assert.Equal(t, true, personal["present"])
}

func TestDocumentMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorker(t, "w1")
	env.completer.educational["dob"] = "02/12/1987"

	env.do(t, http.MethodPost, "/w1/documents/personal", `{"raw_text":"aadhaar text"}`)
	rec, body := env.do(t, http.MethodPost, "/w1/documents/educational", `{"raw_text":"marksheet text"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.StateMismatched), body["state"])
	verification := body["verification"].(map[string]any)
	assert.Equal(t, []any{"dob"}, verification["mismatched_fields"])
}

func TestDocumentErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		llmErr     error
		wantStatus int
		wantDetail string
	}{
		{name: "bad category", path: "/w1/documents/medical", body: `{"raw_text":"x"}`, wantStatus: http.StatusBadRequest, wantDetail: "Invalid category. Must be 'personal' or 'educational'. Got: medical"},
		{name: "empty text", path: "/w1/documents/personal", body: `{"raw_text":"   "}`, wantStatus: http.StatusBadRequest, wantDetail: "raw_text is required"},
		{name: "unknown worker", path: "/ghost/documents/personal", body: `{"raw_text":"x"}`, wantStatus: http.StatusNotFound, wantDetail: "Worker not found"},
		{
			name: "transport failure", path: "/w1/documents/personal", body: `{"raw_text":"x"}`,
			llmErr:     &llm.ExtractionFailure{Kind: llm.TransportFailure, Attempts: 3, Err: errors.New("connection reset")},
			wantStatus: http.StatusBadGateway, wantDetail: "Extraction failed",
		},
		{
			name: "missing credential", path: "/w1/documents/personal", body: `{"raw_text":"x"}`,
			llmErr:     &llm.ExtractionFailure{Kind: llm.MissingCredential, Err: llm.ErrMissingCredential},
			wantStatus: http.StatusServiceUnavailable, wantDetail: "Extraction is not configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.seedWorker(t, "w1")
			env.completer.err = tt.llmErr

			rec, body := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantDetail, body["detail"])
		})
	}
}

func TestDocumentFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorker(t, "w1")
	env.completer.err = &llm.ExtractionFailure{Kind: llm.MalformedResponse, Attempts: 3}

	rec, _ := env.do(t, http.MethodPost, "/w1/documents/personal", `{"raw_text":"x"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	state, err := env.store.GetWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.False(t, state.Personal.Present)
}

func TestReuploadEducationalOnly(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorker(t, "w1")
	env.do(t, http.MethodPost, "/w1/documents/personal", `{"raw_text":"aadhaar"}`)
	env.do(t, http.MethodPost, "/w1/documents/educational", `{"raw_text":"marksheet"}`)

	rec, body := env.do(t, http.MethodPost, "/w1/document-reupload", `{"action":" Educational_Only "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "educational_only", body["action"])
	assert.Equal(t, "w1", body["worker_id"])
	assert.Equal(t, "Educational document data cleared. Please re-upload the correct educational document.", body["message"])
	assert.Equal(t, map[string]any{"educational": true, "personal": false}, body["cleared_data"])

	state, err := env.store.GetWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.True(t, state.Personal.Present)
	assert.False(t, state.Educational.Present)
	assert.Equal(t, domain.StatusPending, state.VerificationStatus)
}

func TestReuploadPersonalAndEducational(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorker(t, "w1")
	env.do(t, http.MethodPost, "/w1/documents/personal", `{"raw_text":"aadhaar"}`)

	rec, body := env.do(t, http.MethodPost, "/w1/document-reupload", `{"action":"personal_and_educational"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "All document data cleared. Please start over by uploading your personal document first.", body["message"])
	assert.Equal(t, map[string]any{"educational": true, "personal": true, "experience": true, "voice_sessions": true}, body["cleared_data"])

	state, err := env.store.GetWorker(context.Background(), "w1")
	require.NoError(t, err)
	assert.False(t, state.Personal.Present)
	assert.Equal(t, domain.StateAwaitingDocuments, state.State())
}

func TestReuploadErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedWorker(t, "w1")

	rec, body := env.do(t, http.MethodPost, "/w1/document-reupload", `{"action":" Delete_Everything "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid action. Must be 'educational_only' or 'personal_and_educational'. Got: delete_everything", body["detail"])

	rec, body = env.do(t, http.MethodPost, "/ghost/document-reupload", `{"action":"educational_only"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Worker not found", body["detail"])

	rec, body = env.do(t, http.MethodPost, "/ghost/document-reupload", `{"action":"bogus"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown worker is reported before the action value")
	assert.Equal(t, "Worker not found", body["detail"])
}

type failingReuploader struct{}

func (failingReuploader) Apply(context.Context, string, string) (reupload.Outcome, error) {
	return reupload.Outcome{}, reupload.ErrPersistence
}

func TestReuploadPersistenceFailure(t *testing.T) {
	tests := []struct {
		action     string
		wantDetail string
	}{
		{action: "educational_only", wantDetail: "Failed to clear educational document data"},
		{action: " Personal_And_Educational ", wantDetail: "Failed to clear all document data"},
		{action: "", wantDetail: "Failed to clear document data"},
	}
	for _, tt := range tests {
		t.Run(tt.wantDetail, func(t *testing.T) {
			env := newTestEnv(t)
			env.server.reuploader = failingReuploader{}

			rec, body := env.do(t, http.MethodPost, "/w1/document-reupload", `{"action":"`+tt.action+`"}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.wantDetail, body["detail"])
		})
	}
}

func TestVerificationUnknownWorker(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/ghost/verification", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Worker not found", body["detail"])
}
