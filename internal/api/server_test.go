package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minipass/reconciler/internal/api/dto"
	"github.com/minipass/reconciler/internal/application/operator"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

func newTestServer(repo *storage.MockRepository) *Server {
	svc := operator.NewService(repo, nil)
	return NewServer(DefaultConfig(), svc, nil)
}

func seedAttempt(t *testing.T, repo *storage.MockRepository, result storage.Result, messageID string) int64 {
	t.Helper()
	a := &storage.PaymentAttempt{
		ReceivedAt:      time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		PayerNameRaw:    "Ken Dresdell",
		AmountCents:     9800,
		Currency:        "CAD",
		Result:          result,
		SourceMessageID: messageID,
	}
	require.NoError(t, repo.RecordAttempt(a))
	return a.ID
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(storage.NewMockRepository())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestListAttempts(t *testing.T) {
	repo := storage.NewMockRepository()
	seedAttempt(t, repo, storage.ResultMatched, "<m1@bank>")
	seedAttempt(t, repo, storage.ResultNoMatch, "<m2@bank>")
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/attempts", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.AttemptListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalCount)
	assert.Len(t, resp.Attempts, 2)
	assert.Equal(t, "98.00", resp.Attempts[0].Amount)
}

func TestListAttempts_FilterByResult(t *testing.T) {
	repo := storage.NewMockRepository()
	seedAttempt(t, repo, storage.ResultMatched, "<m1@bank>")
	seedAttempt(t, repo, storage.ResultNoMatch, "<m2@bank>")
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/attempts?result=NO_MATCH", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.AttemptListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, "NO_MATCH", resp.Attempts[0].Result)
}

func TestGetAttempt_NotFound(t *testing.T) {
	server := newTestServer(storage.NewMockRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/attempts/99", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr dto.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, dto.ErrCodeNotFound, apiErr.Code)
}

func TestArchiveUnarchiveAttempt(t *testing.T) {
	repo := storage.NewMockRepository()
	id := seedAttempt(t, repo, storage.ResultNoMatch, "<m1@bank>")
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/attempts/%d/archive", id), nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.AttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Archived)

	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/attempts/%d/unarchive", id), nil)
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Archived)
}

func TestUnarchive_ConflictWhenNewerAttemptExists(t *testing.T) {
	repo := storage.NewMockRepository()
	oldID := seedAttempt(t, repo, storage.ResultNoMatch, "<m1@bank>")
	require.NoError(t, repo.SetAttemptArchived(oldID, true))
	seedAttempt(t, repo, storage.ResultMatched, "<m1@bank>")
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/attempts/%d/unarchive", oldID), nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestManualMatch(t *testing.T) {
	repo := storage.NewMockRepository()
	passportID := repo.AddPassport(&storage.Passport{OwnerName: "Ken Dresdell", AmountDueCents: 9800})
	attemptID := seedAttempt(t, repo, storage.ResultAmbiguous, "<m1@bank>")
	server := newTestServer(repo)

	body, _ := json.Marshal(dto.ManualMatchRequest{PassportID: passportID, Note: "confirmed by phone"})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/attempts/%d/match", attemptID), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.AttemptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MANUAL_PROCESSED", resp.Result)
	require.NotNil(t, resp.MatchedPassportID)
	assert.Equal(t, passportID, *resp.MatchedPassportID)

	passport, err := repo.FindPassport(passportID)
	require.NoError(t, err)
	assert.True(t, passport.Paid)
}

func TestManualMatch_ValidatesBody(t *testing.T) {
	repo := storage.NewMockRepository()
	attemptID := seedAttempt(t, repo, storage.ResultAmbiguous, "<m1@bank>")
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/attempts/%d/match", attemptID), bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualMatch_ConflictOnPaidPassport(t *testing.T) {
	repo := storage.NewMockRepository()
	paidAt := time.Now().UTC()
	passportID := repo.AddPassport(&storage.Passport{
		OwnerName:      "Ken Dresdell",
		AmountDueCents: 9800,
		Paid:           true,
		PaidAt:         &paidAt,
	})
	attemptID := seedAttempt(t, repo, storage.ResultNoMatch, "<m1@bank>")
	server := newTestServer(repo)

	body, _ := json.Marshal(dto.ManualMatchRequest{PassportID: passportID})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/attempts/%d/match", attemptID), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReopenPassport(t *testing.T) {
	repo := storage.NewMockRepository()
	passportID := repo.AddPassport(&storage.Passport{OwnerName: "Ken Dresdell", AmountDueCents: 9800})
	attemptID := seedAttempt(t, repo, storage.ResultAmbiguous, "<m1@bank>")
	require.NoError(t, repo.ManualMatch(attemptID, passportID, "confirmed", time.Now().UTC()))
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/passports/%d/reopen", passportID), nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.PassportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Paid)
}

func TestReopenPassport_ConflictWhenUnpaid(t *testing.T) {
	repo := storage.NewMockRepository()
	passportID := repo.AddPassport(&storage.Passport{OwnerName: "Ken Dresdell", AmountDueCents: 9800})
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/passports/%d/reopen", passportID), nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.AddPassport(&storage.Passport{OwnerName: "A", AmountDueCents: 9800})
	seedAttempt(t, repo, storage.ResultMatched, "<m1@bank>")
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalAttempts)
	assert.Equal(t, 1, resp.UnpaidPassports)
}

func TestListRuns(t *testing.T) {
	repo := storage.NewMockRepository()
	runID, err := repo.StartScanRun("pass-1", "payments@example.org")
	require.NoError(t, err)
	require.NoError(t, repo.CompleteScanRun(runID, 3, 2, 1, 0))
	server := newTestServer(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ScanRunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "pass-1", resp.Runs[0].PassID)
	assert.Equal(t, 3, resp.Runs[0].MessagesSeen)
}
