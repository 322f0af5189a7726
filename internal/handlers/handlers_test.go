package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/asmraihan/fluidiy-lab-app/internal/auth"
	"github.com/asmraihan/fluidiy-lab-app/internal/inference"
	"github.com/asmraihan/fluidiy-lab-app/internal/repository"
	"github.com/asmraihan/fluidiy-lab-app/internal/token"
	"github.com/asmraihan/fluidiy-lab-app/internal/usecase"
)

const testSecret = "test-secret"

type memUserRepo struct {
	users  map[string]*repository.User
	nextID int64
}

func (m *memUserRepo) CreateUser(ctx context.Context, email, passwordHash string) (*repository.User, error) {
	if _, ok := m.users[email]; ok {
		return nil, repository.ErrEmailTaken
	}
	user := &repository.User{ID: m.nextID, Email: email, PasswordHash: passwordHash}
	m.nextID++
	m.users[email] = user
	return user, nil
}

func (m *memUserRepo) FindUserByEmail(ctx context.Context, email string) (*repository.User, error) {
	if user, ok := m.users[email]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUserRepo) FindUserByID(ctx context.Context, id int64) (*repository.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memResultRepo struct {
	rows   []repository.AnalysisResult
	nextID int64
	clock  time.Time
}

func (m *memResultRepo) SaveResult(ctx context.Context, row *repository.AnalysisResult) error {
	row.ID = m.nextID
	m.nextID++
	row.CreatedAt = m.clock
	m.clock = m.clock.Add(time.Minute)
	m.rows = append(m.rows, *row)
	return nil
}

func (m *memResultRepo) ListByOwner(ctx context.Context, ownerID int64) ([]repository.AnalysisResult, error) {
	out := []repository.AnalysisResult{}
	for _, row := range m.rows {
		if row.UserID == ownerID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memResultRepo) DeleteOwned(ctx context.Context, id, ownerID int64) error {
	for i, row := range m.rows {
		if row.ID == id && row.UserID == ownerID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memResultRepo) AggregateByOwner(ctx context.Context, ownerID int64) (*repository.ResultAggregate, error) {
	agg := &repository.ResultAggregate{}
	for _, row := range m.rows {
		if row.UserID != ownerID {
			continue
		}
		agg.TotalCount++
		if agg.NewestAt.IsZero() || row.CreatedAt.After(agg.NewestAt) {
			agg.NewestAt = row.CreatedAt
		}
		if agg.OldestAt.IsZero() || row.CreatedAt.Before(agg.OldestAt) {
			agg.OldestAt = row.CreatedAt
		}
	}
	return agg, nil
}

type stubAnalyzer struct {
	result *inference.Result
	err    error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, imageRef string, imageData []byte, ownerID int64) (*inference.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	out.OwnerID = ownerID
	out.ImageRef = imageRef
	return &out, nil
}

type testEnv struct {
	router   *gin.Engine
	analyzer *stubAnalyzer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	authenticator := token.NewAuthenticator(testSecret, time.Hour)

	accounts := usecase.NewAccountUseCase(&memUserRepo{users: map[string]*repository.User{}, nextID: 1}, authenticator, logger)
	results := usecase.NewResultUseCase(&memResultRepo{nextID: 1, clock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}, nil, logger)

	analyzer := &stubAnalyzer{result: &inference.Result{
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Parameters: []inference.ParameterResult{{
			Name: "Classification", Value: "positive", Level: inference.LevelHigh,
			Unit: "%", ReferenceRange: "Confidence: 90.00%",
		}},
	}}

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, accounts, results, analyzer, auth.RequireAuth(authenticator, logger))

	return &testEnv{router: router, analyzer: analyzer}
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) signup(t *testing.T, email, password string) (int64, string) {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"email": email, "password": password})
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup failed with status %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode signup response: %v", err)
	}
	return body.User.ID, body.Token
}

func TestSignupSigninFlow(t *testing.T) {
	env := newTestEnv(t)

	userID, signed := env.signup(t, "a@x.com", "secret1")
	if userID != 1 || signed == "" {
		t.Fatalf("unexpected signup response: id=%d token=%q", userID, signed)
	}

	if resp := env.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"email": "a@x.com", "password": "secret1"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("duplicate signup: expected 400, got %d", resp.Code)
	}
	if resp := env.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{"email": "b@x.com"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", resp.Code)
	}

	if resp := env.do(t, http.MethodPost, "/api/auth/signin", "", gin.H{"email": "a@x.com", "password": "secret1"}); resp.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := env.do(t, http.MethodPost, "/api/auth/signin", "", gin.H{"email": "a@x.com", "password": "wrong"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.Code)
	}
	if resp := env.do(t, http.MethodPost, "/api/auth/signin", "", gin.H{"email": "nobody@x.com", "password": "secret1"}); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", resp.Code)
	}
}

func TestUserMeReturnsProfile(t *testing.T) {
	env := newTestEnv(t)
	_, signed := env.signup(t, "a@x.com", "secret1")

	resp := env.do(t, http.MethodGet, "/api/user/me", signed, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "a@x.com") {
		t.Fatalf("profile missing email: %s", resp.Body.String())
	}
}

func TestResultsRequireAuthentication(t *testing.T) {
	env := newTestEnv(t)

	if resp := env.do(t, http.MethodGet, "/api/results?userId=1", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp := env.do(t, http.MethodPost, "/api/results", "", gin.H{}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestResultsOwnershipScoping(t *testing.T) {
	env := newTestEnv(t)
	userA, tokenA := env.signup(t, "a@x.com", "secret1")
	userB, tokenB := env.signup(t, "b@x.com", "secret2")

	saveBody := gin.H{
		"userId": userA,
		"result": gin.H{
			"imageRef": "strip.jpg",
			"parameters": []gin.H{{
				"name": "Classification", "value": "positive",
				"level": "high", "unit": "%", "referenceRange": "Confidence: 90.00%",
			}},
		},
	}

	resp := env.do(t, http.MethodPost, "/api/results", tokenA, saveBody)
	if resp.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var saved struct {
		Success bool `json:"success"`
		Result  struct {
			ID int64 `json:"id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &saved); err != nil {
		t.Fatalf("failed to decode save response: %v", err)
	}
	if !saved.Success || saved.Result.ID == 0 {
		t.Fatalf("save did not assign an id: %s", resp.Body.String())
	}

	// Missing userId is a validation failure, not an auth one.
	if resp := env.do(t, http.MethodGet, "/api/results", tokenA, nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing userId: expected 400, got %d", resp.Code)
	}
	// A valid token for the wrong owner is rejected before the store.
	if resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/results?userId=%d", userA), tokenB, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("foreign list: expected 403, got %d", resp.Code)
	}

	// Owner B deleting A's row by matching ids under B's own scope
	// finds nothing.
	deletePath := fmt.Sprintf("/api/results/%d?userId=%d", saved.Result.ID, userB)
	if resp := env.do(t, http.MethodDelete, deletePath, tokenB, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", resp.Code)
	}

	listPath := fmt.Sprintf("/api/results?userId=%d", userA)
	if resp := env.do(t, http.MethodGet, listPath, tokenA, nil); !strings.Contains(resp.Body.String(), "positive") {
		t.Fatalf("row vanished after foreign delete: %s", resp.Body.String())
	}

	ownerDelete := fmt.Sprintf("/api/results/%d?userId=%d", saved.Result.ID, userA)
	if resp := env.do(t, http.MethodDelete, ownerDelete, tokenA, nil); resp.Code != http.StatusOK {
		t.Fatalf("owner delete: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := env.do(t, http.MethodDelete, ownerDelete, tokenA, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("repeat delete: expected 404, got %d", resp.Code)
	}
}

func TestListResultsNewestFirstOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	userID, signed := env.signup(t, "a@x.com", "secret1")

	for _, value := range []string{"first", "second"} {
		body := gin.H{
			"userId": userID,
			"result": gin.H{
				"imageRef":   value + ".jpg",
				"parameters": []gin.H{{"name": "Classification", "value": value, "level": "low", "unit": "%", "referenceRange": ""}},
			},
		}
		if resp := env.do(t, http.MethodPost, "/api/results", signed, body); resp.Code != http.StatusOK {
			t.Fatalf("save %q failed: %d", value, resp.Code)
		}
	}

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/results?userId=%d", userID), signed, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.Code)
	}

	var body struct {
		Results []inference.Result `json:"results"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(body.Results))
	}
	if body.Results[0].Parameters[0].Value != "second" || body.Results[1].Parameters[0].Value != "first" {
		t.Fatalf("results not newest first: %+v", body.Results)
	}
}

func TestHistorySummaryOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	userID, signed := env.signup(t, "a@x.com", "secret1")

	body := gin.H{
		"userId": userID,
		"result": gin.H{
			"imageRef":   "strip.jpg",
			"parameters": []gin.H{{"name": "Classification", "value": "positive", "level": "high", "unit": "%", "referenceRange": ""}},
		},
	}
	if resp := env.do(t, http.MethodPost, "/api/results", signed, body); resp.Code != http.StatusOK {
		t.Fatalf("save failed: %d", resp.Code)
	}

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/results/summary?userId=%d", userID), signed, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"total_results":1`) {
		t.Fatalf("unexpected summary body: %s", resp.Body.String())
	}
}

func buildImageUpload(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="strip.jpg"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func (e *testEnv) analyze(t *testing.T, bearer, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, formContentType := buildImageUpload(t, contentType, payload)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", formContentType)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func TestAnalyzeReturnsUnsavedResult(t *testing.T) {
	env := newTestEnv(t)
	userID, signed := env.signup(t, "a@x.com", "secret1")

	resp := env.analyze(t, signed, "image/jpeg", []byte("fake-jpeg-bytes"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Result inference.Result `json:"result"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode analyze response: %v", err)
	}
	if body.Result.ID != 0 {
		t.Fatal("analyze must not persist the result")
	}
	if body.Result.OwnerID != userID {
		t.Fatalf("expected owner %d, got %d", userID, body.Result.OwnerID)
	}
	if body.Result.ImageRef != "strip.jpg" {
		t.Fatalf("unexpected image ref: %s", body.Result.ImageRef)
	}
}

func TestAnalyzeFailureMapping(t *testing.T) {
	env := newTestEnv(t)
	_, signed := env.signup(t, "a@x.com", "secret1")

	env.analyzer.err = inference.ErrDecode
	if resp := env.analyze(t, signed, "image/jpeg", []byte("junk")); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("decode failure: expected 422, got %d", resp.Code)
	}

	env.analyzer.err = inference.ErrModelUnavailable
	if resp := env.analyze(t, signed, "image/jpeg", []byte("junk")); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("model failure: expected 503, got %d", resp.Code)
	}

	env.analyzer.err = nil
	if resp := env.analyze(t, signed, "text/plain", []byte("junk")); resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("content type: expected 415, got %d", resp.Code)
	}
}
