package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/infra/memory"
)

const testPassword = "correct-horse"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	core       *app.Core
	server     *Server
	router     *gin.Engine
	admin      domain.Identity
	client     domain.Client
	batch      domain.Batch
	assessment domain.Assessment
	question   domain.Question
	studentID  string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	repos.Sessions = memory.NewSessionStore(0)
	core := app.New(repos, nil)
	if opts.Secret == nil {
		opts.Secret = []byte("test-secret")
	}
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		core:  core,
		admin: domain.Identity{SessionID: "root", UserID: "root", Role: domain.RoleAdmin},
	}
	h.server = NewServer(core, opts)
	h.router = h.server.Router()
	return h
}

// classroom seeds a client with a tutor, a student in a batch and a published
// assessment holding one theory question.
func (h *harness) classroom() {
	h.t.Helper()
	now := time.Now().UTC()
	var err error
	h.client, err = h.core.Tenants.CreateClient(h.ctx, h.admin, app.NewClient{
		Name: "acme",
		Config: domain.ClientConfig{
			ClientType:      domain.ClientCollege,
			Plan:            domain.PlanPremium,
			ContractEndDate: now.AddDate(1, 0, 0),
			MaxLicences:     10,
			PrimaryEmail:    "ops@acme.example.com",
		},
	})
	if err != nil {
		h.t.Fatalf("create client: %v", err)
	}
	h.provision(domain.RoleTutor, "tutor@acme.example.com")
	h.studentID = h.provision(domain.RoleStudent, "student@acme.example.com")

	tutor, err := h.core.Identity.Authenticate(h.ctx, app.Credentials{Email: "tutor@acme.example.com", Password: testPassword})
	if err != nil {
		h.t.Fatalf("tutor login: %v", err)
	}
	h.batch, err = h.core.Tenants.CreateBatch(h.ctx, tutor, app.NewBatch{
		Name: "Spring", ClientID: h.client.ID, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 3, 0),
	})
	if err != nil {
		h.t.Fatalf("create batch: %v", err)
	}
	if _, err := h.core.Tenants.AssignUserToBatch(h.ctx, tutor, h.batch.ID, h.studentID); err != nil {
		h.t.Fatalf("assign batch: %v", err)
	}
	h.question, err = h.core.Catalog.CreateQuestion(h.ctx, tutor, app.QuestionDraft{
		Type:   domain.QuestionTheory,
		Text:   "Explain goroutines",
		Config: domain.TheoryConfig{Difficulty: domain.DifficultyMedium, WordLimit: 200},
	})
	if err != nil {
		h.t.Fatalf("create question: %v", err)
	}
	a, err := h.core.Assessments.ComposeAssessment(h.ctx, tutor, app.NewAssessment{
		ClientID:    h.client.ID,
		BatchID:     h.batch.ID,
		Title:       "Concurrency",
		QuestionIDs: []string{h.question.ID},
		StartDate:   now.Add(-time.Hour),
		TargetDate:  now.Add(24 * time.Hour),
	})
	if err != nil {
		h.t.Fatalf("compose: %v", err)
	}
	if h.assessment, err = h.core.Assessments.Publish(h.ctx, tutor, a.ID); err != nil {
		h.t.Fatalf("publish: %v", err)
	}
}

func (h *harness) provision(role domain.Role, email string) string {
	h.t.Helper()
	u, err := h.core.Identity.ProvisionUser(h.ctx, h.admin, app.NewUser{Email: email, Password: testPassword, Role: role})
	if err != nil {
		h.t.Fatalf("provision %s: %v", email, err)
	}
	if _, err := h.core.Tenants.AddUserToClient(h.ctx, h.admin, h.client.ID, u.ID); err != nil {
		h.t.Fatalf("add %s to client: %v", email, err)
	}
	return u.ID
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(email string) string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": testPassword})
	if rec.Code != http.StatusOK {
		h.t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decode(h.t, rec, &resp)
	return resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, Options{})
	if rec := h.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if rec := h.do(http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t, Options{})
	if rec := h.do(http.MethodGet, "/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := h.do(http.MethodGet, "/me", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	h := newHarness(t, Options{})
	h.classroom()
	token := h.login("student@acme.example.com")

	rec := h.do(http.MethodGet, "/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d", rec.Code)
	}
	var id domain.Identity
	decode(t, rec, &id)
	if id.Role != domain.RoleStudent || id.ClientID != h.client.ID {
		t.Fatalf("unexpected identity %+v", id)
	}

	if rec := h.do(http.MethodPost, "/auth/logout", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status %d", rec.Code)
	}
	if rec := h.do(http.MethodGet, "/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestDeactivatedUserTokenStopsWorking(t *testing.T) {
	h := newHarness(t, Options{})
	h.classroom()
	token := h.login("student@acme.example.com")
	if rec := h.do(http.MethodGet, "/me", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("me status %d", rec.Code)
	}
	if err := h.core.Identity.DeactivateUser(h.ctx, h.admin, h.studentID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if rec := h.do(http.MethodGet, "/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated user, got %d", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h := newHarness(t, Options{})
	h.classroom()
	rec := h.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "tutor@acme.example.com", "password": "nope-nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginIsRateLimited(t *testing.T) {
	h := newHarness(t, Options{LoginRate: 0.001, LoginBurst: 2})
	creds := map[string]string{"email": "nobody@acme.example.com", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		if rec := h.do(http.MethodPost, "/auth/login", "", creds); rec.Code == http.StatusTooManyRequests {
			t.Fatalf("attempt %d limited too early", i)
		}
	}
	if rec := h.do(http.MethodPost, "/auth/login", "", creds); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestStudentCannotProvisionUsers(t *testing.T) {
	h := newHarness(t, Options{})
	h.classroom()
	token := h.login("student@acme.example.com")
	rec := h.do(http.MethodPost, "/users", token, map[string]string{
		"email": "x@acme.example.com", "password": testPassword, "role": "student",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body errorBody
	decode(t, rec, &body)
	if body.Kind != "role" {
		t.Fatalf("expected role kind, got %+v", body)
	}
}

func TestCreateQuestionDecodesConfig(t *testing.T) {
	h := newHarness(t, Options{})
	h.classroom()
	token := h.login("tutor@acme.example.com")

	rec := h.do(http.MethodPost, "/questions", token, map[string]any{
		"type":          "mcq_single",
		"question_text": "Which keyword starts a goroutine?",
		"tags":          []string{"Go"},
		"additional_config": map[string]any{
			"options":        []string{"go", "async", "spawn"},
			"correct_answer": 0,
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d body %s", rec.Code, rec.Body.String())
	}
	var q domain.Question
	decode(t, rec, &q)
	cfg, ok := q.Config.(domain.MCQSingleConfig)
	if !ok || len(cfg.Options) != 3 {
		t.Fatalf("unexpected config %#v", q.Config)
	}

	rec = h.do(http.MethodPost, "/questions", token, map[string]any{
		"type":              "mcq_single",
		"question_text":     "Broken",
		"additional_config": map[string]any{"options": []string{"only"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid config, got %d", rec.Code)
	}

	rec = h.do(http.MethodGet, "/questions?tag=go", token, nil)
	var list listResponse[domain.Question]
	decode(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != q.ID {
		t.Fatalf("expected tagged question in listing, got %+v", list.Items)
	}
}

func TestSubmitGradeAndScore(t *testing.T) {
	h := newHarness(t, Options{})
	h.classroom()
	student := h.login("student@acme.example.com")
	tutor := h.login("tutor@acme.example.com")

	rec := h.do(http.MethodPut, "/assessments/"+h.assessment.ID+"/submission", student, map[string]any{
		"answers": map[string]any{h.question.ID: map[string]string{"text": "lightweight threads"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status %d body %s", rec.Code, rec.Body.String())
	}
	var sub domain.Submission
	decode(t, rec, &sub)

	rec = h.do(http.MethodGet, "/submissions/"+sub.ID+"/score", student, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before grading, got %d", rec.Code)
	}

	rec = h.do(http.MethodPost, "/grades", tutor, map[string]any{
		"submission_id":           sub.ID,
		"question_id":             h.question.ID,
		"completeness_percentage": 100,
		"quality_percentage":      80,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("grade status %d body %s", rec.Code, rec.Body.String())
	}

	rec = h.do(http.MethodGet, "/submissions/"+sub.ID+"/score", student, nil)
	var score scoreResponse
	decode(t, rec, &score)
	if score.Score != 80 || score.Mode != "final" {
		t.Fatalf("unexpected score %+v", score)
	}

	rec = h.do(http.MethodGet, "/assessments/"+h.assessment.ID+"/report.xlsx", tutor, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("report export status %d type %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = h.do(http.MethodGet, "/submissions/"+sub.ID+"/scorecard.pdf", student, nil)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("scorecard status %d", rec.Code)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError(domain.FieldError{Field: "x", Error: "bad"}), http.StatusBadRequest},
		{domain.NewError(domain.ErrRole, "no"), http.StatusForbidden},
		{domain.NewError(domain.ErrAuth, "no"), http.StatusForbidden},
		{domain.NewError(domain.ErrNotFound, "gone"), http.StatusNotFound},
		{domain.NewError(domain.ErrCapacity, "full"), http.StatusUnprocessableEntity},
		{domain.NewError(domain.ErrImmutable, "frozen"), http.StatusConflict},
		{domain.NewError(domain.ErrIncomplete, "pending"), http.StatusConflict},
		{domain.ErrVersionConflict, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, _ := statusOf(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issuer := NewTokenIssuer([]byte("k"), time.Minute)
	base := time.Now()
	issuer.now = func() time.Time { return base }
	token, _, err := issuer.Issue(domain.Identity{SessionID: "s1", UserID: "u1", Role: domain.RoleTutor})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if sid, err := issuer.SessionID(token); err != nil || sid != "s1" {
		t.Fatalf("expected s1, got %q %v", sid, err)
	}
	issuer.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := issuer.SessionID(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	other := NewTokenIssuer([]byte("other"), time.Minute)
	if _, err := other.SessionID(token); err == nil {
		t.Fatalf("expected token signed with another key to be rejected")
	}
}
