package account_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/syncban/internal/app/features/account"
	"github.com/dalemusser/syncban/internal/app/store/audit"
	userstore "github.com/dalemusser/syncban/internal/app/store/users"
	"github.com/dalemusser/syncban/internal/app/system/auditlog"
	"github.com/dalemusser/syncban/internal/app/system/auth"
	"github.com/dalemusser/syncban/internal/app/system/ratelimit"
	"github.com/dalemusser/syncban/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type env struct {
	db      *mongo.Database
	tokens  *auth.TokenManager
	limiter *ratelimit.LoginLimiter
	router  http.Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := userstore.New(db)
	if err := users.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	tokens, err := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	limiter := ratelimit.NewLoginLimiterWithConfig(100, time.Minute, 3, time.Minute)
	t.Cleanup(limiter.Stop)

	events := audit.New(db)
	al := auditlog.New(events, zap.NewNop(), auditlog.Config{})
	h := account.NewHandler(users, tokens, limiter, al, events, zap.NewNop())
	h.BcryptCost = bcrypt.MinCost

	r := chi.NewRouter()
	r.Use(tokens.LoadUser)
	r.Mount("/api/auth", account.Routes(h))
	return &env{db: db, tokens: tokens, limiter: limiter, router: r}
}

func (e *env) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body["message"]
}

func TestRegisterLoginProfile(t *testing.T) {
	e := newEnv(t)

	rec := e.do("POST", "/api/auth/register", `{"username":"ann","email":"Ann@Example.com","password":"secret1"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do("POST", "/api/auth/login", `{"email":"ann@example.com","password":"secret1"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil || login.Token == "" {
		t.Fatalf("login: missing token in %s", rec.Body.String())
	}
	if _, err := e.tokens.Verify(login.Token); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}

	rec = e.do("GET", "/api/auth/profile", "", login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("profile leaked the password hash")
	}
	var profile struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &profile)
	if profile.Username != "ann" || profile.Email != "ann@example.com" {
		t.Errorf("unexpected profile %+v", profile)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	body := `{"username":"ann","email":"ann@example.com","password":"secret1"}`
	if rec := e.do("POST", "/api/auth/register", body, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first register: %d", rec.Code)
	}
	rec := e.do("POST", "/api/auth/register", body, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := message(t, rec); msg != "Email already exists" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestRegister_Validation(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing username", `{"email":"a@b.co","password":"secret1"}`, "Username is required."},
		{"bad email", `{"username":"a","email":"nope","password":"secret1"}`, "A valid email address is required."},
		{"short password", `{"username":"a","email":"a@b.co","password":"abc"}`, "Password must be at least 6 characters."},
		{"not json", `{`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do("POST", "/api/auth/register", tt.body, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if msg := message(t, rec); msg != tt.want {
				t.Errorf("expected %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newEnv(t)
	e.do("POST", "/api/auth/register", `{"username":"ann","email":"ann@example.com","password":"secret1"}`, "")

	for _, body := range []string{
		`{"email":"ann@example.com","password":"wrong!!"}`,
		`{"email":"nobody@example.com","password":"secret1"}`,
	} {
		rec := e.do("POST", "/api/auth/login", body, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", body, rec.Code)
		}
		if msg := message(t, rec); msg != "Invalid credentials" {
			t.Errorf("unexpected message %q", msg)
		}
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := audit.New(e.db).Count(ctx, audit.QueryFilter{Category: audit.CategoryAuth})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	// one registration plus two failures
	if n != 3 {
		t.Errorf("expected 3 audit events, got %d", n)
	}
}

func TestLogin_RateLimitedPerEmail(t *testing.T) {
	e := newEnv(t)
	body := `{"email":"ann@example.com","password":"whatever"}`
	for i := 0; i < 3; i++ {
		e.do("POST", "/api/auth/login", body, "")
	}
	rec := e.do("POST", "/api/auth/login", body, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestProfile_RequiresToken(t *testing.T) {
	e := newEnv(t)
	if rec := e.do("GET", "/api/auth/profile", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if rec := e.do("GET", "/api/auth/profile", "", "garbage"); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestHistory_NewestFirstAndOwnOnly(t *testing.T) {
	e := newEnv(t)
	e.do("POST", "/api/auth/register", `{"username":"ann","email":"ann@example.com","password":"secret1"}`, "")
	e.do("POST", "/api/auth/register", `{"username":"bob","email":"bob@example.com","password":"secret1"}`, "")
	e.do("POST", "/api/auth/login", `{"email":"ann@example.com","password":"nope!!"}`, "")
	e.do("POST", "/api/auth/login", `{"email":"bob@example.com","password":"secret1"}`, "")

	rec := e.do("POST", "/api/auth/login", `{"email":"ann@example.com","password":"secret1"}`, "")
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil || login.Token == "" {
		t.Fatalf("login failed: %s", rec.Body.String())
	}

	rec = e.do("GET", "/api/auth/history", "", login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Events []struct {
			EventType string `json:"eventType"`
			Success   bool   `json:"success"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{audit.EventLoginSuccess, audit.EventLoginFailedWrongPassword, audit.EventUserRegistered}
	if len(body.Events) != len(want) {
		t.Fatalf("got %d events, want %d: %s", len(body.Events), len(want), rec.Body.String())
	}
	for i, w := range want {
		if body.Events[i].EventType != w {
			t.Errorf("event %d = %q, want %q", i, body.Events[i].EventType, w)
		}
	}
	if strings.Contains(rec.Body.String(), "userId") {
		t.Error("history exposed user ids")
	}

	if rec := e.do("GET", "/api/auth/history", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous history: expected 401, got %d", rec.Code)
	}
}
