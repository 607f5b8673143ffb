package routes_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vocalid/voiceauth/internal/infra/config"
	httproutes "github.com/vocalid/voiceauth/internal/transport/http/routes"
)

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestPolicyEndpointSwitchesStrategy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	settings := config.VerificationSettings{
		Strategy: "security-first",
		Strategies: map[string]config.StrategySettings{
			"security-first": {Speaker: 0.65, Spoof: 0.5, Text: 0.7},
			"equal-error":    {Speaker: 0.55, Spoof: 0.6, Text: 0.6},
		},
		Multi: config.MultiPhraseSettings{PhraseCount: 3, Threshold: 0.6, SpoofCutoff: 0.8, PhrasePenalty: 0.5},
	}
	policy, err := config.BuildPolicy(settings)
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	store, err := config.NewPolicyStore(policy)
	if err != nil {
		t.Fatalf("new policy store: %v", err)
	}

	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}, Verification: settings}
	r := httproutes.Register(httproutes.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Policies: store,
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/v1/admin/policy", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var current struct {
		Strategy string `json:"strategy"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &current); err != nil {
		t.Fatalf("decode policy response: %v", err)
	}
	if current.Strategy != "security-first" {
		t.Fatalf("expected security-first active, got %s", current.Strategy)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPut, "/v1/admin/policy", strings.NewReader(`{"strategy":"equal-error"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if got := store.Current(); string(got.Strategy) != "equal-error" {
		t.Fatalf("expected equal-error after reload, got %s", got.Strategy)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPut, "/v1/admin/policy", strings.NewReader(`{"strategy":"paranoid"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for unknown strategy, got %d", w.Code)
	}
	if got := store.Current(); string(got.Strategy) != "equal-error" {
		t.Fatalf("active policy lost after rejected reload, got %s", got.Strategy)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: logger,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}
