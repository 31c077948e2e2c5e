package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/result"
	"judged/internal/judge/sandbox/runner"
	"judged/internal/judge/sandbox/spec"
	"judged/internal/judge/service"
	"judged/internal/judge/spj"
)

const testToken = "secret-token"

// echoEngine copies stdin to stdout so exact-match cases accept.
type echoEngine struct{}

func (echoEngine) Run(_ context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	input, err := os.ReadFile(runSpec.StdinPath)
	if err != nil {
		return result.RunResult{}, err
	}
	if err := os.WriteFile(runSpec.StdoutPath, input, 0644); err != nil {
		return result.RunResult{}, err
	}
	return result.RunResult{Status: result.StatusNormal, CPUTimeMs: 5}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	run := runner.New(echoEngine{}, 1<<20)
	mgr := spj.NewManager(spj.NewRunner(run, echoEngine{}), t.TempDir(), 4)
	workRoot := t.TempDir()
	svc := service.New(service.Config{WorkRoot: workRoot, MaxConcurrent: 2, MaxOutputBytes: 1 << 20}, run, mgr, nil)

	router := gin.New()
	router.Use(Auth(testToken))
	NewHandler(svc, "test").Register(router)
	return router, workRoot
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TestAuthRejectsBadDigestBeforeAnyWork(t *testing.T) {
	router, workRoot := newTestRouter(t)

	body := `{"src":"x","language_config":{"run":{"command":"{exe_path}"}},"max_cpu_time":1000,"max_memory":1048576,"test_case":[{"input":"1","output":"1"}]}`
	req := httptest.NewRequest(http.MethodPost, "/judge", strings.NewReader(body))
	req.Header.Set(TokenHeader, tokenDigest("wrong-token"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var resp struct {
		Err  *string     `json:"err"`
		Data interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Err == nil || *resp.Err != "TokenVerificationFailed" {
		t.Fatalf("err = %v, want TokenVerificationFailed", resp.Err)
	}

	// Rejection must happen before the orchestrator touches disk.
	entries, err := os.ReadDir(workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch directories created for an unauthenticated request: %d", len(entries))
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestPingReportsServerStatus(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/ping", nil)
	req.Header.Set(TokenHeader, tokenDigest(testToken))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Err  *string            `json:"err"`
		Data model.ServerStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Err != nil {
		t.Fatalf("err = %q, want null", *resp.Err)
	}
	if resp.Data.Action != "pong" {
		t.Fatalf("action = %q, want pong", resp.Data.Action)
	}
	if resp.Data.CPUCore <= 0 {
		t.Fatalf("cpu_core = %d", resp.Data.CPUCore)
	}
	if resp.Data.Hostname == "" {
		t.Fatal("hostname is empty")
	}
	if resp.Data.Version != "test" {
		t.Fatalf("version = %q", resp.Data.Version)
	}
}

func TestJudgeEndToEndEnvelope(t *testing.T) {
	router, _ := newTestRouter(t)

	reqBody := model.JudgeRequest{
		Src: "cat",
		LanguageConfig: model.LanguageConfig{
			Run: model.RunConfig{Command: "{exe_path}"},
		},
		MaxCPUTime: 1000,
		MaxMemory:  64 * 1024 * 1024,
		TestCases: []model.TestCase{
			{Input: "hello\n", Output: "hello\n"},
			{Input: "world\n", Output: "mismatch\n"},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/judge", strings.NewReader(string(payload)))
	req.Header.Set(TokenHeader, tokenDigest(testToken))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Err  *string                 `json:"err"`
		Data []model.ExecutionResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Err != nil {
		t.Fatalf("err = %q, want null", *resp.Err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Data))
	}
	if resp.Data[0].Result != model.ResultSuccess || resp.Data[1].Result != model.ResultWrongAnswer {
		t.Fatalf("verdicts = %v, %v", resp.Data[0].Result, resp.Data[1].Result)
	}
}

func TestJudgeInvalidRequestEnvelope(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/judge", strings.NewReader(`{"src":""}`))
	req.Header.Set(TokenHeader, tokenDigest(testToken))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Err *string `json:"err"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Err == nil || *resp.Err != "InvalidRequest" {
		t.Fatalf("err = %v, want InvalidRequest", resp.Err)
	}
}
