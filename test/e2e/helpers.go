//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/counsel-labs/lexrag/internal/api/handlers"
	"github.com/counsel-labs/lexrag/internal/cache"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/repository"
	"github.com/counsel-labs/lexrag/internal/server"
	"github.com/counsel-labs/lexrag/internal/service"
	"github.com/counsel-labs/lexrag/internal/storage"
	"github.com/counsel-labs/lexrag/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const testS3Prefix = "lexrag"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T             *testing.T
	Ctx           context.Context
	PostgresC     *testutil.PostgresContainer
	RustFSC       *testutil.RustFSContainer
	Pool          *pgxpool.Pool
	ServerURL     string
	ServerCloser  func()
	S3Client      *storage.S3Client
	BinaryDir     string
	DocumentsBase string
	Tenant        *domain.Tenant
	APIKey        string
	AdminAPIKey   string
	HTTPClient    *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, s3Client, port)

	return &E2ETestEnv{
		T:             t,
		Ctx:           ctx,
		PostgresC:     pgC,
		RustFSC:       s3C,
		Pool:          pool,
		ServerURL:     serverURL,
		ServerCloser:  serverCloser,
		S3Client:      s3Client,
		DocumentsBase: t.TempDir(),
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Bootstrap provisions a tenant with one regular and one admin API key.
// Tenants are created out of band by an operator, so this goes through
// the service layer rather than the HTTP API.
func (e *E2ETestEnv) Bootstrap() {
	tenantRepo := repository.NewTenantRepository(e.Pool)
	apiKeyRepo := repository.NewAPIKeyRepository(e.Pool)
	uuidGen := &service.DefaultUUIDGenerator{}

	tenantSvc := service.NewTenantService(tenantRepo, e.DocumentsBase)
	tenant, err := tenantSvc.Provision(e.Ctx, "e2e-test-tenant", "e2e@example.com")
	if err != nil {
		e.T.Fatalf("failed to provision tenant: %v", err)
	}
	e.Tenant = tenant

	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)
	key, err := authSvc.CreateAPIKey(e.Ctx, tenant.ID, "e2e-key", false)
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}
	e.APIKey = key

	adminKey, err := authSvc.CreateAPIKey(e.Ctx, tenant.ID, "e2e-admin-key", true)
	if err != nil {
		e.T.Fatalf("failed to create admin API key: %v", err)
	}
	e.AdminAPIKey = adminKey
}

// WriteTenantDocument places a file under the tenant's primary documents
// root so the locator can resolve it.
func (e *E2ETestEnv) WriteTenantDocument(relPath string, content []byte) string {
	p := filepath.Join(e.Tenant.DocumentsRoot, relPath)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		e.T.Fatalf("failed to create document dir: %v", err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		e.T.Fatalf("failed to write document: %v", err)
	}
	return p
}

// PutCloudDocument stores a document in S3 under the tenant's cloud key.
func (e *E2ETestEnv) PutCloudDocument(documentID string, content []byte) {
	key := fmt.Sprintf("%s/%s/documents/%s", testS3Prefix, e.Tenant.ID, documentID)
	if err := e.S3Client.PutObject(e.Ctx, key, content, "text/plain"); err != nil {
		e.T.Fatalf("failed to put cloud document: %v", err)
	}
}

// BuildBinaries builds the lexrag and lexragd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "lexrag-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "lexragd"), "./cmd/lexragd")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build lexragd: %v\n%s", err, out)
	}

	cmd = exec.Command("go", "build", "-o", filepath.Join(tmpDir, "lexrag"), "./cmd/lexrag")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build lexrag: %v\n%s", err, out)
	}
}

// RunLexrag runs the lexrag CLI with the regular API key.
func (e *E2ETestEnv) RunLexrag(workDir string, args ...string) (string, error) {
	return e.runLexragWithKey(workDir, e.APIKey, args...)
}

// RunLexragAdmin runs the lexrag CLI with the admin API key.
func (e *E2ETestEnv) RunLexragAdmin(workDir string, args ...string) (string, error) {
	return e.runLexragWithKey(workDir, e.AdminAPIKey, args...)
}

func (e *E2ETestEnv) runLexragWithKey(workDir, key string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "lexrag"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("LEXRAG_API_KEY=%s", key),
		fmt.Sprintf("LEXRAG_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data        json.RawMessage `json:"data"`
	Error       string          `json:"error,omitempty"`
	CostWarning bool            `json:"-"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, apiKey string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, apiKey)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, apiKey string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, apiKey)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, apiKey string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}
	apiResp.CostWarning = resp.Header.Get("X-Cost-Warning") == "true"

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// stubEmbeddingClient produces deterministic vectors without calling the
// upstream API. All vectors share a dominant first component, so every
// pair scores a high cosine similarity while the tail still varies per
// input text.
type stubEmbeddingClient struct{}

func (stubEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 1536)
	vec[0] = 1

	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	for i := 1; i < 16; i++ {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000) / 100000.0
	}
	return vec, nil
}

// stubCompletionClient returns a canned answer with fixed token counts.
type stubCompletionClient struct{}

const stubAnswer = "Under the lease terms, the security deposit must be returned within 30 days of termination."

func (stubCompletionClient) GenerateCompletion(ctx context.Context, req service.CompletionRequest) (*service.Completion, error) {
	return &service.Completion{
		Content:      stubAnswer,
		Model:        req.Model,
		InputTokens:  120,
		OutputTokens: 40,
		TotalTokens:  160,
	}, nil
}

// s3ObjectStoreAdapter maps the storage sentinel onto the locator's.
type s3ObjectStoreAdapter struct {
	client *storage.S3Client
}

func (a *s3ObjectStoreAdapter) GetObject(ctx context.Context, key string) ([]byte, error) {
	content, err := a.client.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, service.ErrObjectNotFound
		}
		return nil, err
	}
	return content, nil
}

// startServer starts the HTTP server with all handlers, backed by stub
// embedding and completion clients.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func()) {
	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	quotaRepo := repository.NewQuotaRepository(pool, domain.DefaultQuotaSettings())
	usageRepo := repository.NewUsageRepository(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)
	embeddingSvc := service.NewEmbeddingService(stubEmbeddingClient{})
	quotaSvc := service.NewQuotaService(quotaRepo, usageRepo)
	locatorSvc := service.NewLocatorService(&s3ObjectStoreAdapter{client: s3Client}, testS3Prefix)
	ingestSvc := service.NewIngestService(chunkRepo, embeddingSvc)

	caches := cache.NewTenantProvider(func(tenantID string) cache.Store {
		return repository.NewQueryCacheStore(pool, &domain.Tenant{ID: tenantID})
	})

	ragSvc := service.NewRagService(chunkRepo, embeddingSvc, stubCompletionClient{}, quotaSvc, usageRepo, caches, uuidGen, "gpt-4-turbo")

	cfg := server.RouterConfig{
		Authenticator:   authSvc,
		SearchHandler:   handlers.NewSearchHandler(ragSvc),
		RagHandler:      handlers.NewRagHandler(ragSvc),
		DocumentHandler: handlers.NewDocumentHandler(locatorSvc, ingestSvc),
		HealthHandler:   handlers.NewHealthHandler(pool, chunkRepo),
		AdminHandler:    handlers.NewAdminHandler(usageRepo, quotaSvc),
	}

	router := server.NewRouter(cfg)
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not become ready within %v", timeout)
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
