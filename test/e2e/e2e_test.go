//go:build e2e

package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_Auth tests API key authentication on the HTTP surface
func TestE2E_Auth(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	t.Run("missing API key returns 401", func(t *testing.T) {
		_, err := env.Get("/api/health", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("invalid API key returns 401", func(t *testing.T) {
		_, err := env.Get("/api/health", "lxr_"+strings.Repeat("0", 64))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("valid API key authenticates", func(t *testing.T) {
		resp, err := env.Get("/api/health", env.APIKey)
		require.NoError(t, err)

		var health struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &health))
		assert.Equal(t, "ok", health.Status)
	})

	t.Run("regular key cannot reach admin endpoints", func(t *testing.T) {
		_, err := env.Get("/admin/quota", env.APIKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("admin key reaches admin endpoints", func(t *testing.T) {
		_, err := env.Get("/admin/quota", env.AdminAPIKey)
		require.NoError(t, err)
	})
}

// TestE2E_DocumentLifecycle tests document ingestion and resolution
func TestE2E_DocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	t.Run("ingest document", func(t *testing.T) {
		resp, err := env.Post("/api/documents", map[string]interface{}{
			"document_id": "lease-2024.txt",
			"content": "The tenant shall pay a security deposit of two months rent. " +
				"The deposit must be returned within 30 days of lease termination. " +
				"Late payment incurs a penalty of 5 percent per month.",
			"metadata": map[string]interface{}{"title": "Residential Lease 2024"},
		}, env.APIKey)
		require.NoError(t, err)

		var result struct {
			DocumentID        string `json:"document_id"`
			ChunkCount        int    `json:"chunk_count"`
			PendingEmbeddings int    `json:"pending_embeddings"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Equal(t, "lease-2024.txt", result.DocumentID)
		assert.GreaterOrEqual(t, result.ChunkCount, 1)
		assert.Equal(t, 0, result.PendingEmbeddings)
	})

	t.Run("ingest without document ID fails", func(t *testing.T) {
		_, err := env.Post("/api/documents", map[string]interface{}{
			"content": "orphan content",
		}, env.APIKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("resolve from primary documents root", func(t *testing.T) {
		content := []byte("This agreement is governed by the laws of the state.")
		env.WriteTenantDocument("contracts/msa.txt", content)

		resp, err := env.Get("/api/documents/contracts%2Fmsa.txt", env.APIKey)
		require.NoError(t, err)

		var doc struct {
			DocumentID string `json:"document_id"`
			Filename   string `json:"filename"`
			Content    string `json:"content"`
			Location   string `json:"location"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, "contracts/msa.txt", doc.DocumentID)
		assert.Equal(t, "msa.txt", doc.Filename)
		assert.Equal(t, string(content), doc.Content)
		assert.Equal(t, "primary", doc.Location)
	})

	t.Run("resolve from cloud storage", func(t *testing.T) {
		content := []byte("Archived addendum stored only in object storage.")
		env.PutCloudDocument("addendum-7.txt", content)

		resp, err := env.Get("/api/documents/addendum-7.txt", env.APIKey)
		require.NoError(t, err)

		var doc struct {
			Content  string `json:"content"`
			Location string `json:"location"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &doc))
		assert.Equal(t, string(content), doc.Content)
		assert.Equal(t, "cloud", doc.Location)
	})

	t.Run("unknown document returns 404", func(t *testing.T) {
		_, err := env.Get("/api/documents/no-such-document.txt", env.APIKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

// TestE2E_SearchAndRag tests vector search and the RAG answer pipeline
func TestE2E_SearchAndRag(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	_, err := env.Post("/api/documents", map[string]interface{}{
		"document_id": "lease-2024.txt",
		"content": "The tenant shall pay a security deposit of two months rent. " +
			"The deposit must be returned within 30 days of lease termination.",
	}, env.APIKey)
	require.NoError(t, err)

	t.Run("search returns ranked chunks", func(t *testing.T) {
		resp, err := env.Post("/api/search", map[string]interface{}{
			"query_text": "when is the deposit returned",
			"n_results":  3,
		}, env.APIKey)
		require.NoError(t, err)

		var search struct {
			Results []struct {
				Chunk      string         `json:"chunk"`
				Metadata   map[string]any `json:"metadata"`
				Similarity float64        `json:"similarity"`
				Rank       int            `json:"rank"`
			} `json:"results"`
			TotalFound int `json:"total_found"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &search))
		require.NotEmpty(t, search.Results)
		assert.Equal(t, len(search.Results), search.TotalFound)
		assert.Equal(t, 1, search.Results[0].Rank)
		assert.Greater(t, search.Results[0].Similarity, 0.7)
		assert.Contains(t, search.Results[0].Chunk, "deposit")
	})

	t.Run("empty query fails validation", func(t *testing.T) {
		_, err := env.Post("/api/search", map[string]interface{}{
			"query_text": "",
		}, env.APIKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
	})

	var conversationID string

	t.Run("rag-search answers with sources and usage", func(t *testing.T) {
		resp, err := env.Post("/api/rag-search", map[string]interface{}{
			"query": "When must the deposit be returned?",
		}, env.APIKey)
		require.NoError(t, err)

		var rag struct {
			Answer          string `json:"answer"`
			SourceDocuments []struct {
				Content    string  `json:"content"`
				Similarity float64 `json:"similarity"`
			} `json:"source_documents"`
			ConversationID string `json:"conversation_id"`
			Usage          *struct {
				InputTokens  int     `json:"input_tokens"`
				OutputTokens int     `json:"output_tokens"`
				TotalTokens  int     `json:"total_tokens"`
				Cost         float64 `json:"cost"`
			} `json:"usage"`
			Cached bool `json:"cached"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &rag))
		assert.Equal(t, stubAnswer, rag.Answer)
		assert.NotEmpty(t, rag.SourceDocuments)
		assert.NotEmpty(t, rag.ConversationID)
		require.NotNil(t, rag.Usage)
		assert.Equal(t, 160, rag.Usage.TotalTokens)
		assert.Greater(t, rag.Usage.Cost, 0.0)
		assert.False(t, rag.Cached)

		conversationID = rag.ConversationID
	})

	t.Run("identical rag-search is served from cache", func(t *testing.T) {
		resp, err := env.Post("/api/rag-search", map[string]interface{}{
			"query": "When must the deposit be returned?",
		}, env.APIKey)
		require.NoError(t, err)

		var rag struct {
			Answer         string `json:"answer"`
			ConversationID string `json:"conversation_id"`
			Cached         bool   `json:"cached"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &rag))
		assert.Equal(t, stubAnswer, rag.Answer)
		assert.Equal(t, conversationID, rag.ConversationID)
		assert.True(t, rag.Cached)
	})

	t.Run("no relevant documents short-circuits generation", func(t *testing.T) {
		resp, err := env.Post("/api/rag-search", map[string]interface{}{
			"query":          "anything at all",
			"min_similarity": 1.0,
		}, env.APIKey)
		require.NoError(t, err)

		var rag struct {
			Answer          string        `json:"answer"`
			SourceDocuments []interface{} `json:"source_documents"`
			Usage           interface{}   `json:"usage"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &rag))
		assert.Equal(t, "No relevant documents found.", rag.Answer)
		assert.Empty(t, rag.SourceDocuments)
	})
}

// TestE2E_QuotaAndUsage tests quota enforcement and usage accounting
func TestE2E_QuotaAndUsage(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()

	_, err := env.Post("/api/documents", map[string]interface{}{
		"document_id": "policy.txt",
		"content":     "All indemnification claims must be filed within 90 days.",
	}, env.APIKey)
	require.NoError(t, err)

	t.Run("default quota settings", func(t *testing.T) {
		resp, err := env.Get("/admin/quota", env.AdminAPIKey)
		require.NoError(t, err)

		var quota struct {
			MonthlyBudget       float64 `json:"monthly_budget"`
			MaxQueriesPerMonth  int     `json:"max_queries_per_month"`
			CurrentMonthQueries int     `json:"current_month_queries"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &quota))
		assert.Equal(t, 30.0, quota.MonthlyBudget)
		assert.Equal(t, 100, quota.MaxQueriesPerMonth)
		assert.Equal(t, 0, quota.CurrentMonthQueries)
	})

	t.Run("query cap blocks further rag queries", func(t *testing.T) {
		_, err := env.Post("/admin/quota", map[string]interface{}{
			"max_queries_per_month": 1,
		}, env.AdminAPIKey)
		require.NoError(t, err)

		_, err = env.Post("/api/rag-search", map[string]interface{}{
			"query": "What is the indemnification deadline?",
		}, env.APIKey)
		require.NoError(t, err)

		_, err = env.Post("/api/rag-search", map[string]interface{}{
			"query": "A different question entirely",
		}, env.APIKey)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("usage reflects recorded queries", func(t *testing.T) {
		resp, err := env.Get("/admin/usage", env.AdminAPIKey)
		require.NoError(t, err)

		var usage struct {
			Summary struct {
				QueryCount  int     `json:"query_count"`
				TotalTokens int     `json:"total_tokens"`
				TotalCost   float64 `json:"total_cost"`
				ByModel     []struct {
					Model      string `json:"model"`
					QueryCount int    `json:"query_count"`
				} `json:"by_model"`
			} `json:"summary"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &usage))
		assert.Equal(t, 1, usage.Summary.QueryCount)
		assert.Equal(t, 160, usage.Summary.TotalTokens)
		assert.Greater(t, usage.Summary.TotalCost, 0.0)
		require.Len(t, usage.Summary.ByModel, 1)
		assert.Equal(t, "gpt-4-turbo", usage.Summary.ByModel[0].Model)
	})

	t.Run("dashboard combines quota and usage", func(t *testing.T) {
		resp, err := env.Get("/admin/dashboard", env.AdminAPIKey)
		require.NoError(t, err)

		var dashboard struct {
			Tenant string `json:"tenant"`
			Quota  struct {
				CurrentMonthQueries int `json:"current_month_queries"`
			} `json:"quota"`
			Usage struct {
				QueryCount int `json:"query_count"`
			} `json:"usage"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &dashboard))
		assert.Equal(t, "e2e-test-tenant", dashboard.Tenant)
		assert.Equal(t, 1, dashboard.Quota.CurrentMonthQueries)
		assert.Equal(t, 1, dashboard.Usage.QueryCount)
	})

	t.Run("reset clears usage and unblocks queries", func(t *testing.T) {
		_, err := env.Post("/admin/reset-usage", nil, env.AdminAPIKey)
		require.NoError(t, err)

		resp, err := env.Get("/admin/quota", env.AdminAPIKey)
		require.NoError(t, err)

		var quota struct {
			CurrentMonthQueries int `json:"current_month_queries"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &quota))
		assert.Equal(t, 0, quota.CurrentMonthQueries)

		_, err = env.Post("/api/rag-search", map[string]interface{}{
			"query": "Once more after the reset",
		}, env.APIKey)
		require.NoError(t, err)
	})
}

// TestE2E_CLIWorkflow tests the lexrag CLI against a live server
func TestE2E_CLIWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping CLI workflow in short mode")
	}

	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.Bootstrap()
	env.BuildBinaries()

	workDir := t.TempDir()

	t.Run("ingest via CLI", func(t *testing.T) {
		docPath := filepath.Join(workDir, "retainer.txt")
		content := "The retainer fee is non-refundable. Services are billed monthly against the retainer."
		require.NoError(t, os.WriteFile(docPath, []byte(content), 0o644))

		out, err := env.RunLexrag(workDir, "doc", "ingest", docPath, "--title", "Retainer Agreement")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, "Ingested retainer.txt")
	})

	t.Run("search via CLI", func(t *testing.T) {
		out, err := env.RunLexrag(workDir, "search", "retainer fee")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, "results")
		assert.Contains(t, out, "retainer.txt")
	})

	t.Run("ask via CLI", func(t *testing.T) {
		out, err := env.RunLexrag(workDir, "ask", "Is the retainer refundable?")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, stubAnswer)
		assert.Contains(t, out, "Conversation:")
	})

	t.Run("repeated ask reports cache hit", func(t *testing.T) {
		out, err := env.RunLexrag(workDir, "ask", "Is the retainer refundable?")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, "(served from cache)")
	})

	t.Run("usage via CLI requires admin key", func(t *testing.T) {
		out, err := env.RunLexrag(workDir, "usage")
		require.Error(t, err, "output: %s", out)

		out, err = env.RunLexragAdmin(workDir, "usage")
		require.NoError(t, err, "output: %s", out)
		assert.Contains(t, out, "Queries: 1")
		assert.Contains(t, out, "gpt-4-turbo")
	})
}
