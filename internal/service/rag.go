package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/counsel-labs/lexrag/internal/cache"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/telemetry"
)

// NoRelevantDocumentsAnswer is returned verbatim when retrieval finds
// nothing above the similarity floor. The generative service is never
// called in that case.
const NoRelevantDocumentsAnswer = "No relevant documents found."

// ChunkSearcher is the vector-index side of retrieval.
type ChunkSearcher interface {
	QueryNearest(ctx context.Context, tenant *domain.Tenant, embedding []float32, k int, filter map[string]any) ([]*domain.ChunkMatch, error)
}

// UsageRecorder appends one usage record per successful generation.
type UsageRecorder interface {
	Record(ctx context.Context, tenant *domain.Tenant, rec *domain.UsageRecord) (string, error)
}

// QueryCacheProvider hands out the tenant-scoped answer cache.
type QueryCacheProvider interface {
	For(tenantID string) *cache.QueryCache
}

// SearchInput is a plain vector search request.
type SearchInput struct {
	QueryText      string
	NResults       int
	MinSimilarity  float64
	MetadataFilter map[string]any
}

// RagInput is a full retrieve-and-answer request.
type RagInput struct {
	QueryText      string
	Model          string
	Temperature    float32
	MaxTokens      int
	NResults       int
	MinSimilarity  float64
	ConversationID string
	History        []ChatMessage
	MetadataFilter map[string]any
}

// SourceDocument identifies one distinct document cited by an answer,
// carrying the best similarity any of its chunks achieved.
type SourceDocument struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

// UsageInfo is the token and cost accounting for one generation.
type UsageInfo struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// RagAnswer is the pipeline output. The JSON form doubles as the cache
// payload; Cached and CostWarning describe this response's delivery and
// are never persisted.
type RagAnswer struct {
	Answer          string            `json:"answer"`
	SourceDocuments []*SourceDocument `json:"source_documents"`
	ConversationID  string            `json:"conversation_id"`
	Usage           *UsageInfo        `json:"usage"`
	Cached          bool              `json:"-"`
	CostWarning     bool              `json:"-"`
}

// RagService is the retrieval-and-answer pipeline. A request runs
// quota gate, cache lookup, retrieval, scoring, prompt assembly,
// generation, usage recording and cache store, in that order, stopping
// at the first failure.
type RagService struct {
	chunks      ChunkSearcher
	embeddings  *EmbeddingService
	completions CompletionClient
	quota       *QuotaService
	usage       UsageRecorder
	caches      QueryCacheProvider
	uuids       UUIDGenerator

	defaultModel string
}

func NewRagService(
	chunks ChunkSearcher,
	embeddings *EmbeddingService,
	completions CompletionClient,
	quota *QuotaService,
	usage UsageRecorder,
	caches QueryCacheProvider,
	uuids UUIDGenerator,
	defaultModel string,
) *RagService {
	if uuids == nil {
		uuids = &DefaultUUIDGenerator{}
	}
	if defaultModel == "" {
		defaultModel = "gpt-4-turbo"
	}
	return &RagService{
		chunks:       chunks,
		embeddings:   embeddings,
		completions:  completions,
		quota:        quota,
		usage:        usage,
		caches:       caches,
		uuids:        uuids,
		defaultModel: defaultModel,
	}
}

// Search embeds the query, fetches the nearest chunks and returns those
// at or above the similarity floor, ranked in index order.
func (s *RagService) Search(ctx context.Context, tenant *domain.Tenant, input SearchInput) ([]*domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RagService.Search", telemetry.SpanAttributes{
		TenantID:  tenant.ID,
		Operation: "search",
	})
	defer span.End()

	if err := validateSearchParams(input.QueryText, input.NResults, input.MinSimilarity); err != nil {
		return nil, err
	}

	embedding, err := s.embeddings.GetOrCompute(ctx, input.QueryText)
	if err != nil {
		return nil, err
	}

	matches, err := s.chunks.QueryNearest(ctx, tenant, embedding, input.NResults, input.MetadataFilter)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageFailure, "vector query failed", err)
	}

	return FilterAndRank(matches, input.MinSimilarity), nil
}

// Answer runs the full pipeline for one question.
func (s *RagService) Answer(ctx context.Context, tenant *domain.Tenant, input RagInput) (*RagAnswer, error) {
	if err := validateRagInput(&input); err != nil {
		return nil, err
	}
	if input.Model == "" {
		input.Model = s.defaultModel
	}

	ctx, span := telemetry.StartSpan(ctx, "RagService.Answer", telemetry.SpanAttributes{
		TenantID:  tenant.ID,
		Model:     input.Model,
		Operation: "rag-search",
	})
	defer span.End()

	exceeded, reason, err := s.quota.CheckExceeded(ctx, tenant)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageFailure, "quota check failed", err)
	}
	if exceeded {
		return nil, domain.NewDomainError(domain.ErrCodeQuotaExceeded, reason)
	}

	key, err := cache.KeyFor(cacheParams(input))
	if err != nil {
		return nil, err
	}
	queryCache := s.caches.For(tenant.ID)

	if payload, ok, err := queryCache.Get(ctx, key); err != nil {
		log.Printf("warning: query cache read failed for tenant %s: %v", tenant.ID, err)
	} else if ok {
		var answer RagAnswer
		if err := json.Unmarshal(payload, &answer); err == nil {
			answer.Cached = true
			// A caller-supplied conversation id threads the cached answer
			// into that conversation; otherwise the stored id comes back
			// untouched.
			if input.ConversationID != "" {
				answer.ConversationID = input.ConversationID
			}
			return &answer, nil
		}
		log.Printf("warning: discarding undecodable cache entry %s for tenant %s", key, tenant.ID)
	}

	if input.ConversationID == "" {
		input.ConversationID = s.uuids.NewString()
	}

	embedding, err := s.embeddings.GetOrCompute(ctx, input.QueryText)
	if err != nil {
		return nil, err
	}

	matches, err := s.chunks.QueryNearest(ctx, tenant, embedding, input.NResults, input.MetadataFilter)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageFailure, "vector query failed", err)
	}

	results := FilterAndRank(matches, input.MinSimilarity)
	if len(results) == 0 {
		return &RagAnswer{
			Answer:          NoRelevantDocumentsAnswer,
			SourceDocuments: []*SourceDocument{},
			ConversationID:  input.ConversationID,
		}, nil
	}

	messages := buildPrompt(input, results)

	warning := false
	if settings, err := s.quota.GetSettings(ctx, tenant); err == nil && settings.CostWarningThreshold > 0 {
		estimate := s.quota.EstimateCost(messages, input.Model, input.MaxTokens)
		if estimate.EstimatedCost >= settings.CostWarningThreshold {
			warning = true
			log.Printf("warning: estimated cost $%.4f exceeds threshold $%.4f for tenant %s",
				estimate.EstimatedCost, settings.CostWarningThreshold, tenant.ID)
		}
	}

	completion, err := s.completions.GenerateCompletion(ctx, CompletionRequest{
		Model:       input.Model,
		Messages:    messages,
		Temperature: input.Temperature,
		MaxTokens:   input.MaxTokens,
	})
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamFailure, "generative service call failed", err)
	}

	cost := ComputeCost(completion.Model, completion.InputTokens, completion.OutputTokens)

	if _, err := s.usage.Record(ctx, tenant, &domain.UsageRecord{
		ConversationID: input.ConversationID,
		Query:          input.QueryText,
		Model:          completion.Model,
		InputTokens:    completion.InputTokens,
		OutputTokens:   completion.OutputTokens,
		TotalTokens:    completion.TotalTokens,
		Cost:           cost,
	}); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeStorageFailure, "usage record failed", err)
	}

	answer := &RagAnswer{
		Answer:          completion.Content,
		SourceDocuments: collectSources(results),
		ConversationID:  input.ConversationID,
		Usage: &UsageInfo{
			InputTokens:  completion.InputTokens,
			OutputTokens: completion.OutputTokens,
			TotalTokens:  completion.TotalTokens,
			Cost:         cost,
		},
		CostWarning: warning,
	}

	// Cache write failure only loses cache benefit; the caller already
	// paid for the generation, so the answer is returned regardless.
	if payload, err := json.Marshal(answer); err == nil {
		if err := queryCache.Put(ctx, key, payload); err != nil {
			log.Printf("warning: query cache write failed for tenant %s: %v", tenant.ID, err)
		}
	}

	return answer, nil
}

func validateSearchParams(queryText string, nResults int, minSimilarity float64) error {
	if strings.TrimSpace(queryText) == "" {
		return domain.ErrMissingQueryText
	}
	if nResults < 1 {
		return domain.ErrInvalidResultCount
	}
	if minSimilarity < 0 || minSimilarity > 1 {
		return domain.ErrInvalidMinSimilarity
	}
	return nil
}

func validateRagInput(input *RagInput) error {
	if err := validateSearchParams(input.QueryText, input.NResults, input.MinSimilarity); err != nil {
		return err
	}
	if input.Temperature < 0 || input.Temperature > 2 {
		return domain.ErrInvalidTemperature
	}
	if input.MaxTokens < 1 {
		return domain.NewDomainError(domain.ErrCodeValidation, "max_tokens must be at least 1")
	}
	return nil
}

// cacheParams lists every input field that changes the answer. The
// conversation id and history are deliberately excluded so follow-up
// requests for the same question still hit.
func cacheParams(input RagInput) map[string]any {
	return map[string]any{
		"query":           input.QueryText,
		"model":           input.Model,
		"temperature":     input.Temperature,
		"max_tokens":      input.MaxTokens,
		"n_results":       input.NResults,
		"min_similarity":  input.MinSimilarity,
		"metadata_filter": input.MetadataFilter,
	}
}

const ragSystemMessage = "You are a legal research assistant providing answers based on the " +
	"provided legal documents.\nYour responses should be comprehensive but " +
	"concise, including:\n1. A brief summary (2-3 sentences)\n2. Key legal " +
	"concepts (bullet points)\n3. Relevant case law (if mentioned)\n4. " +
	"Practical considerations (if applicable)\n5. Source attribution with " +
	"clickable links\n\n" +
	"Format your response in markdown with appropriate headers. For each " +
	"source you reference, include a clickable link using the format:\n" +
	"[Source Name](source:filename.txt)\n\n" +
	"For example, if you reference information from \"Medical Malpractice " +
	"Guide.txt\", include a link like:\n" +
	"[Medical Malpractice Guide](source:Medical Malpractice Guide.txt)\n\n" +
	"This will allow users to click directly on the source to view the " +
	"full document."

// buildPrompt assembles the chat messages: the fixed system instruction,
// any caller-supplied history, then the question with the ranked
// excerpts inlined for citation.
func buildPrompt(input RagInput, results []*domain.SearchResult) []ChatMessage {
	excerpts := make([]string, 0, len(results))
	for _, r := range results {
		excerpts = append(excerpts, fmt.Sprintf(
			"Document %d (Similarity: %.2f%%):\nSource: %s\n%s",
			r.Rank, r.Similarity*100, sourceOf(r), r.ChunkText,
		))
	}

	userPrompt := "Based on the following legal document excerpts, please provide a " +
		"concise answer to this legal question:\n\n" +
		input.QueryText + "\n\n" +
		"Document excerpts:\n" +
		"------\n" +
		strings.Join(excerpts, "\n\n") + "\n" +
		"------\n\n" +
		"Please structure your response to be clear and concise, focusing on " +
		"the most relevant information. Include clickable links to the source " +
		"documents where you reference them."

	messages := make([]ChatMessage, 0, len(input.History)+2)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: ragSystemMessage})
	messages = append(messages, input.History...)
	messages = append(messages, ChatMessage{Role: RoleUser, Content: userPrompt})
	return messages
}

// collectSources deduplicates results by source document, keeping the
// best similarity each document achieved, in first-seen order.
func collectSources(results []*domain.SearchResult) []*SourceDocument {
	best := make(map[string]*SourceDocument, len(results))
	order := make([]string, 0, len(results))

	for _, r := range results {
		source := sourceOf(r)
		existing, ok := best[source]
		if !ok {
			order = append(order, source)
			best[source] = &SourceDocument{
				Content:    titleOf(r, source),
				Metadata:   map[string]any{"filename": source},
				Similarity: r.Similarity,
			}
		} else if r.Similarity > existing.Similarity {
			existing.Similarity = r.Similarity
			existing.Content = titleOf(r, source)
		}
	}

	sources := make([]*SourceDocument, 0, len(order))
	for _, source := range order {
		sources = append(sources, best[source])
	}
	return sources
}

func sourceOf(r *domain.SearchResult) string {
	if r.Source != "" {
		return r.Source
	}
	if source, ok := r.Metadata["source"].(string); ok && source != "" {
		return source
	}
	return "Unknown Document"
}

func titleOf(r *domain.SearchResult, source string) string {
	if title, ok := r.Metadata["title"].(string); ok && title != "" {
		return title
	}
	return source
}
