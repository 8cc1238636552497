package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// RagRequest represents the rag-search API request.
type RagRequest struct {
	Query          string   `json:"query"`
	Model          string   `json:"model,omitempty"`
	Temperature    float32  `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	NResults       int      `json:"n_results,omitempty"`
	MinSimilarity  *float64 `json:"min_similarity,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

// SourceDocument is one cited source in a RAG answer.
type SourceDocument struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
}

// UsageInfo is the token and cost accounting for one answer.
type UsageInfo struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost"`
}

// RagResponse represents the rag-search API response.
type RagResponse struct {
	Answer          string           `json:"answer"`
	SourceDocuments []SourceDocument `json:"source_documents"`
	ConversationID  string           `json:"conversation_id"`
	Usage           *UsageInfo       `json:"usage"`
	Cached          bool             `json:"cached"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		model          string
		temperature    float32
		maxTokens      int
		nResults       int
		minSimilarity  float64
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question over the document corpus",
		Long:  "Runs the full retrieval-augmented pipeline and prints the generated answer with its sources.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			var minSim *float64
			if cmd.Flags().Changed("min-similarity") {
				minSim = &minSimilarity
			}
			req := RagRequest{
				Query:          args[0],
				Model:          model,
				Temperature:    temperature,
				MaxTokens:      maxTokens,
				NResults:       nResults,
				MinSimilarity:  minSim,
				ConversationID: conversationID,
			}
			return runAsk(req, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Generative model to use")
	cmd.Flags().Float32Var(&temperature, "temperature", 0, "Sampling temperature between 0 and 2")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum answer tokens")
	cmd.Flags().IntVarP(&nResults, "n-results", "n", 5, "Number of chunks to retrieve")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0.7, "Similarity floor between 0 and 1")
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID for follow-up questions")
	cmd.Flags().Bool("output", false, "Output as JSON")

	return cmd
}

func runAsk(req RagRequest, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Post("/api/rag-search", req)
	if err != nil {
		return fmt.Errorf("rag-search failed: %w", err)
	}

	var ragResp RagResponse
	if err := json.Unmarshal(resp.Data, &ragResp); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(ragResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(ragResp.Answer)

	if len(ragResp.SourceDocuments) > 0 {
		fmt.Printf("\n%s\n", strings.Repeat("-", 40))
		fmt.Println("Sources:")
		for i, doc := range ragResp.SourceDocuments {
			filename := ""
			if f, ok := doc.Metadata["filename"].(string); ok {
				filename = f
			}
			fmt.Printf("  %d. %s (%s, similarity: %.2f%%)\n", i+1, doc.Content, filename, doc.Similarity*100)
		}
	}

	if ragResp.Usage != nil {
		fmt.Printf("\nTokens: %d in / %d out, cost: $%.4f\n",
			ragResp.Usage.InputTokens, ragResp.Usage.OutputTokens, ragResp.Usage.Cost)
	}
	fmt.Printf("Conversation: %s\n", ragResp.ConversationID)
	if ragResp.Cached {
		fmt.Println("(served from cache)")
	}
	if resp.CostWarning {
		fmt.Println("⚠️  This request exceeded the configured cost warning threshold")
	}

	return nil
}
