package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	QueryText      string         `json:"query_text"`
	NResults       int            `json:"n_results,omitempty"`
	MinSimilarity  *float64       `json:"min_similarity,omitempty"`
	MetadataFilter map[string]any `json:"metadata_filter,omitempty"`
}

// SearchResult represents one ranked retrieval hit.
type SearchResult struct {
	Chunk      string         `json:"chunk"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"`
	Rank       int            `json:"rank"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalFound int            `json:"total_found"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		nResults      int
		minSimilarity float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search document chunks",
		Long:  "Runs a semantic vector search over the tenant's document chunks.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			var minSim *float64
			if cmd.Flags().Changed("min-similarity") {
				minSim = &minSimilarity
			}
			return runSearch(args[0], nResults, minSim, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&nResults, "n-results", "n", 3, "Maximum number of results")
	cmd.Flags().Float64Var(&minSimilarity, "min-similarity", 0.7, "Similarity floor between 0 and 1")
	cmd.Flags().Bool("output", false, "Output as JSON")

	return cmd
}

func runSearch(query string, nResults int, minSimilarity *float64, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := SearchRequest{
		QueryText:     query,
		NResults:      nResults,
		MinSimilarity: minSimilarity,
	}

	resp, err := api.Post("/api/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(searchResp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", searchResp.TotalFound)
	for i, result := range searchResp.Results {
		source := "unknown"
		if s, ok := result.Metadata["source"].(string); ok && s != "" {
			source = s
		}
		fmt.Printf("%d. %s (similarity: %.2f%%)\n", result.Rank, source, result.Similarity*100)

		chunk := result.Chunk
		if len(chunk) > 200 {
			chunk = chunk[:197] + "..."
		}
		fmt.Printf("   %s\n", chunk)
		if i < len(searchResp.Results)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}
