package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// DocumentResponse represents a resolved document from the API.
type DocumentResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Content    string `json:"content"`
	Location   string `json:"location"`
}

// IngestRequest represents the document ingestion API request.
type IngestRequest struct {
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IngestResponse represents the document ingestion API response.
type IngestResponse struct {
	DocumentID        string `json:"document_id"`
	ChunkCount        int    `json:"chunk_count"`
	PendingEmbeddings int    `json:"pending_embeddings"`
}

// DocCmd creates the doc parent command.
func DocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Manage documents",
		Long:  "Fetch and ingest documents",
	}

	cmd.AddCommand(DocGetCmd())
	cmd.AddCommand(DocIngestCmd())

	return cmd
}

// DocGetCmd creates the doc get command.
func DocGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <document_id>",
		Short: "Fetch a document by ID",
		Long:  "Resolves a document across the tenant's storage locations and prints its content.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocGet(args[0], outputJSON)
		},
	}

	cmd.Flags().Bool("output", false, "Output as JSON")

	return cmd
}

func runDocGet(documentID string, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/api/documents/" + url.PathEscape(documentID))
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	var doc DocumentResponse
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Document: %s (%s, from %s)\n\n", doc.DocumentID, doc.Filename, doc.Location)
		fmt.Println(doc.Content)
	}

	return nil
}

// DocIngestCmd creates the doc ingest command.
func DocIngestCmd() *cobra.Command {
	var (
		documentID string
		title      string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a document file",
		Long:  "Chunks and embeds a text file so it becomes searchable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runDocIngest(args[0], documentID, title, outputJSON)
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "Document ID (defaults to the file name)")
	cmd.Flags().StringVar(&title, "title", "", "Document title stored in chunk metadata")
	cmd.Flags().Bool("output", false, "Output as JSON")

	return cmd
}

func runDocIngest(path, documentID, title string, outputJSON bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if documentID == "" {
		documentID = filepath.Base(path)
	}

	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	req := IngestRequest{
		DocumentID: documentID,
		Content:    string(content),
	}
	if title != "" {
		req.Metadata = map[string]any{"title": title}
	}

	resp, err := api.Post("/api/documents", req)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	var result IngestResponse
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse ingestion response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Ingested %s: %d chunks\n", result.DocumentID, result.ChunkCount)
		if result.PendingEmbeddings > 0 {
			fmt.Printf("%d chunks are awaiting embeddings and will become searchable shortly\n", result.PendingEmbeddings)
		}
	}

	return nil
}
