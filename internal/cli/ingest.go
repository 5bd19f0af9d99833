package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/tpelligrinomid/midrag/internal/config"
	"github.com/tpelligrinomid/midrag/internal/database"
	"github.com/tpelligrinomid/midrag/internal/domain"
	"github.com/tpelligrinomid/midrag/internal/openai"
	"github.com/tpelligrinomid/midrag/internal/repository"
	"github.com/tpelligrinomid/midrag/internal/service"
)

// IngestCmd returns the ingest command for one-shot document ingestion
// without going through the HTTP API.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a document from a file or stdin",
		Long:  "Chunk, embed and store a single document. Reads the document body from the given file, or from stdin when no file is provided.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().String("source-id", "", "Stable identifier of the source document (required)")
	cmd.Flags().String("source-type", string(domain.SourceTypeNote), "Source type: note, meeting, deliverable or content_asset")
	cmd.Flags().String("title", "", "Document title")
	cmd.Flags().String("tenant", "", "Tenant ID (empty for global scope)")
	_ = cmd.MarkFlagRequired("source-id")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sourceID, _ := cmd.Flags().GetString("source-id")
	sourceType, _ := cmd.Flags().GetString("source-type")
	title, _ := cmd.Flags().GetString("title")
	tenantID, _ := cmd.Flags().GetString("tenant")

	content, err := readDocument(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("MIDRAG_OPENAI_API_KEY is required")
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	provider, err := openai.NewClient(openai.Config{
		APIKey:          cfg.OpenAIAPIKey,
		EmbeddingModel:  goopenai.EmbeddingModel(cfg.EmbeddingModel),
		GenerationModel: cfg.GenerationModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	svc := service.NewIngestionService(provider, repository.NewChunkRepository(pool), service.ChunkOptions{
		MaxTokens:        cfg.ChunkMaxTokens,
		OverlapSentences: cfg.ChunkOverlapSentences,
		HardTokenCap:     cfg.ChunkHardTokenCap,
	})

	count, err := svc.Ingest(ctx, service.IngestInput{
		TenantID:   tenantID,
		SourceType: domain.SourceType(sourceType),
		SourceID:   sourceID,
		Title:      title,
		Content:    string(content),
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("ingested %s: %d chunks created\n", sourceID, count)
	return nil
}

func readDocument(args []string) ([]byte, error) {
	if len(args) == 1 {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return content, nil
	}
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return content, nil
}
