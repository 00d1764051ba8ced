// Copyright 2026 StudyForge
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/studyforge/corpus/ai"
	"github.com/studyforge/corpus/ai/openai"
	"github.com/studyforge/corpus/chunk"
	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/embed"
	"github.com/studyforge/corpus/extract"
	"github.com/studyforge/corpus/fetch"
	"github.com/studyforge/corpus/ingestion"
	"github.com/studyforge/corpus/storage"
	badgerstore "github.com/studyforge/corpus/storage/badger"
	"github.com/studyforge/corpus/storage/postgres"
	"github.com/studyforge/corpus/token"
)

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to BadgerDB database directory",
			EnvVars: []string{"CORPUS_DB"},
		},
		&cli.StringFlag{
			Name:    "postgres",
			Usage:   "Postgres connection string (takes precedence over --db)",
			EnvVars: []string{"CORPUS_POSTGRES"},
		},
	}
}

func embeddingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"CORPUS_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   "mxbai-embed-large",
			EnvVars: []string{"CORPUS_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key for the embedding service",
			Value:   "none",
			EnvVars: []string{"CORPUS_API_KEY"},
		},
		&cli.IntFlag{
			Name:    "dimension",
			Usage:   "Embedding vector dimension",
			Value:   1024,
			EnvVars: []string{"CORPUS_DIMENSION"},
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of chunks to embed in each request",
			Value: embed.DefaultBatchSize,
		},
		&cli.DurationFlag{
			Name:  "batch-interval",
			Usage: "Minimum interval between embedding batches",
			Value: embed.DefaultBatchInterval,
		},
	}
}

func chunkFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "target-tokens",
			Usage: "Target chunk size in tokens",
			Value: chunk.DefaultTargetTokens,
		},
		&cli.IntFlag{
			Name:  "overlap-tokens",
			Usage: "Overlap between adjacent chunks in tokens",
			Value: chunk.DefaultOverlapTokens,
		},
		&cli.IntFlag{
			Name:  "max-chunks",
			Usage: "Maximum chunks per document",
			Value: chunk.DefaultMaxChunks,
		},
	}
}

func ingestFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:     "owner",
			Aliases:  []string{"o"},
			Usage:    "Owner identifier the document is counted against",
			Required: true,
			EnvVars:  []string{"CORPUS_OWNER"},
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "Document title (derived from content when omitted)",
		},
		&cli.IntFlag{
			Name:  "quota",
			Usage: "Per-owner document limit",
			Value: ingestion.DefaultQuota,
		},
	}, chunkFlags()...)
}

func main() {
	app := &cli.App{
		Name:  "corpusd",
		Usage: "Content ingestion pipeline for retrieval corpora",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"CORPUS_LOG_LEVEL"},
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "Submit content for ingestion",
				Subcommands: []*cli.Command{
					{
						Name:      "file",
						Usage:     "Ingest a PDF file",
						ArgsUsage: "<path>",
						Action:    ingestFileCommand,
						Flags:     joinFlags(storeFlags(), embeddingFlags(), ingestFlags()),
					},
					{
						Name:      "url",
						Usage:     "Ingest a web page",
						ArgsUsage: "<url>",
						Action:    ingestURLCommand,
						Flags:     joinFlags(storeFlags(), embeddingFlags(), ingestFlags()),
					},
					{
						Name:      "text",
						Usage:     "Ingest raw text from a file or stdin",
						ArgsUsage: "[path]",
						Action:    ingestTextCommand,
						Flags:     joinFlags(storeFlags(), embeddingFlags(), ingestFlags()),
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show a document's ingestion status",
				ArgsUsage: "<document-id>",
				Action:    statusCommand,
				Flags:     joinFlags(storeFlags(), []cli.Flag{dimensionFlag()}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a document and its vectors",
				ArgsUsage: "<document-id>",
				Action:    deleteCommand,
				Flags:     joinFlags(storeFlags(), embeddingFlags()),
			},
			{
				Name:      "reingest",
				Usage:     "Re-fetch and re-process a url-sourced document",
				ArgsUsage: "<document-id>",
				Action:    reingestCommand,
				Flags:     joinFlags(storeFlags(), embeddingFlags(), chunkFlags()),
			},
			{
				Name:      "search",
				Usage:     "Search an owner's vectors with a text query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: joinFlags(storeFlags(), embeddingFlags(), []cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"o"},
						Usage:    "Owner identifier to search within",
						Required: true,
						EnvVars:  []string{"CORPUS_OWNER"},
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				}),
			},
			{
				Name:   "list",
				Usage:  "List an owner's documents",
				Action: listCommand,
				Flags: joinFlags(storeFlags(), []cli.Flag{
					dimensionFlag(),
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"o"},
						Usage:    "Owner identifier to list documents for",
						Required: true,
						EnvVars:  []string{"CORPUS_OWNER"},
					},
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func joinFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, g := range groups {
		flags = append(flags, g...)
	}
	return flags
}

// dimensionFlag is needed by store-only commands when the postgres backend
// runs its migration.
func dimensionFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "dimension",
		Usage:   "Embedding vector dimension",
		Value:   1024,
		EnvVars: []string{"CORPUS_DIMENSION"},
	}
}

// stores bundles the two backends behind a single close.
type stores struct {
	documents storage.DocumentStore
	vectors   storage.VectorStore
	close     func()
}

func openStores(ctx context.Context, c *cli.Context) (*stores, error) {
	if dsn := c.String("postgres"); dsn != "" {
		pool, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, c.Int("dimension")); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return &stores{
			documents: postgres.NewDocumentStore(pool),
			vectors:   postgres.NewVectorStore(pool),
			close:     pool.Close,
		}, nil
	}

	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("either --db or --postgres is required")
	}
	backend, err := badgerstore.OpenBackend(dbPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &stores{
		documents: badgerstore.NewDocumentStore(backend),
		vectors:   badgerstore.NewVectorStore(backend),
		close:     func() { backend.Close() },
	}, nil
}

func buildEmbedder(c *cli.Context) (ai.Embedder, error) {
	config := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithDimension(c.Int("dimension")),
	)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding configuration: %w", err)
	}
	embedder, err := openai.NewEmbedder(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

func buildOrchestrator(c *cli.Context, st *stores) (*ingestion.Orchestrator, error) {
	embedder, err := buildEmbedder(c)
	if err != nil {
		return nil, err
	}

	interval := c.Duration("batch-interval")
	if interval <= 0 {
		return nil, fmt.Errorf("batch-interval must be greater than 0")
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch-size must be greater than 0")
	}
	batcher := embed.New(embedder,
		embed.WithBatchSize(batchSize),
		embed.WithLimiter(rate.NewLimiter(rate.Every(interval), 1)),
	)

	estimator := token.NewEstimator()
	chunker := chunk.New(estimator,
		chunk.WithTargetTokens(c.Int("target-tokens")),
		chunk.WithOverlapTokens(c.Int("overlap-tokens")),
		chunk.WithMaxChunks(c.Int("max-chunks")),
	)

	fetcher := fetch.New()
	extractor := extract.New(fetcher)

	opts := []ingestion.Option{
		ingestion.WithProgress(stderrProgress()),
	}
	if c.IsSet("quota") {
		opts = append(opts, ingestion.WithQuota(c.Int("quota")))
	}
	return ingestion.NewOrchestrator(st.documents, st.vectors, extractor, chunker, batcher, opts...)
}

// stderrProgress lazily starts a tracker once the chunk total is known.
func stderrProgress() embed.ProgressFunc {
	var tracker *embed.Tracker
	return func(done, total int) {
		if tracker == nil {
			tracker = embed.NewTracker(os.Stderr, total, 1)
			tracker.Start()
		}
		tracker.Update(done)
		if done >= total {
			tracker.Finish()
		}
	}
}

func ingestFileCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	return runIngest(c, ingestion.Request{
		OwnerID:    c.String("owner"),
		SourceKind: core.SourcePDF,
		Title:      c.String("title"),
		Data:       data,
		Filename:   filepath.Base(path),
	})
}

func ingestURLCommand(c *cli.Context) error {
	url := c.Args().First()
	if url == "" {
		return fmt.Errorf("url is required")
	}

	return runIngest(c, ingestion.Request{
		OwnerID:    c.String("owner"),
		SourceKind: core.SourceURL,
		Title:      c.String("title"),
		URL:        url,
	})
}

func ingestTextCommand(c *cli.Context) error {
	var (
		data []byte
		err  error
	)
	if path := c.Args().First(); path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	return runIngest(c, ingestion.Request{
		OwnerID:    c.String("owner"),
		SourceKind: core.SourceText,
		Title:      c.String("title"),
		Text:       string(data),
	})
}

func runIngest(c *cli.Context, req ingestion.Request) error {
	ctx := context.Background()

	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.close()

	orchestrator, err := buildOrchestrator(c, st)
	if err != nil {
		return err
	}

	doc, err := orchestrator.Ingest(ctx, req)
	if err != nil {
		if doc != nil {
			printDocument(doc)
		}
		return fmt.Errorf("ingestion failed: %w", err)
	}
	printDocument(doc)
	return nil
}

func statusCommand(c *cli.Context) error {
	ctx := context.Background()

	id, err := parseDocumentID(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.close()

	doc, err := st.documents.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	printDocument(doc)
	return nil
}

func deleteCommand(c *cli.Context) error {
	ctx := context.Background()

	id, err := parseDocumentID(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.close()

	orchestrator, err := buildOrchestrator(c, st)
	if err != nil {
		return err
	}
	if err := orchestrator.Delete(ctx, id); err != nil {
		return fmt.Errorf("deletion failed: %w", err)
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

func reingestCommand(c *cli.Context) error {
	ctx := context.Background()

	id, err := parseDocumentID(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.close()

	orchestrator, err := buildOrchestrator(c, st)
	if err != nil {
		return err
	}
	doc, err := orchestrator.Reingest(ctx, id)
	if err != nil {
		if doc != nil {
			printDocument(doc)
		}
		return fmt.Errorf("re-ingestion failed: %w", err)
	}
	printDocument(doc)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(c.Args().First())
	if query == "" {
		return fmt.Errorf("query is required")
	}
	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.close()

	embedder, err := buildEmbedder(c)
	if err != nil {
		return err
	}
	vector, err := embedder.EmbedText(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := st.vectors.Search(ctx, c.String("owner"), vector, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, result := range results {
		fmt.Printf("%d. [%.4f] doc %s chunk %d\n", i+1,
			result.Score, result.Metadata.DocumentID, result.Metadata.Position)
		fmt.Printf("   %s\n", snippet(result.Metadata.Content, 160))
	}
	return nil
}

func listCommand(c *cli.Context) error {
	ctx := context.Background()

	st, err := openStores(ctx, c)
	if err != nil {
		return err
	}
	defer st.close()

	docs, err := st.documents.ListByOwner(ctx, c.String("owner"))
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("no documents")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%s  %-10s  %3d chunks  %s  %s\n",
			doc.ID, doc.Status, doc.ChunkCount,
			doc.CreatedAt.Format(time.RFC3339), doc.Title)
	}
	return nil
}

func parseDocumentID(c *cli.Context) (uuid.UUID, error) {
	raw := c.Args().First()
	if raw == "" {
		return uuid.Nil, fmt.Errorf("document id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid document id %q: %w", raw, err)
	}
	return id, nil
}

func printDocument(doc *core.Document) {
	fmt.Printf("ID:        %s\n", doc.ID)
	fmt.Printf("Owner:     %s\n", doc.OwnerID)
	fmt.Printf("Title:     %s\n", doc.Title)
	fmt.Printf("Source:    %s\n", doc.SourceKind)
	if doc.SourceURL != "" {
		fmt.Printf("URL:       %s\n", doc.SourceURL)
	}
	if doc.Filename != "" {
		fmt.Printf("Filename:  %s\n", doc.Filename)
	}
	fmt.Printf("Status:    %s\n", doc.Status)
	fmt.Printf("Chunks:    %d\n", doc.ChunkCount)
	fmt.Printf("Created:   %s\n", doc.CreatedAt.Format(time.RFC3339))
	if !doc.ProcessedAt.IsZero() {
		fmt.Printf("Processed: %s\n", doc.ProcessedAt.Format(time.RFC3339))
	}
	if doc.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", doc.ErrorMessage)
	}
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func setup(c *cli.Context) error {
	// A .env alongside the binary supplies CORPUS_* variables without
	// shell exports.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return setupLogger(c)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
