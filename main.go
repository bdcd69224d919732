package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/evergrid/newsrag/api"
	"github.com/evergrid/newsrag/chat"
	"github.com/evergrid/newsrag/chunker"
	"github.com/evergrid/newsrag/config"
	"github.com/evergrid/newsrag/database"
	"github.com/evergrid/newsrag/embeddings"
	"github.com/evergrid/newsrag/ingestion"
	"github.com/evergrid/newsrag/llm"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "serve":
		err = serveCmd(args)
	case "ingest":
		err = ingestCmd(args)
	case "chat":
		err = chatCmd(args)
	case "clear":
		err = clearCmd(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsrag %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: newsrag <command> [flags]

Commands:
  serve   run the HTTP API server
  ingest  chunk and embed pending articles (optionally seed with --file)
  chat    ask a one-shot question from the command line
  clear   delete all articles and passages`)
}

func loadConfig(name string, args []string, bind func(*pflag.FlagSet)) (config.Config, *pflag.FlagSet, error) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	if bind != nil {
		bind(fs)
	}
	cfg, err := config.Load(fs, args)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, fs, nil
}

func newLogger(cfg config.Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger(), nil
}

func newProviders(cfg config.Config) (embeddings.Embedder, llm.Client, error) {
	embedder, err := embeddings.NewEmbedder(embeddings.Options{
		Provider:      cfg.Provider,
		Model:         cfg.EmbedModel,
		Dimension:     cfg.EmbedDimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}
	llmClient, err := llm.NewClient(llm.Options{
		Provider:      cfg.Provider,
		Model:         cfg.ChatModel,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}
	return embedder, llmClient, nil
}

func thresholdsFromConfig(cfg config.Config) chat.Thresholds {
	return chat.Thresholds{
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		Medium:        cfg.Retrieval.MediumMax,
		HighMax:       cfg.Retrieval.HighMax,
		HighAvg:       cfg.Retrieval.HighAvg,
	}
}

func serveCmd(args []string) error {
	cfg, _, err := loadConfig("serve", args, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool, cfg.EmbedDimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	embedder, llmClient, err := newProviders(cfg)
	if err != nil {
		return err
	}

	vectors := chat.NewPostgresVectorStore(pool)
	chatSvc := chat.NewService(vectors, embedder, llmClient, thresholdsFromConfig(cfg), logger)

	docs := ingestion.NewPostgresDocumentStore(pool)
	ch := chunker.New(cfg.Chunk.MinSize, cfg.Chunk.MaxSize, cfg.Chunk.Overlap)
	ingestSvc := ingestion.NewService(docs, vectors, embedder, ch, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.New(chatSvc, ingestSvc, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Str("provider", cfg.Provider).Msg("starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func ingestCmd(args []string) error {
	var file string
	cfg, _, err := loadConfig("ingest", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&file, "file", "", "path to a JSON file of articles to seed before processing")
	})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool, cfg.EmbedDimension); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	embedder, _, err := newProviders(cfg)
	if err != nil {
		return err
	}

	docs := ingestion.NewPostgresDocumentStore(pool)
	if file != "" {
		inserted, err := seedDocuments(ctx, docs, file)
		if err != nil {
			return fmt.Errorf("seed articles from %s: %w", file, err)
		}
		logger.Info().Int("inserted", inserted).Str("file", file).Msg("seeded articles")
	}

	vectors := chat.NewPostgresVectorStore(pool)
	ch := chunker.New(cfg.Chunk.MinSize, cfg.Chunk.MaxSize, cfg.Chunk.Overlap)
	svc := ingestion.NewService(docs, vectors, embedder, ch, logger)

	stats, err := svc.ProcessAll(ctx)
	if err != nil {
		return fmt.Errorf("ingestion: %w", err)
	}
	logger.Info().
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("chunks", stats.Chunks).
		Msg("ingestion complete")
	return nil
}

func seedDocuments(ctx context.Context, docs ingestion.DocumentStore, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var articles []ingestion.Document
	if err := json.Unmarshal(data, &articles); err != nil {
		return 0, fmt.Errorf("parse articles: %w", err)
	}
	return docs.InsertDocuments(ctx, articles)
}

func chatCmd(args []string) error {
	var (
		question  string
		countries []string
		topics    []string
		from      string
		to        string
		k         int
	)
	cfg, _, err := loadConfig("chat", args, func(fs *pflag.FlagSet) {
		fs.StringVar(&question, "question", "", "question to ask")
		fs.StringSliceVar(&countries, "countries", nil, "restrict to ISO country codes")
		fs.StringSliceVar(&topics, "topics", nil, "restrict to topic tags")
		fs.StringVar(&from, "from", "", "earliest publication date (YYYY-MM-DD, inclusive)")
		fs.StringVar(&to, "to", "", "publication date upper bound (YYYY-MM-DD, exclusive)")
		fs.IntVar(&k, "k", 0, "number of passages to retrieve")
	})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if strings.TrimSpace(question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read question: %w", err)
		}
	}

	filters := chat.Filters{Countries: countries, Topics: topics}
	if filters.DateFrom, err = parseDate(from); err != nil {
		return err
	}
	if filters.DateTo, err = parseDate(to); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	embedder, llmClient, err := newProviders(cfg)
	if err != nil {
		return err
	}

	vectors := chat.NewPostgresVectorStore(pool)
	svc := chat.NewService(vectors, embedder, llmClient, thresholdsFromConfig(cfg), logger)

	resp, err := svc.Chat(ctx, question, filters, k)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	fmt.Println(resp.Answer)
	fmt.Printf("\nConfidence: %s\n", resp.Confidence)
	if len(resp.Citations) > 0 {
		fmt.Println("\nSources:")
		for idx, c := range resp.Citations {
			line := fmt.Sprintf("%d. %s (%s)", idx+1, c.Title, c.Source)
			if c.PublishedAt != nil {
				line += ", " + c.PublishedAt.Format("2006-01-02")
			}
			fmt.Println(line)
			if c.URL != "" {
				fmt.Printf("   %s\n", c.URL)
			}
		}
	}
	return nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return &t, nil
}

func clearCmd(args []string) error {
	var confirmed bool
	cfg, _, err := loadConfig("clear", args, func(fs *pflag.FlagSet) {
		fs.BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	})
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if !confirmed {
		fmt.Print("This will permanently delete all articles and passages. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read confirmation: %w", err)
			}
			logger.Info().Msg("clear aborted")
			return nil
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Info().Msg("clear aborted")
			return nil
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connection: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "TRUNCATE article_chunks, articles CASCADE"); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	logger.Info().Msg("cleared articles and article_chunks")
	return nil
}
