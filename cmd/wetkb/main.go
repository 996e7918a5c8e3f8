package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/tmc/langchaingo/llms"

	"github.com/wetlandlabs/wetkb/internal/models"
	"github.com/wetlandlabs/wetkb/pkg/config"
	"github.com/wetlandlabs/wetkb/pkg/llm"
	"github.com/wetlandlabs/wetkb/pkg/loader"
	"github.com/wetlandlabs/wetkb/pkg/processor"
	"github.com/wetlandlabs/wetkb/pkg/retriever"
	"github.com/wetlandlabs/wetkb/pkg/scraper"
	"github.com/wetlandlabs/wetkb/pkg/store"
	"github.com/wetlandlabs/wetkb/pkg/tools"
)

type flags struct {
	configPath string
	apiKey     string
	model      string
	dbURL      string
	docsDir    string
	docsURL    string
	deleteDoc  string
	listModels bool
	stream     bool
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() (flags, *config.Config, error) {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.apiKey, "api-key", "", "Google API key (overrides secrets file and GOOGLE_API_KEY)")
	flag.StringVar(&f.model, "model", "", "Gemini model to use")
	flag.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&f.docsDir, "docs-dir", "", "Local directory of documents to ingest")
	flag.StringVar(&f.docsURL, "docs-url", "", "Documentation URL to scrape and ingest")
	flag.StringVar(&f.deleteDoc, "delete-doc", "", "Remove a document from the knowledge base and exit")
	flag.BoolVar(&f.listModels, "list-models", false, "List models available to the API key and exit")
	flag.BoolVar(&f.stream, "stream", false, "Stream responses")
	flag.Parse()

	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return f, nil, err
	}

	// Command line flags win over config file values, but only when
	// actually provided.
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "api-key":
			cfg.LLM.APIKey = f.apiKey
		case "model":
			cfg.LLM.Model = f.model
		case "db-url":
			cfg.Database.URL = f.dbURL
		case "stream":
			cfg.UI.Streaming = f.stream
		}
	})

	return f, cfg, nil
}

func run() error {
	f, cfg, err := parseFlags()
	if err != nil {
		return err
	}

	ctx := context.Background()

	if f.listModels {
		return printModels(ctx, cfg.LLM.APIKey)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config error - %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	embedder, err := llm.NewEmbedderWithConfig(ctx, llm.EmbedderConfig{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %v", err)
	}

	vectorStore, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString:   cfg.Database.URL,
		TableName:    cfg.Database.TableName,
		VectorDim:    cfg.Database.VectorDim,
		BatchSize:    cfg.Database.BatchSize,
		EmbedWorkers: cfg.Database.EmbedWorkers,
		SearchLimit:  cfg.Retrieval.TopK,
	}, embedder)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %v", err)
	}
	defer vectorStore.Close()

	if f.deleteDoc != "" {
		removed, err := vectorStore.DeleteDocument(ctx, f.deleteDoc)
		if err != nil {
			return err
		}
		color.Green("✓ Removed %d chunks of %q", removed, f.deleteDoc)
		return nil
	}

	ret, err := retriever.NewWithConfig(retriever.Config{
		TopK:         cfg.Retrieval.TopK,
		MaxTopK:      cfg.Retrieval.MaxTopK,
		DocumentTopK: cfg.Retrieval.DocumentTopK,
		MaxDistance:  cfg.Retrieval.MaxDistance,
	}, embedder, vectorStore)
	if err != nil {
		return err
	}

	engine, err := llm.NewWithConfig(ctx, llm.ChatConfig{
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		ContextWindow: cfg.LLM.ContextWindow,
		MaxToolRounds: cfg.LLM.MaxToolRounds,
		DisableTools:  cfg.LLM.DisableFunctionCalling,
	}, tools.NewExecutor(ret, vectorStore))
	if err != nil {
		return fmt.Errorf("failed to initialize chat engine: %v", err)
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:       cfg.Processor.ChunkSize,
		ChunkOverlap:    cfg.Processor.ChunkOverlap,
		RemoveStopwords: cfg.Processor.RemoveStopwords,
	})

	if f.docsDir != "" {
		if err := ingestDirectory(ctx, f.docsDir, &proc, vectorStore, cfg.Database.BatchSize); err != nil {
			return err
		}
	}

	if f.docsURL != "" {
		if err := ingestSite(ctx, f.docsURL, cfg, &proc, vectorStore); err != nil {
			return err
		}
	}

	return chatLoop(ctx, engine, cfg.UI.Streaming)
}

func printModels(ctx context.Context, apiKey string) error {
	infos, err := llm.ListModels(ctx, apiKey)
	if err != nil {
		return err
	}

	color.Cyan("Available models:")
	for _, m := range infos {
		if m.SupportsGeneration() {
			fmt.Printf("- %s (%s)\n", m.Name, m.DisplayName)
		}
	}
	return nil
}

func ingestDirectory(ctx context.Context, dir string, proc *processor.Processor, vectorStore *store.VectorStore, batchSize int) error {
	loadingBar := getProgressBar(-1, " Loading documents...")
	l, err := loader.NewWithConfig(loader.LoaderConfig{
		Dir: dir,
		OnProgress: func(string) {
			loadingBar.Add(1)
		},
	})
	if err != nil {
		return err
	}

	color.Blue("\nIngesting documents from %s\n", dir)
	docs, err := l.Load()
	loadingBar.Finish()
	if err != nil {
		return fmt.Errorf("failed to load documents: %v", err)
	}
	color.Green("✓ Loaded %d documents\n", len(docs))

	return processAndStore(ctx, docs, proc, vectorStore, batchSize)
}

func ingestSite(ctx context.Context, docsURL string, cfg *config.Config, proc *processor.Processor, vectorStore *store.VectorStore) error {
	var scrapeCount int32
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:           docsURL,
		MaxDepth:          cfg.Scraper.MaxDepth,
		RateLimit:         cfg.Scraper.RateLimit,
		IgnorePatterns:    cfg.Scraper.IgnorePatterns,
		AllowedExtensions: cfg.Scraper.AllowedExtensions,
		OnProgress: func(string) {
			atomic.AddInt32(&scrapeCount, 1)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %v", err)
	}

	color.Blue("\nScraping %s\n", docsURL)
	scrapingBar := getProgressBar(-1, " Scraping documentation...")
	startTime := time.Now()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
				count := atomic.LoadInt32(&scrapeCount)
				scrapingBar.Set(int(count))
				if count > 0 {
					rate := float64(count) / time.Since(startTime).Seconds()
					scrapingBar.Describe(color.BlueString(
						"Scraping documentation (%.1f pages/sec)", rate))
				}
			}
		}
	}()

	docs, err := s.Scrape(ctx, docsURL)
	close(done)
	scrapingBar.Finish()
	if err != nil {
		return fmt.Errorf("failed to scrape documents: %v", err)
	}
	color.Green("✓ Scraped %d documents\n", len(docs))

	return processAndStore(ctx, docs, proc, vectorStore, cfg.Database.BatchSize)
}

func processAndStore(ctx context.Context, docs []models.Document, proc *processor.Processor, vectorStore *store.VectorStore, batchSize int) error {
	processingBar := getProgressBar(len(docs), " Processing documents...")
	processed := make([]models.ProcessedDocument, 0, len(docs))

	for _, doc := range docs {
		processedDocs, err := proc.Process([]models.Document{doc})
		if err != nil {
			return fmt.Errorf("failed to process document %s: %v", doc.Source, err)
		}
		processed = append(processed, processedDocs...)
		processingBar.Add(1)
	}
	processingBar.Finish()
	color.Green("✓ Processed into %d chunk sets\n", len(processed))

	storageBar := getProgressBar(len(processed), " Storing in vector database...")
	for i := 0; i < len(processed); i += batchSize {
		end := i + batchSize
		if end > len(processed) {
			end = len(processed)
		}
		batch := processed[i:end]

		if err := vectorStore.Store(ctx, batch); err != nil {
			return fmt.Errorf("failed to store batch: %v", err)
		}
		storageBar.Add(len(batch))
	}
	storageBar.Finish()
	color.Green("✓ Storage complete\n")

	return nil
}

func chatLoop(ctx context.Context, engine *llm.ChatEngine, streaming bool) error {
	color.Cyan("\nChat with your knowledge base (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	var history []llms.MessageContent

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		if streaming {
			events, err := engine.ChatStream(ctx, query, history)
			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}

			spinner := getSpinner(" Thinking...")
			first := true
			var answer *llm.Answer

			for ev := range events {
				switch ev.Type {
				case "tool":
					color.Blue("\n→ %s %s", ev.Tool.Name, ev.Tool.Arguments)
				case "chunk":
					if first {
						spinner.Finish()
						first = false
						fmt.Println()
						assistantPrompt("Assistant: ")
					}
					fmt.Print(ev.Chunk)
				case "error":
					spinner.Finish()
					color.Red("\nError: %v\n", ev.Err)
				case "answer":
					answer = ev.Answer
				}
			}
			if first {
				spinner.Finish()
			}

			if answer != nil {
				color.Yellow("%s\n", llm.FormatSources(answer.Sources))
				history = llm.WithExchange(history, query, answer.Text)
			}
			fmt.Println()
			continue
		}

		spinner := getSpinner(" Generating response...")
		answer, err := engine.Chat(ctx, query, history, func(ev llm.ToolEvent) {
			color.Blue("\n→ %s %s", ev.Name, ev.Arguments)
		})
		spinner.Finish()

		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		assistantPrompt("\nAssistant: %s\n", answer.Text)
		color.Yellow("%s\n", llm.FormatSources(answer.Sources))
		history = llm.WithExchange(history, query, answer.Text)
	}

	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
