// wetkb-server launches the knowledge-base chat web application.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/wetlandlabs/wetkb/pkg/config"
	"github.com/wetlandlabs/wetkb/pkg/llm"
	"github.com/wetlandlabs/wetkb/pkg/retriever"
	"github.com/wetlandlabs/wetkb/pkg/store"
	"github.com/wetlandlabs/wetkb/pkg/tools"
	"github.com/wetlandlabs/wetkb/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var (
		configPath string
		apiKey     string
		dbURL      string
		addr       string
		stream     bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&apiKey, "api-key", "", "Google API key (overrides secrets file and GOOGLE_API_KEY)")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides PORT)")
	flag.BoolVar(&stream, "stream", false, "Stream responses over the socket")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "api-key":
			cfg.LLM.APIKey = apiKey
		case "db-url":
			cfg.Database.URL = dbURL
		case "addr":
			cfg.Server.Addr = addr
		case "stream":
			cfg.UI.Streaming = stream
		}
	})

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Printf("config error - %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	ctx := context.Background()

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

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		Streaming: cfg.UI.Streaming,
	}, engine, vectorStore)

	return srv.ListenAndServe()
}
