package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/markdave123-py/Skema/internal/config"
	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/core/artifacts"
	"github.com/markdave123-py/Skema/internal/core/cellcompute"
	db "github.com/markdave123-py/Skema/internal/core/database"
	"github.com/markdave123-py/Skema/internal/core/embedder"
	"github.com/markdave123-py/Skema/internal/core/llm"
	objectclient "github.com/markdave123-py/Skema/internal/core/object-client"
	"github.com/markdave123-py/Skema/internal/core/pipeline"
	"github.com/markdave123-py/Skema/internal/core/suggest"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Orchestrator *pipeline.Orchestrator
	Server       *Server

	embedderClient *llm.GeminiEmbedder
	llmClient      *llm.GeminiLLM
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	analyzer := analysis.NewAnalyzer(
		analysis.NewFormatExtractor(false),
		analysis.WithChunkSizeTokens(cfg.ChunkSizeTokens),
		analysis.WithOverlapRatio(float64(cfg.ChunkOverlapPct)/100),
	)
	cache := artifacts.NewCache(dbClient, objClient, cfg.BucketName)
	batcher := embedder.NewBatcher(dbClient, geminiEmbedder, cfg.EmbedBatchSize)
	engine := suggest.NewEngine(llmProvider)

	orchestrator := pipeline.NewOrchestrator(dbClient, objClient, analyzer, cache, batcher, engine)
	orchestrator.Start(ctx, pipeline.MaxAnalysisWorkers)

	cells := cellcompute.NewEngine(dbClient, cache, geminiEmbedder, llmProvider)

	server := NewServer(cfg, dbClient, objClient, orchestrator, cells)

	return &App{
		DBClient:       dbClient,
		ObjectClient:   objClient,
		Orchestrator:   orchestrator,
		Server:         server,
		embedderClient: geminiEmbedder,
		llmClient:      llmProvider,
	}, nil
}

func (a *App) Close() {
	if a.embedderClient != nil {
		_ = a.embedderClient.Close()
	}
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
