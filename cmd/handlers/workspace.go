package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"teamdigest/internal/clustering"
	"teamdigest/internal/config"
	"teamdigest/internal/core"
	"teamdigest/internal/digest"
	"teamdigest/internal/embeddings"
	"teamdigest/internal/fakedata"
	"teamdigest/internal/llm"
	"teamdigest/internal/narrative"
	"teamdigest/internal/vectorstore"
)

// workspace is the loaded state shared by every command: the synthetic
// dataset, its embeddings and the run's timeline
type workspace struct {
	cfg      *config.Config
	log      zerolog.Logger
	data     fakedata.Dataset
	embedder embeddings.Service
	embs     core.Embeddings
	timeline core.Timeline
	engine   *clustering.Engine
}

// loadWorkspace generates the dataset and embeds every message
func loadWorkspace(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*workspace, error) {
	data := fakedata.Generate(fakedata.Config{
		Seed:           cfg.Data.Seed,
		Days:           cfg.Data.Days,
		MessagesPerDay: cfg.Data.MessagesPerDay,
		Base:           fakedata.DefaultBase,
		ThreadRate:     fakedata.DefaultConfig().ThreadRate,
		ReactionRate:   fakedata.DefaultConfig().ReactionRate,
	})

	embedder, err := embeddings.New(embeddings.Options{
		Provider:          cfg.Embeddings.Provider,
		Dimension:         cfg.Embeddings.Dimension,
		RequestsPerSecond: cfg.AI.Gemini.RequestsPerSecond,
		Gemini:            llmConfig(cfg),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	embs, err := embeddings.EmbedMessages(ctx, embedder, data.Messages)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("failed to embed messages: %w", err)
	}

	timeline := core.NewTimeline(data.Messages)
	if origin, ok, err := cfg.Timeline.OriginTime(); err != nil {
		embedder.Close()
		return nil, err
	} else if ok {
		timeline = core.FixedTimeline(origin)
	}

	kmeans := clustering.DefaultKMeansConfig()
	kmeans.Seed = cfg.Clustering.Seed
	if cfg.Clustering.MaxIterations > 0 {
		kmeans.MaxIterations = cfg.Clustering.MaxIterations
	}
	engine := clustering.NewEngine(clustering.Config{
		KMeans:            kmeans,
		MinWindowMessages: cfg.Clustering.MinWindowMessages,
		MaxPerCluster:     cfg.Clustering.MaxPerCluster,
	}, log)

	log.Info().
		Int("users", len(data.Users)).
		Int("projects", len(data.Projects)).
		Int("messages", len(data.Messages)).
		Int("dimension", embs.Dim()).
		Str("provider", cfg.Embeddings.Provider).
		Msg("Workspace loaded")

	return &workspace{
		cfg:      cfg,
		log:      log,
		data:     data,
		embedder: embedder,
		embs:     embs,
		timeline: timeline,
		engine:   engine,
	}, nil
}

// Close releases the embedding service
func (w *workspace) Close() error {
	return w.embedder.Close()
}

// windowClusters discovers topics over the configured window starting at day
func (w *workspace) windowClusters(day int) core.ClusterMap {
	return w.engine.ClusterRelevantPeriod(
		w.data.Messages, w.embs, w.timeline,
		day, w.cfg.Clustering.WindowDays, w.cfg.Clustering.WindowClusters,
	)
}

// assembler builds the digest assembler over the workspace
func (w *workspace) assembler(narrator digest.Narrator, maxItems int) (*digest.Assembler, error) {
	if maxItems <= 0 {
		maxItems = w.cfg.Digest.MaxItems
	}
	return digest.NewAssembler(digest.Workspace{
		Users:      w.data.Users,
		Projects:   w.data.Projects,
		Messages:   w.data.Messages,
		Embeddings: w.embs,
		Focus:      w.data.Focus,
		Timeline:   w.timeline,
	}, narrator, digest.Config{
		MaxItems:     maxItems,
		LookbackDays: w.cfg.Relevance.LookbackDays,
		TopClusters:  w.cfg.Relevance.TopClusters,
		Workers:      w.cfg.Digest.Workers,
	}, w.log)
}

// index writes every message into store and builds the ANN index for
// backends that have one
func (w *workspace) index(ctx context.Context, store vectorstore.Store) error {
	docs, err := vectorstore.DocumentsFromMessages(w.data.Messages, w.embs)
	if err != nil {
		return err
	}
	if err := store.Reset(ctx); err != nil {
		return err
	}
	if err := store.Add(ctx, docs); err != nil {
		return err
	}
	if ix, ok := store.(vectorstore.Indexer); ok {
		if err := ix.CreateIndex(ctx); err != nil {
			return err
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	w.log.Info().Int("documents", n).Str("driver", w.cfg.VectorStore.Driver).Msg("Messages indexed")
	return nil
}

// openStore opens the configured vector store for the workspace's dimension
func (w *workspace) openStore(ctx context.Context) (vectorstore.Store, error) {
	return vectorstore.Open(ctx, vectorstore.Config{
		Driver:    w.cfg.VectorStore.Driver,
		DSN:       w.cfg.VectorStore.DSN,
		Dimension: w.embs.Dim(),
	}, w.log)
}

// users returns the users with the given ids in workspace order, or every
// user when ids is empty
func (w *workspace) users(ids []string) []core.User {
	if len(ids) == 0 {
		return w.data.Users
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []core.User
	for _, u := range w.data.Users {
		if want[u.ID] {
			out = append(out, u)
		}
	}
	return out
}

// newNarrator returns a generator backed by Gemini when narratives are enabled
// and a key is configured, otherwise one that always uses the rule-based text.
// The returned close func is never nil.
func newNarrator(cfg *config.Config, log zerolog.Logger) (*narrative.Generator, func() error, error) {
	ncfg := narrative.Config{
		Timeout:         cfg.Narrative.TimeoutDuration(),
		Temperature:     cfg.Narrative.Temperature,
		MaxTokens:       cfg.Narrative.MaxTokens,
		Model:           cfg.AI.Gemini.Model,
		MaxContextLines: cfg.Narrative.MaxContextLines,
		MaxPerProject:   cfg.Narrative.MaxPerProject,
	}
	noop := func() error { return nil }

	if !cfg.Narrative.Enabled || !cfg.HasValidGemini() {
		log.Info().Bool("enabled", cfg.Narrative.Enabled).Bool("gemini_key", cfg.HasValidGemini()).Msg("LLM narratives off, using rule-based digests")
		return narrative.NewGenerator(nil, ncfg, log), noop, nil
	}

	client, err := llm.NewClient(llmConfig(cfg), log)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return narrative.NewGenerator(client, ncfg, log), client.Close, nil
}

func llmConfig(cfg *config.Config) llm.Config {
	return llm.Config{
		APIKey:         cfg.AI.Gemini.APIKey,
		Model:          cfg.AI.Gemini.Model,
		EmbeddingModel: cfg.AI.Gemini.EmbeddingModel,
		BatchSize:      cfg.AI.Gemini.BatchSize,
		MaxRetries:     cfg.AI.Gemini.MaxRetries,
	}
}
