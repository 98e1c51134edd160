package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"helpcenter-rag/internal/chromemdb"
	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/intercom"
	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/memstore"
	"helpcenter-rag/internal/pipeline"
	"helpcenter-rag/internal/rag"
)

const previewDims = 5

func runCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if id := c.String("collection"); id != "" {
		cfg.RAG.CollectionID = id
	}
	if w := c.Int("workers"); w > 0 {
		cfg.RAG.Workers = w
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.String("metrics-addr") == "" && cfg.Metrics.Addr != "" {
		serveMetrics(cfg.Metrics.Addr)
	}

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	p, err := newPipeline(cfg, store)
	if err != nil {
		return err
	}

	articles, err := intercom.NewClient(&cfg.Intercom).ListArticles(c.Context, intercom.Filter{
		CollectionID: cfg.RAG.CollectionID,
		UpdatedSince: c.Int64("updated-since"),
	})
	if err != nil {
		return err
	}
	log.Info().Int("articles", len(articles)).Msg("Fetched articles")

	summary, err := p.Run(c.Context, articles)
	if summary != nil {
		printSummary(os.Stdout, summary)
	}
	return err
}

func articleCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	p, err := newPipeline(cfg, store)
	if err != nil {
		return err
	}

	article, err := intercom.NewClient(&cfg.Intercom).GetArticle(c.Context, c.String("id"))
	if err != nil {
		return err
	}

	o := p.ProcessArticle(c.Context, article)
	fmt.Printf("article %s: %s", o.ArticleID, o.Status)
	if o.Reason != "" {
		fmt.Printf(" (%s)", o.Reason)
	}
	fmt.Printf(", languages %v, documents %d, stale removed %d\n", o.Languages, o.Documents, o.Deleted)
	if o.Status == pipeline.StatusFailed {
		return fmt.Errorf("article %s failed: %s", o.ArticleID, o.Reason)
	}
	return nil
}

// testCommand runs a few articles against an in-memory store and prints the
// first resulting document.
func testCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.Store = config.StoreMemory
	if err := cfg.Validate(); err != nil {
		return err
	}

	store := memstore.New()
	p, err := newPipeline(cfg, store)
	if err != nil {
		return err
	}

	articles, err := intercom.NewClient(&cfg.Intercom).ListArticles(c.Context, intercom.Filter{
		CollectionID: cfg.RAG.CollectionID,
		Limit:        c.Int("limit"),
	})
	if err != nil {
		return err
	}

	summary, err := p.Run(c.Context, articles)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, summary)

	docs := store.Documents()
	if len(docs) == 0 {
		fmt.Println("no documents produced")
		return nil
	}
	first := docs[0]
	if len(first.Embedding) > previewDims {
		first.Embedding = first.Embedding[:previewDims]
	}
	helper.PrettyPrint(first)
	return nil
}

func collectionsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	cols, err := intercom.NewClient(&cfg.Intercom).ListCollections(c.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPARENT\tURL")
	for _, col := range cols {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", col.ID, col.Name, col.ParentID, col.URL)
	}
	return w.Flush()
}

func pingCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	me, err := intercom.NewClient(&cfg.Intercom).Me(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("connected as %s (%s)\n", me.Name, me.Email)
	return nil
}

func searchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	embedder, err := newEmbeddingService(&cfg.EmbedLLM)
	if err != nil {
		return err
	}
	gen, err := llmservice.NewClient(&cfg.LLM)
	if err != nil {
		return err
	}
	r := rag.NewRAG(embedder, store, gen, cfg.RAG.TopK)

	if c.Bool("retrieve-only") {
		results, err := r.Retrieve(c.Context, c.String("query"), c.String("language"))
		if err != nil {
			return err
		}
		for _, res := range results {
			fmt.Printf("%.3f  %s [%s #%d]\n%s\n\n", res.Score, res.Title, res.Language, res.MetaData.ChunkIndex, res.Content)
		}
		return nil
	}

	res, err := r.Query(c.Context, c.String("query"), c.String("language"), os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("\n\nSources:\n%s\n", res.Source)
	return nil
}

func initStoreCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := store.prepare(c.Context, c.Bool("drop")); err != nil {
		return err
	}
	log.Info().Str("store", cfg.Store).Bool("dropped", c.Bool("drop")).Msg("Store initialized")
	return nil
}

func exportCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store != config.StoreChroma || cfg.Chroma.InMemory {
		return fmt.Errorf("export needs a persistent chromem store, configured store is %q", cfg.Store)
	}

	s, err := chromemdb.NewStore(&cfg.Chroma, cfg.EmbedLLM.Dimensions)
	if err != nil {
		return err
	}
	path, err := s.Export(c.String("key"))
	if err != nil {
		return err
	}
	log.Info().Str("file", path).Int("documents", s.Count()).Msg("Collection exported")
	return nil
}

func importCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store != config.StoreChroma {
		return fmt.Errorf("import needs the chromem store, configured store is %q", cfg.Store)
	}
	if !cfg.Chroma.InMemory {
		if err := helper.CreateFolder(cfg.Chroma.Path); err != nil {
			return err
		}
	}

	s, err := chromemdb.NewStore(&cfg.Chroma, cfg.EmbedLLM.Dimensions)
	if err != nil {
		return err
	}
	if err := s.Import(c.String("file"), c.String("key")); err != nil {
		return err
	}
	log.Info().Str("file", c.String("file")).Int("documents", s.Count()).Msg("Collection imported")
	return nil
}

func closeStore(s *openedStore) {
	if err := s.close(); err != nil {
		log.Error().Err(err).Msg("Error closing store")
	}
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  processed:        %d\n", s.Processed)
	fmt.Fprintf(w, "  skipped:          %d\n", s.Skipped)
	fmt.Fprintf(w, "  failed:           %d\n", s.Failed)
	fmt.Fprintf(w, "  documents:        %d\n", s.DocumentsWritten)
	fmt.Fprintf(w, "  stale removed:    %d\n", s.StaleDeleted)
	fmt.Fprintf(w, "  multilingual:     %d\n", s.Multilingual)
	fmt.Fprintf(w, "  single language:  %d\n", s.SingleLanguage)
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  ! %s: %s\n", f.ArticleID, f.Reason)
	}
}
