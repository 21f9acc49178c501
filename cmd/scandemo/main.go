package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"go.uber.org/zap"

	"github.com/storyarkivist/refengine/internal/config"
	"github.com/storyarkivist/refengine/internal/store"
	"github.com/storyarkivist/refengine/pkg/engine"
	"github.com/storyarkivist/refengine/pkg/extract"
)

const draft = `Aldric rode north through the rain. At dusk the Black Gate
rose out of the mist, and Mira Holt was waiting beneath it.

"You came," Mira Holt said. "The Order of the Silver Flame knows."

Aldric said nothing. Beyond the Black Gate the road bent toward Vethmoor.`

func main() {
	cfgPath := flag.String("config", config.DefaultConfigFile, "config file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	eng, err := engine.New(st, engine.Config{
		Logger:           logger,
		Extractor:        extract.Options{Chunks: cfg.Extractor.Chunks},
		IndexCacheSize:   cfg.Cache.IndexEntries,
		RefsCacheSize:    cfg.Cache.RefsEntries,
		MetricsCacheSize: cfg.Cache.MetricsEntries,
	})
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	if err := run(eng); err != nil {
		log.Fatalf("demo failed: %v", err)
	}
	fmt.Println("\n✅ Done.")
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = lvl
	return zc.Build()
}

func openStore(cfg *config.Config) (store.Storer, error) {
	if cfg.Store.Path == "" || cfg.Store.Path == ":memory:" {
		return store.NewMemStore(), nil
	}
	return store.NewSQLiteStoreWithDSN(cfg.Store.Path)
}

func run(eng *engine.Engine) error {
	const project = "demo"

	fmt.Println("Seeding entities...")
	aldric, err := eng.CreateEntity(project, "Aldric", "character")
	if err != nil {
		return err
	}
	gate, err := eng.CreateEntity(project, "Black Gate", "place")
	if err != nil {
		return err
	}
	if _, err := eng.AddAlias(gate.ID, "the Gate"); err != nil {
		return err
	}
	fmt.Printf("  ✓ %s (#%d), %s (#%d)\n", aldric.Name, aldric.ID, gate.Name, gate.ID)

	doc, err := eng.Store().CreateDocument(project, "Chapter 1")
	if err != nil {
		return err
	}

	fmt.Println("\nSaving draft...")
	ver, refs, err := eng.SaveDraft(project, doc.ID, draft)
	if err != nil {
		return err
	}
	fmt.Printf("  ✓ version %d, hash %s\n", ver.Number, ver.Hash[:12])
	fmt.Printf("  ✓ references: %v\n", refs)

	fmt.Println("\nExtracting candidates...")
	cands, degraded, err := eng.RecomputeCandidates(project, doc.ID, ver.Number)
	if err != nil {
		return err
	}
	if degraded {
		fmt.Println("  ! tagger unavailable, heuristics only")
	}
	for _, c := range cands {
		fmt.Printf("  ✓ %-24q %-12s %-10s %.2f\n", c.Surface, c.Kind, c.Source, c.Confidence)
	}

	for _, c := range cands {
		if strings.EqualFold(c.Surface, "Mira Holt") {
			ent, err := eng.AcceptCandidate(c.ID, "character")
			if err != nil {
				return err
			}
			fmt.Printf("  ✓ accepted %q as entity #%d\n", c.Surface, ent.ID)
		}
	}

	fmt.Println("\nMentions after accept...")
	mentions, err := eng.FindMentions(project, draft)
	if err != nil {
		return err
	}
	for _, m := range mentions {
		fmt.Printf("  ✓ [%d:%d] %q -> entity #%d\n", m.Start, m.End, draft[m.Start:m.End], m.Phrase.EntityID)
	}

	fmt.Println("\nMetrics...")
	met, err := eng.Metrics(doc.ID, ver.Number)
	if err != nil {
		return err
	}
	fmt.Printf("  ✓ words=%d sentences=%d paragraphs=%d dialogue=%.0f%% pages=%.1f\n",
		met.Words, met.Sentences, met.Paragraphs, met.DialogueRatio*100, met.Pages)
	return nil
}
