// Command ingest loads agricultural feed files into the facts tables and
// rebuilds the vector index.
//
// Usage:
//
//	ingest -weather data/imd.csv -soil data/soil.csv -market data/market.xlsx -rebuild
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/agrisage/agrisage"
	"github.com/agrisage/agrisage/ingest"
	"github.com/agrisage/agrisage/llm"
	"github.com/agrisage/agrisage/store"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	weatherFile := flag.String("weather", "", "Weather forecast feed (CSV/XLSX)")
	soilFile := flag.String("soil", "", "Soil health card feed (CSV/XLSX)")
	marketFile := flag.String("market", "", "Mandi price feed (CSV/XLSX)")
	enamFile := flag.String("enam", "", "eNAM trade feed (CSV/XLSX)")
	clearIndex := flag.Bool("clear", false, "Clear indexed records before loading")
	rebuild := flag.Bool("rebuild", false, "Rebuild the vector index after loading")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	godotenv.Load()

	cfg := agrisage.DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			slog.Error("opening config", "error", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			slog.Error("parsing config", "error", err)
			os.Exit(1)
		}
	}
	if v := os.Getenv("AGRISAGE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	ctx := context.Background()

	s, err := store.New(cfg.ResolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		slog.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	if *clearIndex {
		if err := s.ClearRecords(ctx); err != nil {
			slog.Error("clearing records", "error", err)
			os.Exit(1)
		}
	}

	loader := ingest.NewLoader(s)
	feeds := []struct {
		kind ingest.Kind
		path string
	}{
		{ingest.KindWeather, *weatherFile},
		{ingest.KindSoil, *soilFile},
		{ingest.KindMarket, *marketFile},
		{ingest.KindEnam, *enamFile},
	}

	var loaded int
	for _, f := range feeds {
		if f.path == "" {
			continue
		}
		n, err := loader.LoadFile(ctx, f.kind, f.path)
		if err != nil {
			slog.Error("loading feed", "kind", f.kind, "file", f.path, "error", err)
			os.Exit(1)
		}
		loaded += n
	}

	if loaded == 0 && !*rebuild {
		slog.Error("nothing to do: no feed files given and -rebuild not set")
		flag.Usage()
		os.Exit(2)
	}

	if *rebuild {
		embedder, err := llm.NewProvider(cfg.Embedding)
		if err != nil {
			slog.Error("creating embedding provider", "error", err)
			os.Exit(1)
		}

		indexer := ingest.NewIndexer(s, embedder)
		n, err := indexer.Rebuild(ctx)
		if err != nil {
			slog.Error("rebuilding index", "error", err)
			os.Exit(1)
		}
		slog.Info("index ready", "records", n)
	}
}
