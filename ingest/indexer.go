package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/agrisage/agrisage/llm"
	"github.com/agrisage/agrisage/store"
)

// Indexer rebuilds the vector index from the facts tables. One
// natural-language document is composed per facts row so vector search
// can match free-text farmer questions against tabular data.
type Indexer struct {
	store    *store.Store
	embedder llm.Provider
}

// NewIndexer creates an indexer over the given store and embedder.
func NewIndexer(s *store.Store, embedder llm.Provider) *Indexer {
	return &Indexer{store: s, embedder: embedder}
}

// Rebuild clears the index and re-composes, embeds, and inserts one record
// per facts row. Returns the number of records indexed.
func (ix *Indexer) Rebuild(ctx context.Context) (int, error) {
	records, err := ix.composeRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("composing records: %w", err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no facts rows to index; load feeds first")
	}

	if err := ix.store.ClearRecords(ctx); err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}

	slog.Info("ingest: indexing records", "count", len(records))
	start := time.Now()

	ids := make([]int64, len(records))
	for i, r := range records {
		id, err := ix.store.InsertRecord(ctx, r)
		if err != nil {
			return 0, fmt.Errorf("inserting record: %w", err)
		}
		ids[i] = id
	}

	if err := ix.embedRecords(ctx, records, ids); err != nil {
		return 0, err
	}

	slog.Info("ingest: index rebuilt",
		"records", len(records),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return len(records), nil
}

// composeRecords turns every facts row into an indexable document. Text
// shapes are a behavioral contract with the retrieval layer: the record
// type in metadata drives intent filtering.
func (ix *Indexer) composeRecords(ctx context.Context) ([]store.Record, error) {
	var records []store.Record

	weather, err := ix.store.ListWeather(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range weather {
		records = append(records, store.Record{
			Content: fmt.Sprintf("Weather forecast for %s on %s: %s%% chance of precipitation, max temp %s°C, min temp %s°C",
				w.District, w.Date, num(w.PrecipProb), num(w.MaxTemp), num(w.MinTemp)),
			Meta: store.Metadata{
				Source:   "weather_forecast",
				RowID:    strconv.FormatInt(w.ID, 10),
				District: w.District,
				Date:     w.Date,
				Type:     "weather",
			},
		})
	}

	soil, err := ix.store.ListSoilCards(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range soil {
		records = append(records, store.Record{
			Content: fmt.Sprintf("Soil analysis for %s, %s: pH %s, Nitrogen %s, Phosphorus %s, Potassium %s, Organic Carbon %s%%, Soil Moisture %s%%",
				s.Village, s.District, num(s.PH), num(s.N), num(s.P), num(s.K), num(s.OrganicCarbon), num(s.SoilMoisture)),
			Meta: store.Metadata{
				Source:   "soil_card",
				RowID:    strconv.FormatInt(s.ID, 10),
				District: s.District,
				Village:  s.Village,
				Type:     "soil",
			},
		})
	}

	market, err := ix.store.ListMarketPrices(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range market {
		records = append(records, store.Record{
			Content: fmt.Sprintf("Market price for %s at %s on %s: ₹%s per unit",
				m.Commodity, m.Mandi, m.Date, num(m.Price)),
			Meta: store.Metadata{
				Source:    "market_prices",
				RowID:     strconv.FormatInt(m.ID, 10),
				Commodity: m.Commodity,
				Mandi:     m.Mandi,
				Date:      m.Date,
				Type:      "market",
			},
		})
	}

	trades, err := ix.store.ListEnamTrades(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range trades {
		records = append(records, store.Record{
			Content: fmt.Sprintf("eNAM trade for %s at %s on %s: %s units traded at ₹%s",
				t.Commodity, t.Mandi, t.Date, num(t.Volume), num(t.Price)),
			Meta: store.Metadata{
				Source:    "enam_trades",
				RowID:     strconv.FormatInt(t.ID, 10),
				Commodity: t.Commodity,
				Mandi:     t.Mandi,
				Date:      t.Date,
				Type:      "trade",
			},
		})
	}

	return records, nil
}

// embedRecords generates embeddings in batches. A failed batch falls back
// to per-record embedding so one bad record does not lose the batch.
func (ix *Indexer) embedRecords(ctx context.Context, records []store.Record, ids []int64) error {
	const batchSize = 32
	var failed int

	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}

		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			texts[j-i] = records[j].Content
		}

		embeddings, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			slog.Warn("embedding batch failed, falling back to individual",
				"batch_start", i, "batch_end", end, "error", err)
			for j, text := range texts {
				single, serr := ix.embedder.Embed(ctx, []string{text})
				if serr != nil || len(single) == 0 || len(single[0]) == 0 {
					slog.Warn("embedding single record failed",
						"record_id", ids[i+j], "error", serr)
					failed++
					continue
				}
				if serr := ix.store.InsertEmbedding(ctx, ids[i+j], single[0]); serr != nil {
					slog.Warn("storing embedding failed",
						"record_id", ids[i+j], "error", serr)
					failed++
				}
			}
			continue
		}

		for j, emb := range embeddings {
			if err := ix.store.InsertEmbedding(ctx, ids[i+j], emb); err != nil {
				slog.Warn("storing embedding failed",
					"record_id", ids[i+j], "error", err)
				failed++
			}
		}
	}

	if failed == len(records) {
		return fmt.Errorf("all %d records failed embedding", len(records))
	}
	if failed > 0 {
		slog.Warn("some embeddings failed", "failed", failed, "total", len(records))
	}
	return nil
}

// num formats a float the way the upstream feeds print them: no trailing
// zeros, no forced decimals.
func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
