package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the vec0
// virtual table dimension and must match the embedding model.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Indexed advisory records: one natural-language row per upstream fact
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    source TEXT NOT NULL,
    row_id TEXT NOT NULL,
    district TEXT,
    village TEXT,
    commodity TEXT,
    mandi TEXT,
    record_date TEXT,
    record_type TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_records USING vec0(
    record_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Relational facts: district weather forecasts
CREATE TABLE IF NOT EXISTS weather_forecast (
    id INTEGER PRIMARY KEY,
    district TEXT,
    forecast_date TEXT,
    precip_prob REAL,
    max_temp REAL,
    min_temp REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Relational facts: soil health cards
CREATE TABLE IF NOT EXISTS soil_card (
    id INTEGER PRIMARY KEY,
    farmer_id TEXT,
    village TEXT,
    district TEXT,
    ph REAL,
    n REAL,
    p REAL,
    k REAL,
    organic_carbon REAL,
    soil_moisture REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Relational facts: mandi market prices
CREATE TABLE IF NOT EXISTS market_prices (
    id INTEGER PRIMARY KEY,
    price_date TEXT,
    commodity TEXT,
    mandi TEXT,
    price REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Relational facts: eNAM trades (optional feed)
CREATE TABLE IF NOT EXISTS enam_trades (
    id INTEGER PRIMARY KEY,
    trade_date TEXT,
    commodity TEXT,
    mandi TEXT,
    trade_volume REAL,
    price REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Query audit log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    query TEXT NOT NULL,
    answer TEXT,
    confidence REAL,
    escalate INTEGER DEFAULT 0,
    fallback_used INTEGER DEFAULT 0,
    gate_reason TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
CREATE INDEX IF NOT EXISTS idx_records_district ON records(district);
CREATE INDEX IF NOT EXISTS idx_weather_district ON weather_forecast(district);
CREATE INDEX IF NOT EXISTS idx_weather_date ON weather_forecast(forecast_date);
CREATE INDEX IF NOT EXISTS idx_soil_district ON soil_card(district);
CREATE INDEX IF NOT EXISTS idx_market_commodity ON market_prices(commodity);
`, embeddingDim)
}
