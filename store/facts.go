package store

import (
	"context"
	"database/sql"
)

// WeatherRow is one district weather forecast.
type WeatherRow struct {
	ID         int64
	District   string
	Date       string
	PrecipProb float64
	MaxTemp    float64
	MinTemp    float64
}

// SoilRow is one soil health card.
type SoilRow struct {
	ID            int64
	FarmerID      string
	Village       string
	District      string
	PH            float64
	N             float64
	P             float64
	K             float64
	OrganicCarbon float64
	SoilMoisture  float64
}

// MarketRow is one mandi price quote.
type MarketRow struct {
	ID        int64
	Date      string
	Commodity string
	Mandi     string
	Price     float64
}

// EnamRow is one eNAM trade.
type EnamRow struct {
	ID        int64
	Date      string
	Commodity string
	Mandi     string
	Volume    float64
	Price     float64
}

// DistrictFacts carries the most recent weather and soil observations for
// a district. Fields are nil when the underlying column was NULL or no
// soil card matched the join.
type DistrictFacts struct {
	PrecipProb   *float64
	MaxTemp      *float64
	MinTemp      *float64
	SoilMoisture *float64
	SoilN        *float64
	SoilP        *float64
	SoilK        *float64
}

// --- ingest writes ---

// InsertWeather appends weather forecast rows in one transaction.
func (s *Store) InsertWeather(ctx context.Context, rows []WeatherRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO weather_forecast (district, forecast_date, precip_prob, max_temp, min_temp)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.Exec(r.District, r.Date, r.PrecipProb, r.MaxTemp, r.MinTemp); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertSoilCards appends soil health card rows in one transaction.
func (s *Store) InsertSoilCards(ctx context.Context, rows []SoilRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO soil_card (farmer_id, village, district, ph, n, p, k, organic_carbon, soil_moisture)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.Exec(r.FarmerID, r.Village, r.District, r.PH, r.N, r.P, r.K,
				r.OrganicCarbon, r.SoilMoisture); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertMarketPrices appends mandi price rows in one transaction.
func (s *Store) InsertMarketPrices(ctx context.Context, rows []MarketRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO market_prices (price_date, commodity, mandi, price)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.Exec(r.Date, r.Commodity, r.Mandi, r.Price); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertEnamTrades appends eNAM trade rows in one transaction.
func (s *Store) InsertEnamTrades(ctx context.Context, rows []EnamRow) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO enam_trades (trade_date, commodity, mandi, trade_volume, price)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.Exec(r.Date, r.Commodity, r.Mandi, r.Volume, r.Price); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- ingest reads (index build) ---

// ListWeather returns all weather forecast rows.
func (s *Store) ListWeather(ctx context.Context) ([]WeatherRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, district, forecast_date, precip_prob, max_temp, min_temp
		FROM weather_forecast`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WeatherRow
	for rows.Next() {
		var r WeatherRow
		if err := rows.Scan(&r.ID, &r.District, &r.Date, &r.PrecipProb, &r.MaxTemp, &r.MinTemp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSoilCards returns all soil card rows.
func (s *Store) ListSoilCards(ctx context.Context) ([]SoilRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, farmer_id, village, district, ph, n, p, k, organic_carbon, soil_moisture
		FROM soil_card`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SoilRow
	for rows.Next() {
		var r SoilRow
		if err := rows.Scan(&r.ID, &r.FarmerID, &r.Village, &r.District, &r.PH,
			&r.N, &r.P, &r.K, &r.OrganicCarbon, &r.SoilMoisture); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListMarketPrices returns all mandi price rows.
func (s *Store) ListMarketPrices(ctx context.Context) ([]MarketRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, price_date, commodity, mandi, price
		FROM market_prices`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MarketRow
	for rows.Next() {
		var r MarketRow
		if err := rows.Scan(&r.ID, &r.Date, &r.Commodity, &r.Mandi, &r.Price); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListEnamTrades returns all eNAM trade rows.
func (s *Store) ListEnamTrades(ctx context.Context) ([]EnamRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trade_date, commodity, mandi, trade_volume, price
		FROM enam_trades`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnamRow
	for rows.Next() {
		var r EnamRow
		if err := rows.Scan(&r.ID, &r.Date, &r.Commodity, &r.Mandi, &r.Volume, &r.Price); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- answer pipeline reads ---

// LatestObservations returns the most recent weather forecast for a
// district matching the location (fuzzy LIKE), joined with that district's
// soil card. Returns (nil, nil) when no forecast matches; an absent
// observation is not an error.
func (s *Store) LatestObservations(ctx context.Context, district string) (*DistrictFacts, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT w.precip_prob, w.max_temp, w.min_temp, s.soil_moisture, s.n, s.p, s.k
		FROM weather_forecast w
		LEFT JOIN soil_card s ON w.district = s.district
		WHERE w.district LIKE ?
		ORDER BY w.forecast_date DESC
		LIMIT 1
	`, "%"+district+"%")

	var precip, maxT, minT, moisture, n, p, k sql.NullFloat64
	if err := row.Scan(&precip, &maxT, &minT, &moisture, &n, &p, &k); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &DistrictFacts{
		PrecipProb:   nullableFloat(precip),
		MaxTemp:      nullableFloat(maxT),
		MinTemp:      nullableFloat(minT),
		SoilMoisture: nullableFloat(moisture),
		SoilN:        nullableFloat(n),
		SoilP:        nullableFloat(p),
		SoilK:        nullableFloat(k),
	}, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
