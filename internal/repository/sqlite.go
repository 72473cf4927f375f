package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so TEXT ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS offers (
		doc_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		market_id TEXT NOT NULL,
		market_name TEXT NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		quantity_value REAL,
		quantity_unit TEXT,
		normalized_price TEXT,
		normalized_unit TEXT,
		price_display TEXT NOT NULL,
		availability TEXT NOT NULL,
		status TEXT NOT NULL,
		comparable INTEGER NOT NULL,
		search_query TEXT NOT NULL,
		cep TEXT NOT NULL DEFAULT '',
		collected_at TEXT NOT NULL,
		parser_version TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_query ON offers(search_query)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_market ON offers(market_id)`,
	`CREATE TABLE IF NOT EXISTS raw_records (id TEXT PRIMARY KEY, seq INTEGER NOT NULL, data TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS collection_runs (run_id TEXT PRIMARY KEY, started_at TEXT NOT NULL, data TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS statistics (search_query TEXT PRIMARY KEY, updated_at TEXT NOT NULL, data TEXT NOT NULL)`,
}

// SQLiteStore persists offers, raw records, runs and statistics in a local SQLite file.
// Offers are stored column by column with decimals as TEXT; the rest as JSON documents.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

const upsertOffer = `INSERT INTO offers (
	doc_id, id, market_id, market_name, title, url, image_url, price, quantity_value, quantity_unit,
	normalized_price, normalized_unit, price_display, availability, status, comparable, search_query,
	cep, collected_at, parser_version, seq
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	(SELECT COALESCE(MAX(seq), 0) + 1 FROM offers))
ON CONFLICT(doc_id) DO UPDATE SET
	id = excluded.id, market_name = excluded.market_name, image_url = excluded.image_url,
	price = excluded.price, quantity_value = excluded.quantity_value, quantity_unit = excluded.quantity_unit,
	normalized_price = excluded.normalized_price, normalized_unit = excluded.normalized_unit,
	price_display = excluded.price_display, availability = excluded.availability, status = excluded.status,
	comparable = excluded.comparable, search_query = excluded.search_query, cep = excluded.cep,
	collected_at = excluded.collected_at, parser_version = excluded.parser_version`

func (s *SQLiteStore) SaveOffers(ctx context.Context, offers []model.PriceOffer) error {
	if len(offers) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertOffer)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, o := range offers {
		var normalized, normalizedUnit, quantityUnit sql.NullString
		if o.NormalizedPrice != nil {
			normalized = sql.NullString{String: o.NormalizedPrice.String(), Valid: true}
		}
		if o.NormalizedUnit != nil {
			normalizedUnit = sql.NullString{String: string(*o.NormalizedUnit), Valid: true}
		}
		if o.QuantityUnit != nil {
			quantityUnit = sql.NullString{String: string(*o.QuantityUnit), Valid: true}
		}
		var quantity sql.NullFloat64
		if o.QuantityValue != nil {
			quantity = sql.NullFloat64{Float64: *o.QuantityValue, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			offerDocumentID(o), o.ID, o.MarketID, o.MarketName, o.Title, o.URL, o.ImageURL,
			o.Price.String(), quantity, quantityUnit, normalized, normalizedUnit, o.PriceDisplay,
			string(o.Availability), string(o.Status), o.IsComparable(), o.SearchQuery, o.CEP,
			o.CollectedAt.UTC().Format(sqliteTimeLayout), o.ParserVersion,
		)
		if err != nil {
			return fmt.Errorf("upsert offer %q: %w", o.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListOffers returns matching offers in first-saved order.
func (s *SQLiteStore) ListOffers(ctx context.Context, q model.OfferQuery) ([]model.PriceOffer, error) {
	query := `SELECT id, market_id, market_name, title, url, image_url, price, quantity_value, quantity_unit,
		normalized_price, normalized_unit, price_display, availability, status, search_query, cep,
		collected_at, parser_version FROM offers`
	var where []string
	var args []any
	if q.SearchQuery != "" {
		where = append(where, "search_query = ?")
		args = append(args, q.SearchQuery)
	}
	if q.MarketID != "" {
		where = append(where, "market_id = ?")
		args = append(args, q.MarketID)
	}
	if q.ComparableOnly {
		where = append(where, "comparable = 1")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var out []model.PriceOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return out, nil
}

func scanOffer(rows *sql.Rows) (model.PriceOffer, error) {
	var (
		o                                      model.PriceOffer
		price, availability, status, collected string
		quantity                               sql.NullFloat64
		quantityUnit, normalized, normUnit     sql.NullString
	)
	err := rows.Scan(&o.ID, &o.MarketID, &o.MarketName, &o.Title, &o.URL, &o.ImageURL, &price,
		&quantity, &quantityUnit, &normalized, &normUnit, &o.PriceDisplay, &availability, &status,
		&o.SearchQuery, &o.CEP, &collected, &o.ParserVersion)
	if err != nil {
		return model.PriceOffer{}, fmt.Errorf("scan offer: %w", err)
	}

	if o.Price, err = decimal.NewFromString(price); err != nil {
		return model.PriceOffer{}, fmt.Errorf("decode price %q: %w", price, err)
	}
	if o.CollectedAt, err = time.Parse(sqliteTimeLayout, collected); err != nil {
		return model.PriceOffer{}, fmt.Errorf("decode collected_at %q: %w", collected, err)
	}
	o.Availability = model.Availability(availability)
	o.Status = model.NormalizationStatus(status)
	if quantity.Valid {
		v := quantity.Float64
		o.QuantityValue = &v
	}
	if quantityUnit.Valid {
		u := model.Unit(quantityUnit.String)
		o.QuantityUnit = &u
	}
	if normalized.Valid {
		np, err := decimal.NewFromString(normalized.String)
		if err != nil {
			return model.PriceOffer{}, fmt.Errorf("decode normalized price %q: %w", normalized.String, err)
		}
		o.NormalizedPrice = &np
	}
	if normUnit.Valid {
		u := model.Unit(normUnit.String)
		o.NormalizedUnit = &u
	}
	return o, nil
}

func (s *SQLiteStore) SaveRaw(ctx context.Context, raws []model.StoredRaw) error {
	if len(raws) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range raws {
		if r.ID == "" {
			return fmt.Errorf("raw record id is required")
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode raw record %s: %w", r.ID, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO raw_records (id, seq, data)
			VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM raw_records), ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`, r.ID, string(data))
		if err != nil {
			return fmt.Errorf("upsert raw record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FetchRaw(ctx context.Context) ([]model.StoredRaw, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM raw_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query raw records: %w", err)
	}
	defer rows.Close()

	var out []model.StoredRaw
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan raw record: %w", err)
		}
		var r model.StoredRaw
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode raw record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.CollectionRun) error {
	if run.RunID == "" {
		return fmt.Errorf("runId is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.RunID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO collection_runs (run_id, started_at, data) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET started_at = excluded.started_at, data = excluded.data`,
		run.RunID, run.StartedAt.UTC().Format(sqliteTimeLayout), string(data))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run model.CollectionRun) error {
	return s.CreateRun(ctx, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (model.CollectionRun, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM collection_runs WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CollectionRun{}, fmt.Errorf("run %s: %w", runID, model.ErrNotFound)
	}
	if err != nil {
		return model.CollectionRun{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	var run model.CollectionRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return model.CollectionRun{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.CollectionRun, error) {
	query := `SELECT data FROM collection_runs ORDER BY started_at DESC, run_id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []model.CollectionRun
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		var run model.CollectionRun
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveStatistics(ctx context.Context, searchQuery string, stats model.Statistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO statistics (search_query, updated_at, data) VALUES (?, ?, ?)
		ON CONFLICT(search_query) DO UPDATE SET updated_at = excluded.updated_at, data = excluded.data`,
		searchQuery, time.Now().UTC().Format(sqliteTimeLayout), string(data))
	if err != nil {
		return fmt.Errorf("save statistics: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetStatistics(ctx context.Context, searchQuery string) (model.Statistics, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM statistics WHERE search_query = ?`, searchQuery).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Statistics{}, fmt.Errorf("statistics for %q: %w", searchQuery, model.ErrNotFound)
	}
	if err != nil {
		return model.Statistics{}, fmt.Errorf("get statistics: %w", err)
	}
	var stats model.Statistics
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return model.Statistics{}, fmt.Errorf("decode statistics: %w", err)
	}
	return stats, nil
}
