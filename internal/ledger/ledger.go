// Package ledger is the intelligence ledger: a SQLite table of every
// prediction the reasoning loop emits, the prices that followed, and
// the success scores the auditor assigns at 1h, 4h, and 12h.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so lexicographic order on the stored text
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timeframes lists the audit horizons in ascending order
var Timeframes = []string{"1h", "4h", "12h"}

// Prediction is one ledger row
type Prediction struct {
	ID                int64      `json:"id"`
	Timestamp         time.Time  `json:"timestamp"`
	PredictedBias     string     `json:"predicted_bias"`
	PredictedOutcome  string     `json:"predicted_outcome"`
	Confidence        float64    `json:"confidence"`
	MarketRegime      string     `json:"market_regime"`
	Archetype         string     `json:"archetype"`
	Signal            string     `json:"signal"`
	PriceAtPrediction float64    `json:"price_at_prediction"`
	ActualPrice1h     *float64   `json:"actual_price_1h,omitempty"`
	ActualPrice4h     *float64   `json:"actual_price_4h,omitempty"`
	ActualPrice12h    *float64   `json:"actual_price_12h,omitempty"`
	SuccessScore1h    *float64   `json:"success_score_1h,omitempty"`
	SuccessScore4h    *float64   `json:"success_score_4h,omitempty"`
	SuccessScore12h   *float64   `json:"success_score_12h,omitempty"`
	Audited           bool       `json:"audited"`
	AvgScore          float64    `json:"avg_score,omitempty"`
}

// Score returns the success score for a timeframe, if set
func (p *Prediction) Score(timeframe string) *float64 {
	switch timeframe {
	case "1h":
		return p.SuccessScore1h
	case "4h":
		return p.SuccessScore4h
	case "12h":
		return p.SuccessScore12h
	default:
		return nil
	}
}

// Statistics summarizes the ledger
type Statistics struct {
	TotalPredictions   int     `json:"total_predictions"`
	AuditedPredictions int     `json:"audited_predictions"`
	PendingAudit       int     `json:"pending_audit"`
	AvgScore1h         float64 `json:"avg_score_1h"`
	AvgScore4h         float64 `json:"avg_score_4h"`
	AvgScore12h        float64 `json:"avg_score_12h"`
}

// Ledger owns the predictions database
type Ledger struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	predicted_bias TEXT,
	predicted_outcome TEXT,
	confidence REAL,
	market_regime TEXT,
	archetype TEXT,
	signal TEXT,
	price_at_prediction REAL,
	actual_price_1h REAL,
	actual_price_4h REAL,
	actual_price_12h REAL,
	success_score_1h REAL,
	success_score_4h REAL,
	success_score_12h REAL,
	audited INTEGER DEFAULT 0,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(timestamp);
CREATE INDEX IF NOT EXISTS idx_predictions_audited ON predictions(audited);
`

// Open creates or opens the ledger database at path and ensures the
// schema exists
func Open(path string) (*Ledger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Intelligence ledger opened")
	return &Ledger{db: db, path: path, now: time.Now}, nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Health checks database connectivity
func (l *Ledger) Health(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Record inserts a new prediction and returns its id
func (l *Ledger) Record(ctx context.Context, p *Prediction) (int64, error) {
	ts := l.now().UTC()

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO predictions (
			timestamp, predicted_bias, predicted_outcome, confidence,
			market_regime, archetype, signal, price_at_prediction
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.Format(timeLayout), p.PredictedBias, p.PredictedOutcome, p.Confidence,
		p.MarketRegime, p.Archetype, p.Signal, p.PriceAtPrediction,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record prediction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read prediction id: %w", err)
	}

	log.Info().
		Int64("id", id).
		Str("bias", p.PredictedBias).
		Str("outcome", p.PredictedOutcome).
		Msg("Recorded prediction")
	return id, nil
}

// SetActualPrice stores the observed price for one audit timeframe
func (l *Ledger) SetActualPrice(ctx context.Context, id int64, price float64, timeframe string) error {
	column, err := priceColumn(timeframe)
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE predictions SET %s = ? WHERE id = ?", column), price, id)
	if err != nil {
		return fmt.Errorf("failed to set actual price: %w", err)
	}
	return nil
}

// SetScore stores the success score for one audit timeframe
func (l *Ledger) SetScore(ctx context.Context, id int64, timeframe string, score float64) error {
	column, err := scoreColumn(timeframe)
	if err != nil {
		return err
	}

	_, err = l.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE predictions SET %s = ? WHERE id = ?", column), score, id)
	if err != nil {
		return fmt.Errorf("failed to set success score: %w", err)
	}
	return nil
}

// Unaudited returns predictions old enough for the given timeframe that
// have no score there yet, newest first, capped at 100
func (l *Ledger) Unaudited(ctx context.Context, timeframe string, minAgeHours int) ([]Prediction, error) {
	column, err := scoreColumn(timeframe)
	if err != nil {
		return nil, err
	}

	cutoff := l.now().UTC().Add(-time.Duration(minAgeHours) * time.Hour)
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM predictions
		WHERE timestamp <= ? AND %s IS NULL
		ORDER BY timestamp DESC
		LIMIT 100`, selectColumns, column),
		cutoff.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unaudited predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows, false)
}

// MarkAudited flips the audited flag. The update only takes effect once
// all three success scores are present, and the returned bool reports
// whether it did.
func (l *Ledger) MarkAudited(ctx context.Context, id int64) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		UPDATE predictions SET audited = 1
		WHERE id = ?
		AND success_score_1h IS NOT NULL
		AND success_score_4h IS NOT NULL
		AND success_score_12h IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark prediction audited: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read audit update count: %w", err)
	}
	return n > 0, nil
}

// Failed returns the worst-scoring confident predictions, for the
// evolutionary mutator to learn from
func (l *Ledger) Failed(ctx context.Context, limit int, minConfidence float64) ([]Prediction, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s,
		       (COALESCE(success_score_1h, 0) +
		        COALESCE(success_score_4h, 0) +
		        COALESCE(success_score_12h, 0)) / 3 AS avg_score
		FROM predictions
		WHERE confidence >= ?
		AND (success_score_1h IS NOT NULL OR
		     success_score_4h IS NOT NULL OR
		     success_score_12h IS NOT NULL)
		ORDER BY avg_score ASC
		LIMIT ?`, selectColumns),
		minConfidence, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed predictions: %w", err)
	}
	defer rows.Close()

	return scanPredictions(rows, true)
}

// Get returns a single prediction by id
func (l *Ledger) Get(ctx context.Context, id int64) (*Prediction, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM predictions WHERE id = ?", selectColumns), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction: %w", err)
	}
	defer rows.Close()

	preds, err := scanPredictions(rows, false)
	if err != nil {
		return nil, err
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("prediction %d not found", id)
	}
	return &preds[0], nil
}

// Statistics summarizes the whole ledger
func (l *Ledger) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}

	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(audited), 0) FROM predictions").
		Scan(&stats.TotalPredictions, &stats.AuditedPredictions)
	if err != nil {
		return nil, fmt.Errorf("failed to count predictions: %w", err)
	}
	stats.PendingAudit = stats.TotalPredictions - stats.AuditedPredictions

	var avg1h, avg4h, avg12h sql.NullFloat64
	err = l.db.QueryRowContext(ctx, `
		SELECT AVG(success_score_1h), AVG(success_score_4h), AVG(success_score_12h)
		FROM predictions
		WHERE success_score_1h IS NOT NULL`).
		Scan(&avg1h, &avg4h, &avg12h)
	if err != nil {
		return nil, fmt.Errorf("failed to average scores: %w", err)
	}
	stats.AvgScore1h = avg1h.Float64
	stats.AvgScore4h = avg4h.Float64
	stats.AvgScore12h = avg12h.Float64

	return stats, nil
}

const selectColumns = `id, timestamp, predicted_bias, predicted_outcome, confidence,
	market_regime, archetype, signal, price_at_prediction,
	actual_price_1h, actual_price_4h, actual_price_12h,
	success_score_1h, success_score_4h, success_score_12h, audited`

func scanPredictions(rows *sql.Rows, withAvg bool) ([]Prediction, error) {
	var out []Prediction
	for rows.Next() {
		var (
			p         Prediction
			ts        string
			bias      sql.NullString
			outcome   sql.NullString
			regime    sql.NullString
			archetype sql.NullString
			signal    sql.NullString
			actual1h  sql.NullFloat64
			actual4h  sql.NullFloat64
			actual12h sql.NullFloat64
			score1h   sql.NullFloat64
			score4h   sql.NullFloat64
			score12h  sql.NullFloat64
			audited   int
		)

		dest := []any{
			&p.ID, &ts, &bias, &outcome, &p.Confidence,
			&regime, &archetype, &signal, &p.PriceAtPrediction,
			&actual1h, &actual4h, &actual12h,
			&score1h, &score4h, &score12h, &audited,
		}
		if withAvg {
			dest = append(dest, &p.AvgScore)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}

		parsed, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prediction timestamp %q: %w", ts, err)
		}
		p.Timestamp = parsed
		p.PredictedBias = bias.String
		p.PredictedOutcome = outcome.String
		p.MarketRegime = regime.String
		p.Archetype = archetype.String
		p.Signal = signal.String
		p.ActualPrice1h = nullableFloat(actual1h)
		p.ActualPrice4h = nullableFloat(actual4h)
		p.ActualPrice12h = nullableFloat(actual12h)
		p.SuccessScore1h = nullableFloat(score1h)
		p.SuccessScore4h = nullableFloat(score4h)
		p.SuccessScore12h = nullableFloat(score12h)
		p.Audited = audited != 0

		out = append(out, p)
	}
	return out, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func scoreColumn(timeframe string) (string, error) {
	switch timeframe {
	case "1h":
		return "success_score_1h", nil
	case "4h":
		return "success_score_4h", nil
	case "12h":
		return "success_score_12h", nil
	default:
		return "", fmt.Errorf("unknown audit timeframe: %s", timeframe)
	}
}

func priceColumn(timeframe string) (string, error) {
	switch timeframe {
	case "1h":
		return "actual_price_1h", nil
	case "4h":
		return "actual_price_4h", nil
	case "12h":
		return "actual_price_12h", nil
	default:
		return "", fmt.Errorf("unknown audit timeframe: %s", timeframe)
	}
}
