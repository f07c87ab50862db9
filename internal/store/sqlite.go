package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/attribution-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS journeys (
	id                TEXT PRIMARY KEY,
	customer_id       TEXT NOT NULL,
	customer_type     TEXT NOT NULL,
	converted         INTEGER NOT NULL DEFAULT 0,
	conversion_value  REAL NOT NULL DEFAULT 0,
	start_date        DATETIME NOT NULL,
	end_date          DATETIME NOT NULL,
	total_touchpoints INTEGER NOT NULL DEFAULT 0,
	confidence_score  REAL NOT NULL DEFAULT 0,
	confidence_level  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS touchpoints (
	id          TEXT PRIMARY KEY,
	journey_id  TEXT NOT NULL REFERENCES journeys(id),
	channel     TEXT NOT NULL,
	ts          DATETIME NOT NULL,
	campaign_id TEXT
);

CREATE TABLE IF NOT EXISTS attribution_results (
	journey_id  TEXT NOT NULL,
	model       TEXT NOT NULL,
	channel     TEXT NOT NULL,
	weight      REAL NOT NULL,
	value       REAL NOT NULL,
	computed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (journey_id, model, channel)
);

CREATE TABLE IF NOT EXISTS batch_runs (
	id              TEXT PRIMARY KEY,
	model           TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'created',
	chunk_size      INTEGER NOT NULL,
	total_processed INTEGER NOT NULL DEFAULT 0,
	total_errors    INTEGER NOT NULL DEFAULT 0,
	error_messages  TEXT,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME
);

CREATE TABLE IF NOT EXISTS attribution_dlq (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	model       TEXT NOT NULL,
	journey_ids TEXT NOT NULL,
	error       TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_touchpoints_journey_id ON touchpoints(journey_id, ts);
CREATE INDEX IF NOT EXISTS idx_results_model ON attribution_results(model);
CREATE INDEX IF NOT EXISTS idx_journeys_converted ON journeys(converted);
CREATE INDEX IF NOT EXISTS idx_batch_runs_started_at ON batch_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetJourneysByIDs(ctx context.Context, ids []string) ([]model.CustomerJourney, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, customer_id, customer_type, converted, conversion_value,
	          start_date, end_date, total_touchpoints, confidence_score, confidence_level
	          FROM journeys WHERE id IN (` + placeholders(len(ids)) + `)`

	rows, err := s.db.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query journeys")
	}
	defer rows.Close()

	var journeys []model.CustomerJourney
	for rows.Next() {
		var j model.CustomerJourney
		var converted int
		err := rows.Scan(&j.ID, &j.CustomerID, &j.CustomerType, &converted, &j.ConversionValue,
			&j.StartDate, &j.EndDate, &j.TotalTouchpoints, &j.ConfidenceScore, &j.ConfidenceLevel)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan journey")
		}
		j.Converted = converted != 0
		journeys = append(journeys, j)
	}
	return journeys, eris.Wrap(rows.Err(), "sqlite: iterate journeys")
}

func (s *SQLiteStore) GetTouchpointsByJourneyIDs(ctx context.Context, ids []string) ([]model.Touchpoint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id, journey_id, channel, ts, campaign_id FROM touchpoints
	          WHERE journey_id IN (` + placeholders(len(ids)) + `)
	          ORDER BY journey_id, ts ASC`

	rows, err := s.db.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query touchpoints")
	}
	defer rows.Close()

	var tps []model.Touchpoint
	for rows.Next() {
		var tp model.Touchpoint
		var campaign sql.NullString
		if err := rows.Scan(&tp.ID, &tp.JourneyID, &tp.Channel, &tp.Timestamp, &campaign); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan touchpoint")
		}
		tp.CampaignID = campaign.String
		tps = append(tps, tp)
	}
	return tps, eris.Wrap(rows.Err(), "sqlite: iterate touchpoints")
}

func (s *SQLiteStore) ListJourneyIDs(ctx context.Context, filter JourneyFilter) ([]string, error) {
	query := `SELECT id FROM journeys WHERE 1=1`
	var args []any

	if filter.ConvertedOnly {
		query += ` AND converted = 1`
	}
	if filter.MinConfidence > 0 {
		query += ` AND confidence_score >= ?`
		args = append(args, filter.MinConfidence)
	}
	query += ` ORDER BY id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list journey ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan journey id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate journey ids")
}

func (s *SQLiteStore) InsertJourney(ctx context.Context, j model.CustomerJourney, tps []model.Touchpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert journey")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO journeys
		 (id, customer_id, customer_type, converted, conversion_value,
		  start_date, end_date, total_touchpoints, confidence_score, confidence_level)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.CustomerID, string(j.CustomerType), boolToInt(j.Converted), j.ConversionValue,
		j.StartDate.UTC(), j.EndDate.UTC(), j.TotalTouchpoints, j.ConfidenceScore, string(j.ConfidenceLevel),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert journey %s", j.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM touchpoints WHERE journey_id = ?`, j.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear touchpoints for %s", j.ID)
	}
	for _, tp := range tps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO touchpoints (id, journey_id, channel, ts, campaign_id) VALUES (?, ?, ?, ?, ?)`,
			tp.ID, j.ID, tp.Channel, tp.Timestamp.UTC(), nullString(tp.CampaignID),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert touchpoint %s", tp.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert journey")
}

func (s *SQLiteStore) GetAttributionResults(ctx context.Context, ids []string, kind model.ModelKind) ([]model.AttributionResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT journey_id, model, channel, weight, value FROM attribution_results
	          WHERE model = ? AND journey_id IN (` + placeholders(len(ids)) + `)
	          ORDER BY journey_id, channel`

	args := append([]any{string(kind)}, toAnySlice(ids)...)
	return s.queryResults(ctx, query, args...)
}

func (s *SQLiteStore) GetAttributionResultsByModels(ctx context.Context, kinds []model.ModelKind) ([]model.AttributionResult, error) {
	if len(kinds) == 0 {
		return nil, nil
	}

	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = string(k)
	}
	query := `SELECT journey_id, model, channel, weight, value FROM attribution_results
	          WHERE model IN (` + placeholders(len(kinds)) + `)
	          ORDER BY model, journey_id, channel`
	return s.queryResults(ctx, query, args...)
}

func (s *SQLiteStore) queryResults(ctx context.Context, query string, args ...any) ([]model.AttributionResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query results")
	}
	defer rows.Close()

	var results []model.AttributionResult
	for rows.Next() {
		var r model.AttributionResult
		if err := rows.Scan(&r.JourneyID, &r.Model, &r.Channel, &r.Weight, &r.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func (s *SQLiteStore) DeleteAttributionResults(ctx context.Context, ids []string, kind model.ModelKind) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM attribution_results WHERE model = ? AND journey_id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{string(kind)}, toAnySlice(ids)...)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete results")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) BulkInsertAttributionResults(ctx context.Context, results []model.AttributionResult) ([]RowOutcome, error) {
	if len(results) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin bulk insert")
	}
	defer tx.Rollback() //nolint:errcheck

	outcomes := insertResultsTx(ctx, tx, results)

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit bulk insert")
	}
	return outcomes, nil
}

func (s *SQLiteStore) ReplaceAttributionResults(ctx context.Context, ids []string, kind model.ModelKind, results []model.AttributionResult) ([]RowOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if len(ids) > 0 {
		query := `DELETE FROM attribution_results WHERE model = ? AND journey_id IN (` + placeholders(len(ids)) + `)`
		args := append([]any{string(kind)}, toAnySlice(ids)...)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, eris.Wrap(err, "sqlite: replace delete")
		}
	}

	outcomes := insertResultsTx(ctx, tx, results)

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit replace")
	}
	return outcomes, nil
}

// insertResultsTx inserts rows one at a time so each row gets its own
// outcome; a bad row does not poison the rest of the batch.
func insertResultsTx(ctx context.Context, tx *sql.Tx, results []model.AttributionResult) []RowOutcome {
	outcomes := make([]RowOutcome, 0, len(results))
	for _, r := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attribution_results (journey_id, model, channel, weight, value) VALUES (?, ?, ?, ?, ?)`,
			r.JourneyID, string(r.Model), r.Channel, r.Weight, r.Value,
		)
		outcome := RowOutcome{JourneyID: r.JourneyID, Channel: r.Channel, Success: err == nil}
		if err != nil {
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (s *SQLiteStore) CreateBatchRun(ctx context.Context, run *model.BatchRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	msgs, err := json.Marshal(run.ErrorMessages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal error messages")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, model, status, chunk_size, total_processed, total_errors, error_messages, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Model), string(run.Status), run.ChunkSize,
		run.TotalProcessed, run.TotalErrors, string(msgs), run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: insert batch run %s", run.ID)
}

func (s *SQLiteStore) UpdateBatchRun(ctx context.Context, run *model.BatchRun) error {
	msgs, err := json.Marshal(run.ErrorMessages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal error messages")
	}

	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_runs SET status = ?, total_processed = ?, total_errors = ?, error_messages = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.TotalProcessed, run.TotalErrors, string(msgs), finished, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch run %s", run.ID)
	}
	return checkRowsAffected(res, "batch run", run.ID)
}

func (s *SQLiteStore) ListBatchRuns(ctx context.Context, since time.Time, limit int) ([]model.BatchRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, status, chunk_size, total_processed, total_errors, error_messages, started_at, finished_at
		 FROM batch_runs WHERE started_at >= ? ORDER BY started_at DESC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batch runs")
	}
	defer rows.Close()

	var runs []model.BatchRun
	for rows.Next() {
		var run model.BatchRun
		var msgs sql.NullString
		var finished sql.NullTime
		err := rows.Scan(&run.ID, &run.Model, &run.Status, &run.ChunkSize,
			&run.TotalProcessed, &run.TotalErrors, &msgs, &run.StartedAt, &finished)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch run")
		}
		if msgs.Valid && msgs.String != "" && msgs.String != "null" {
			if err := json.Unmarshal([]byte(msgs.String), &run.ErrorMessages); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal error messages")
			}
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate batch runs")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	ids, err := json.Marshal(entry.JourneyIDs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq journey ids")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attribution_dlq (id, run_id, model, journey_ids, error) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, string(entry.Model), string(ids), entry.Error,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, model, journey_ids, error, created_at FROM attribution_dlq
		 ORDER BY created_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close()

	var entries []DLQEntry
	for rows.Next() {
		var e DLQEntry
		var ids string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Model, &ids, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		if err := json.Unmarshal([]byte(ids), &e.JourneyIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq journey ids")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attribution_dlq`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dlq")
}

func (s *SQLiteStore) DeleteDLQ(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM attribution_dlq WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete dlq %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
