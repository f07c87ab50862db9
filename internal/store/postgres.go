package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-cli/internal/db"
	"github.com/sells-group/attribution-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS journeys (
	id                TEXT PRIMARY KEY,
	customer_id       TEXT NOT NULL,
	customer_type     TEXT NOT NULL,
	converted         BOOLEAN NOT NULL DEFAULT FALSE,
	conversion_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
	start_date        TIMESTAMPTZ NOT NULL,
	end_date          TIMESTAMPTZ NOT NULL,
	total_touchpoints INTEGER NOT NULL DEFAULT 0,
	confidence_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence_level  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS touchpoints (
	id          TEXT PRIMARY KEY,
	journey_id  TEXT NOT NULL REFERENCES journeys(id),
	channel     TEXT NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	campaign_id TEXT
);

CREATE TABLE IF NOT EXISTS attribution_results (
	journey_id  TEXT NOT NULL,
	model       TEXT NOT NULL,
	channel     TEXT NOT NULL,
	weight      DOUBLE PRECISION NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (journey_id, model, channel)
);

CREATE TABLE IF NOT EXISTS batch_runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	model           TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'created',
	chunk_size      INTEGER NOT NULL,
	total_processed INTEGER NOT NULL DEFAULT 0,
	total_errors    INTEGER NOT NULL DEFAULT 0,
	error_messages  JSONB,
	started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS attribution_dlq (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL,
	model       TEXT NOT NULL,
	journey_ids JSONB NOT NULL,
	error       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_touchpoints_journey_id ON touchpoints(journey_id, ts);
CREATE INDEX IF NOT EXISTS idx_results_model ON attribution_results(model);
CREATE INDEX IF NOT EXISTS idx_journeys_converted ON journeys(converted);
CREATE INDEX IF NOT EXISTS idx_batch_runs_started_at ON batch_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetJourneysByIDs(ctx context.Context, ids []string) ([]model.CustomerJourney, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_id, customer_type, converted, conversion_value,
		        start_date, end_date, total_touchpoints, confidence_score, confidence_level
		 FROM journeys WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query journeys")
	}
	defer rows.Close()

	var journeys []model.CustomerJourney
	for rows.Next() {
		var j model.CustomerJourney
		err := rows.Scan(&j.ID, &j.CustomerID, &j.CustomerType, &j.Converted, &j.ConversionValue,
			&j.StartDate, &j.EndDate, &j.TotalTouchpoints, &j.ConfidenceScore, &j.ConfidenceLevel)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan journey")
		}
		journeys = append(journeys, j)
	}
	return journeys, eris.Wrap(rows.Err(), "postgres: iterate journeys")
}

func (s *PostgresStore) GetTouchpointsByJourneyIDs(ctx context.Context, ids []string) ([]model.Touchpoint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, journey_id, channel, ts, COALESCE(campaign_id, '') FROM touchpoints
		 WHERE journey_id = ANY($1) ORDER BY journey_id, ts ASC`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query touchpoints")
	}
	defer rows.Close()

	var tps []model.Touchpoint
	for rows.Next() {
		var tp model.Touchpoint
		if err := rows.Scan(&tp.ID, &tp.JourneyID, &tp.Channel, &tp.Timestamp, &tp.CampaignID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan touchpoint")
		}
		tps = append(tps, tp)
	}
	return tps, eris.Wrap(rows.Err(), "postgres: iterate touchpoints")
}

func (s *PostgresStore) ListJourneyIDs(ctx context.Context, filter JourneyFilter) ([]string, error) {
	query := `SELECT id FROM journeys WHERE 1=1`
	var args []any

	if filter.ConvertedOnly {
		query += ` AND converted`
	}
	if filter.MinConfidence > 0 {
		args = append(args, filter.MinConfidence)
		query += ` AND confidence_score >= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY id`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list journey ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan journey id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate journey ids")
}

func (s *PostgresStore) InsertJourney(ctx context.Context, j model.CustomerJourney, tps []model.Touchpoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin insert journey")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO journeys
		 (id, customer_id, customer_type, converted, conversion_value,
		  start_date, end_date, total_touchpoints, confidence_score, confidence_level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   customer_id = EXCLUDED.customer_id,
		   customer_type = EXCLUDED.customer_type,
		   converted = EXCLUDED.converted,
		   conversion_value = EXCLUDED.conversion_value,
		   start_date = EXCLUDED.start_date,
		   end_date = EXCLUDED.end_date,
		   total_touchpoints = EXCLUDED.total_touchpoints,
		   confidence_score = EXCLUDED.confidence_score,
		   confidence_level = EXCLUDED.confidence_level`,
		j.ID, j.CustomerID, string(j.CustomerType), j.Converted, j.ConversionValue,
		j.StartDate.UTC(), j.EndDate.UTC(), j.TotalTouchpoints, j.ConfidenceScore, string(j.ConfidenceLevel),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert journey %s", j.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM touchpoints WHERE journey_id = $1`, j.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear touchpoints for %s", j.ID)
	}

	if len(tps) > 0 {
		rows := make([][]any, len(tps))
		for i, tp := range tps {
			rows[i] = []any{tp.ID, j.ID, tp.Channel, tp.Timestamp.UTC(), nullString(tp.CampaignID)}
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"touchpoints"},
			[]string{"id", "journey_id", "channel", "ts", "campaign_id"}, pgx.CopyFromRows(rows))
		if err != nil {
			return eris.Wrapf(err, "postgres: copy touchpoints for %s", j.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit insert journey")
}

func (s *PostgresStore) GetAttributionResults(ctx context.Context, ids []string, kind model.ModelKind) ([]model.AttributionResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryResults(ctx,
		`SELECT journey_id, model, channel, weight, value FROM attribution_results
		 WHERE model = $1 AND journey_id = ANY($2) ORDER BY journey_id, channel`,
		string(kind), ids)
}

func (s *PostgresStore) GetAttributionResultsByModels(ctx context.Context, kinds []model.ModelKind) ([]model.AttributionResult, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return s.queryResults(ctx,
		`SELECT journey_id, model, channel, weight, value FROM attribution_results
		 WHERE model = ANY($1) ORDER BY model, journey_id, channel`, names)
}

func (s *PostgresStore) queryResults(ctx context.Context, query string, args ...any) ([]model.AttributionResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query results")
	}
	defer rows.Close()

	var results []model.AttributionResult
	for rows.Next() {
		var r model.AttributionResult
		if err := rows.Scan(&r.JourneyID, &r.Model, &r.Channel, &r.Weight, &r.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func (s *PostgresStore) DeleteAttributionResults(ctx context.Context, ids []string, kind model.ModelKind) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM attribution_results WHERE model = $1 AND journey_id = ANY($2)`,
		string(kind), ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete results")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) BulkInsertAttributionResults(ctx context.Context, results []model.AttributionResult) ([]RowOutcome, error) {
	if len(results) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin bulk insert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	outcomes, err := insertResultsPgTx(ctx, tx, results)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit bulk insert")
	}
	return outcomes, nil
}

func (s *PostgresStore) ReplaceAttributionResults(ctx context.Context, ids []string, kind model.ModelKind, results []model.AttributionResult) ([]RowOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin replace")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if len(ids) > 0 {
		_, err := tx.Exec(ctx,
			`DELETE FROM attribution_results WHERE model = $1 AND journey_id = ANY($2)`,
			string(kind), ids)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: replace delete")
		}
	}

	outcomes, err := insertResultsPgTx(ctx, tx, results)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit replace")
	}
	return outcomes, nil
}

// insertResultsPgTx inserts each row inside its own savepoint so a failed
// row does not abort the enclosing transaction.
func insertResultsPgTx(ctx context.Context, tx pgx.Tx, results []model.AttributionResult) ([]RowOutcome, error) {
	outcomes := make([]RowOutcome, 0, len(results))
	for _, r := range results {
		sub, err := tx.Begin(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: savepoint")
		}
		_, execErr := sub.Exec(ctx,
			`INSERT INTO attribution_results (journey_id, model, channel, weight, value) VALUES ($1, $2, $3, $4, $5)`,
			r.JourneyID, string(r.Model), r.Channel, r.Weight, r.Value,
		)
		outcome := RowOutcome{JourneyID: r.JourneyID, Channel: r.Channel, Success: execErr == nil}
		if execErr != nil {
			outcome.Error = execErr.Error()
			sub.Rollback(ctx) //nolint:errcheck
		} else if err := sub.Commit(ctx); err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *PostgresStore) CreateBatchRun(ctx context.Context, run *model.BatchRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	msgs, err := json.Marshal(run.ErrorMessages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal error messages")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO batch_runs (id, model, status, chunk_size, total_processed, total_errors, error_messages, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, string(run.Model), string(run.Status), run.ChunkSize,
		run.TotalProcessed, run.TotalErrors, msgs, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert batch run %s", run.ID)
}

func (s *PostgresStore) UpdateBatchRun(ctx context.Context, run *model.BatchRun) error {
	msgs, err := json.Marshal(run.ErrorMessages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal error messages")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE batch_runs SET status = $1, total_processed = $2, total_errors = $3, error_messages = $4, finished_at = $5
		 WHERE id = $6`,
		string(run.Status), run.TotalProcessed, run.TotalErrors, msgs, run.FinishedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("batch run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListBatchRuns(ctx context.Context, since time.Time, limit int) ([]model.BatchRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, model, status, chunk_size, total_processed, total_errors, error_messages, started_at, finished_at
		 FROM batch_runs WHERE started_at >= $1 ORDER BY started_at DESC LIMIT $2`,
		since.UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batch runs")
	}
	defer rows.Close()

	var runs []model.BatchRun
	for rows.Next() {
		var run model.BatchRun
		var msgs []byte
		err := rows.Scan(&run.ID, &run.Model, &run.Status, &run.ChunkSize,
			&run.TotalProcessed, &run.TotalErrors, &msgs, &run.StartedAt, &run.FinishedAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch run")
		}
		if len(msgs) > 0 {
			if err := json.Unmarshal(msgs, &run.ErrorMessages); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal error messages")
			}
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate batch runs")
}

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	ids, err := json.Marshal(entry.JourneyIDs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq journey ids")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO attribution_dlq (id, run_id, model, journey_ids, error) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.RunID, string(entry.Model), ids, entry.Error,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, limit int) ([]DLQEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, model, journey_ids, error, created_at FROM attribution_dlq
		 ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []DLQEntry
	for rows.Next() {
		var e DLQEntry
		var ids []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Model, &ids, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		if err := json.Unmarshal(ids, &e.JourneyIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq journey ids")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attribution_dlq`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count dlq")
}

func (s *PostgresStore) DeleteDLQ(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attribution_dlq WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete dlq %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}
