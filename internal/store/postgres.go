package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/ocr"
)

// DB is the slice of pgxpool.Pool the store needs; pgxmock implements it
// too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresConfig controls the connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Postgres implements CaseStore and FailureLedger on a pgx pool.
type Postgres struct {
	db  DB
	log *zap.Logger
}

// NewPostgres connects a pool and pings it so misconfiguration fails at
// startup.
func NewPostgres(ctx context.Context, cfg PostgresConfig, log *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPostgresWithDB(pool, log), nil
}

// NewPostgresWithDB wraps an existing pool, primarily for testing with
// pgxmock.
func NewPostgresWithDB(db DB, log *zap.Logger) *Postgres {
	if log == nil {
		log = zap.NewNop()
	}
	return &Postgres{db: db, log: log}
}

// CreateCase inserts the skeleton row, or returns the existing row's id
// when the correlation id has been seen before.
func (p *Postgres) CreateCase(ctx context.Context, seed CaseSeed) (int64, error) {
	const query = `
INSERT INTO cases (correlation_id, post_url, title, nationality, crawled_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (correlation_id) DO UPDATE SET post_url = EXCLUDED.post_url
RETURNING id`

	createdAt := seed.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := p.db.QueryRow(ctx, query,
		seed.CorrelationID, seed.PostURL, seed.Title, DefaultNationality, createdAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create case for %q: %w", seed.CorrelationID, err)
	}
	return id, nil
}

// UpdateCaseFields writes the OCR text and parsed fields onto an
// existing case. The extract-text stage calls this so the fields survive
// even when finalize never succeeds.
func (p *Postgres) UpdateCaseFields(ctx context.Context, caseID int64, ocrText string, parsed ocr.ParsedCase) error {
	const query = `
UPDATE cases SET
	category = $2,
	person_name = $3,
	age = $4,
	gender = $5,
	occurred_at = $6,
	occurred_location = $7,
	height_cm = $8,
	weight_kg = $9,
	body_type = $10,
	face_shape = $11,
	hair_color = $12,
	hair_style = $13,
	clothing = $14,
	features = $15,
	status = $16,
	ocr_text = $17,
	updated_at = NOW()
WHERE id = $1`

	tag, err := p.db.Exec(ctx, query,
		caseID,
		parsed.Category,
		parsed.PersonName,
		nullableInt(parsed.Age),
		parsed.Gender,
		nullableString(parsed.OccurredAt),
		parsed.OccurredLocation,
		nullableInt(parsed.HeightCM),
		nullableInt(parsed.WeightKG),
		parsed.BodyType,
		parsed.FaceShape,
		parsed.HairColor,
		parsed.HairStyle,
		parsed.Clothing,
		parsed.Features,
		parsed.Status,
		ocrText,
	)
	if err != nil {
		return fmt.Errorf("failed to update fields on case %d: %w", caseID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("case %d does not exist", caseID)
	}
	return nil
}

// FinalizeCase writes the parsed fields, files, and contacts in one
// transaction. Files and contacts are replaced wholesale so a retried
// finalize converges instead of accumulating duplicates.
func (p *Postgres) FinalizeCase(ctx context.Context, update CaseUpdate) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin finalize transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			p.log.Warn("failed to roll back finalize transaction", zap.Error(err))
		}
	}()

	const updateCase = `
UPDATE cases SET
	category = $2,
	person_name = $3,
	age = $4,
	gender = $5,
	occurred_at = $6,
	occurred_location = $7,
	latitude = $8,
	longitude = $9,
	height_cm = $10,
	weight_kg = $11,
	body_type = $12,
	face_shape = $13,
	hair_color = $14,
	hair_style = $15,
	clothing = $16,
	features = $17,
	status = $18,
	ocr_text = $19,
	manual_review = $20,
	updated_at = NOW()
WHERE id = $1`

	parsed := update.Parsed
	tag, err := tx.Exec(ctx, updateCase,
		update.CaseID,
		parsed.Category,
		parsed.PersonName,
		nullableInt(parsed.Age),
		parsed.Gender,
		nullableString(parsed.OccurredAt),
		parsed.OccurredLocation,
		update.Latitude,
		update.Longitude,
		nullableInt(parsed.HeightCM),
		nullableInt(parsed.WeightKG),
		parsed.BodyType,
		parsed.FaceShape,
		parsed.HairColor,
		parsed.HairStyle,
		parsed.Clothing,
		parsed.Features,
		parsed.Status,
		update.OCRText,
		update.ManualReview,
	)
	if err != nil {
		return fmt.Errorf("failed to update case %d: %w", update.CaseID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("case %d does not exist", update.CaseID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM case_files WHERE case_id = $1`, update.CaseID); err != nil {
		return fmt.Errorf("failed to clear files for case %d: %w", update.CaseID, err)
	}
	for _, f := range update.Files {
		_, err := tx.Exec(ctx,
			`INSERT INTO case_files (case_id, seq, kind, object_key, url) VALUES ($1, $2, $3, $4, $5)`,
			update.CaseID, f.Seq, string(f.Kind), f.Key, f.URL)
		if err != nil {
			return fmt.Errorf("failed to insert file %q for case %d: %w", f.Key, update.CaseID, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM case_contacts WHERE case_id = $1`, update.CaseID); err != nil {
		return fmt.Errorf("failed to clear contacts for case %d: %w", update.CaseID, err)
	}
	for _, c := range update.Contacts {
		_, err := tx.Exec(ctx,
			`INSERT INTO case_contacts (case_id, organization, phone_number) VALUES ($1, $2, $3)`,
			update.CaseID, c.Organization, c.PhoneNumber)
		if err != nil {
			return fmt.Errorf("failed to insert contact %q for case %d: %w", c.PhoneNumber, update.CaseID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit finalize transaction: %w", err)
	}
	return nil
}

// SetManualReview flags a case for hand processing.
func (p *Postgres) SetManualReview(ctx context.Context, caseID int64, needed bool) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE cases SET manual_review = $2, updated_at = NOW() WHERE id = $1`,
		caseID, needed)
	if err != nil {
		return fmt.Errorf("failed to set manual review on case %d: %w", caseID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("case %d does not exist", caseID)
	}
	return nil
}

// Record writes one permanent-failure row. A repeated correlation id is
// a no-op, so the sweeper can safely process the same corpse twice.
func (p *Postgres) Record(ctx context.Context, failure PermanentFailure) error {
	const query = `
INSERT INTO permanent_failures
	(correlation_id, origin_queue, failure_class, title, detail, sweep_count, event_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (correlation_id) DO NOTHING`

	_, err := p.db.Exec(ctx, query,
		failure.CorrelationID,
		failure.OriginQueue,
		failure.FailureClass,
		failure.Title,
		failure.Detail,
		failure.SweepCount,
		nullableTime(failure.EventAt),
		failure.Payload)
	if err != nil {
		return fmt.Errorf("failed to record permanent failure %q: %w", failure.CorrelationID, err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v
}
