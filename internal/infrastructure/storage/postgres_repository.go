package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/ports"
)

const (
	noticesTable   = "notices"
	triageTable    = "triage_stubs"
	activityTable  = "activity_log"
	filtersTable   = "prospection_filters"
	uniqueViolated = "23505"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists captured notices into Postgres.
type PostgresRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ ports.NoticeRepository = (*PostgresRepository)(nil)
	_ ports.FilterRepository = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sqlx.DB implementation.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return db, nil
}

// Ping reports whether the store is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ExistsByHash checks the primary dedup key.
func (r *PostgresRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	query, args, err := psql.Select("1").
		From(noticesTable).
		Where(sq.Eq{"identity_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}
	return r.exists(ctx, "exists by hash", query, args)
}

// ExistsByNaturalKey checks the fallback (body, process, platform) tuple.
func (r *PostgresRepository) ExistsByNaturalKey(ctx context.Context, body, process, platform string) (bool, error) {
	query, args, err := psql.Select("1").
		From(noticesTable).
		Where(sq.Eq{
			"source_platform":   platform,
			"issuing_body_name": body,
			"process_number":    process,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build natural key query: %w", err)
	}
	return r.exists(ctx, "exists by natural key", query, args)
}

func (r *PostgresRepository) exists(ctx context.Context, op, query string, args []any) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap(op, err)
	}
	return true, nil
}

// Insert writes the notice, its triage stub and the capture activity in one transaction.
func (r *PostgresRepository) Insert(ctx context.Context, notice domain.Notice, stub domain.TriageStub) (id uuid.UUID, err error) {
	if notice.ID == uuid.Nil {
		notice.ID = uuid.New()
	}
	if stub.ID == uuid.Nil {
		stub.ID = uuid.New()
	}
	if notice.LifecycleStatus == "" {
		notice.LifecycleStatus = domain.StatusCaptured
	}
	if notice.CapturedAt.IsZero() {
		notice.CapturedAt = r.now()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, wrap("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := insertNotice(notice).ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("build notice insert: %w", err)
	}
	if err = tx.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("insert notice %s: %w", notice.IdentityHash, domain.ErrDuplicate)
		}
		return uuid.Nil, wrap("insert notice", err)
	}

	stub.NoticeID = id
	query, args, err = psql.Insert(triageTable).
		Columns("id", "notice_id", "decision", "priority").
		Values(stub.ID, stub.NoticeID, string(stub.Decision), string(stub.Priority)).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("build triage insert: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, wrap("insert triage stub", err)
	}

	entry := captureActivity(notice, id, stub)
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode activity details: %w", err)
	}
	query, args, err = psql.Insert(activityTable).
		Columns("action", "entity", "entity_id", "details").
		Values(entry.Action, entry.Entity, entry.EntityID, string(details)).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("build activity insert: %w", err)
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, wrap("insert activity", err)
	}

	if err = tx.Commit(); err != nil {
		return uuid.Nil, wrap("commit", err)
	}
	return id, nil
}

func insertNotice(n domain.Notice) sq.InsertBuilder {
	return psql.Insert(noticesTable).
		Columns(
			"id", "identity_hash", "source_platform", "external_id",
			"process_number", "notice_number",
			"issuing_body_name", "issuing_body_tax_id", "unit_name", "region_code", "municipality",
			"object_summary", "object_full_text",
			"category_label", "judgment_criteria", "is_price_registry",
			"published_at", "proposal_opens_at", "proposal_closes_at", "dispute_starts_at",
			"estimated_value", "origin_url", "source_system_url", "source_status",
			"lifecycle_status", "captured_at",
		).
		Values(
			n.ID, n.IdentityHash, n.SourcePlatform, n.ExternalID,
			n.ProcessNumber, n.NoticeNumber,
			n.IssuingBodyName, n.IssuingBodyTaxID, n.UnitName, n.RegionCode, n.Municipality,
			n.ObjectSummary, n.ObjectFullText,
			n.CategoryLabel, n.JudgmentCriteria, n.IsPriceRegistry,
			n.PublishedAt, n.ProposalOpensAt, n.ProposalClosesAt, n.DisputeStartsAt,
			n.EstimatedValue, n.OriginURL, n.SourceSystemURL, n.SourceStatus,
			string(n.LifecycleStatus), n.CapturedAt,
		).
		Suffix("ON CONFLICT DO NOTHING RETURNING id")
}

func captureActivity(n domain.Notice, id uuid.UUID, stub domain.TriageStub) domain.ActivityEntry {
	return domain.ActivityEntry{
		Action:   domain.ActionAutomaticCapture,
		Entity:   "edital",
		EntityID: id,
		Details: map[string]any{
			"source_platform": n.SourcePlatform,
			"external_id":     n.ExternalID,
			"identity_hash":   n.IdentityHash,
			"region_code":     n.RegionCode,
			"priority":        stub.Priority,
		},
	}
}

type filterRow struct {
	ID                uuid.UUID       `db:"id"`
	Name              string          `db:"name"`
	Keywords          pq.StringArray  `db:"keywords"`
	ExclusionKeywords pq.StringArray  `db:"exclusion_keywords"`
	Regions           pq.StringArray  `db:"regions"`
	Categories        pq.StringArray  `db:"categories"`
	MinValue          sql.NullFloat64 `db:"min_value"`
	MaxValue          sql.NullFloat64 `db:"max_value"`
	Active            bool            `db:"active"`
}

func (f filterRow) toDomain() domain.ProspectionFilter {
	out := domain.ProspectionFilter{
		ID:                f.ID,
		Name:              f.Name,
		Keywords:          []string(f.Keywords),
		ExclusionKeywords: []string(f.ExclusionKeywords),
		Regions:           []string(f.Regions),
		Categories:        []string(f.Categories),
		Active:            f.Active,
	}
	if f.MinValue.Valid {
		v := f.MinValue.Float64
		out.MinValue = &v
	}
	if f.MaxValue.Valid {
		v := f.MaxValue.Float64
		out.MaxValue = &v
	}
	return out
}

func selectFilters() sq.SelectBuilder {
	return psql.Select(
		"id", "name", "keywords", "exclusion_keywords", "regions", "categories",
		"min_value", "max_value", "active",
	).From(filtersTable).OrderBy("name")
}

// ActiveFilters returns every active prospection filter.
func (r *PostgresRepository) ActiveFilters(ctx context.Context) ([]domain.ProspectionFilter, error) {
	query, args, err := selectFilters().Where(sq.Eq{"active": true}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build filters query: %w", err)
	}
	return r.loadFilters(ctx, query, args)
}

// FiltersByIDs returns the requested filters regardless of their active flag.
func (r *PostgresRepository) FiltersByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ProspectionFilter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	query, args, err := selectFilters().Where(sq.Expr("id = ANY(?::uuid[])", pq.StringArray(keys))).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build filters query: %w", err)
	}
	return r.loadFilters(ctx, query, args)
}

func (r *PostgresRepository) loadFilters(ctx context.Context, query string, args []any) ([]domain.ProspectionFilter, error) {
	var rows []filterRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap("select filters", err)
	}
	filters := make([]domain.ProspectionFilter, 0, len(rows))
	for _, row := range rows {
		filters = append(filters, row.toDomain())
	}
	return filters, nil
}

// wrap maps driver failures onto the domain taxonomy.
func wrap(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == uniqueViolated {
			return fmt.Errorf("%s: %w: %w", op, domain.ErrDuplicate, err)
		}
		// class 08 is connection_exception, 57P0x are shutdowns
		if pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P02" || pqErr.Code == "57P03" {
			return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
