package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"advert-service/internal/domain"
	"advert-service/internal/infrastructure/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

//go:embed schema.sql
var schemaSQL string

const selectAdvertQuery = `
	SELECT id, title, description, owner, creation_date
	FROM advertisements
	WHERE id = $1
`

type postgresStore struct {
	db      *sql.DB
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
}

func NewPostgresStore(db *sql.DB, metrics *metrics.RepositoryMetrics) Store {
	tracer := otel.Tracer("advert-service/repository")
	return &postgresStore{
		db:      db,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (s *postgresStore) observe(query string, startTime time.Time, status string) {
	duration := time.Since(startTime).Seconds()
	s.metrics.QueryCount.WithLabelValues(query, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(query, status).Observe(duration)
}

func (s *postgresStore) InitSchema(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Repository InitSchema")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { s.observe("InitSchema", startTime, status) }()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *postgresStore) Begin(ctx context.Context) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "Repository Begin")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { s.observe("Begin", startTime, status) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &postgresSession{
		store:  s,
		tx:     tx,
		loaded: make(map[int64]domain.Advert),
	}, nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *postgresStore) Close() error {
	return s.db.Close()
}

// postgresSession keeps the last known state of every row it loaded or
// wrote. Add uses it to tell an update from an insert and to write only the
// columns that changed.
type postgresSession struct {
	store  *postgresStore
	tx     *sql.Tx
	loaded map[int64]domain.Advert
	closed bool
}

func (s *postgresSession) Get(ctx context.Context, id int64) (*domain.Advert, error) {
	ctx, span := s.store.tracer.Start(ctx, "Repository Get")
	defer span.End()

	span.SetAttributes(attribute.Int64("advert.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { s.store.observe("Get", startTime, status) }()

	if s.closed {
		status = "error"
		return nil, ErrSessionClosed
	}

	ad := &domain.Advert{}
	err := s.tx.QueryRowContext(ctx, selectAdvertQuery, id).Scan(
		&ad.ID,
		&ad.Title,
		&ad.Description,
		&ad.Owner,
		&ad.CreationDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		status = "not_found"
		return nil, ErrNotFound
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get advert: %w", err)
	}

	s.loaded[ad.ID] = *ad
	return ad, nil
}

func (s *postgresSession) Add(ctx context.Context, ad *domain.Advert) error {
	if s.closed {
		return ErrSessionClosed
	}
	if before, ok := s.loaded[ad.ID]; ok {
		return s.update(ctx, ad, domain.Diff(before, *ad))
	}
	return s.insert(ctx, ad)
}

// insertQuery lists only the columns the caller set; storage fills id and
// creation_date otherwise.
func insertQuery(ad *domain.Advert) (string, []any) {
	columns := []string{"title", "description", "owner"}
	args := []any{ad.Title, ad.Description, ad.Owner}

	if ad.ID != 0 {
		columns = append(columns, "id")
		args = append(args, ad.ID)
	}
	if !ad.CreationDate.IsZero() {
		columns = append(columns, "creation_date")
		args = append(args, ad.CreationDate)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO advertisements (%s) VALUES (%s) RETURNING id, creation_date",
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	return query, args
}

func (s *postgresSession) insert(ctx context.Context, ad *domain.Advert) error {
	ctx, span := s.store.tracer.Start(ctx, "Repository Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("advert.title", ad.Title),
		attribute.String("advert.owner", ad.Owner),
	)

	startTime := time.Now()
	status := "success"
	defer func() { s.store.observe("Insert", startTime, status) }()

	query, args := insertQuery(ad)
	if err := s.tx.QueryRowContext(ctx, query, args...).Scan(&ad.ID, &ad.CreationDate); err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to insert advert: %w", classify(err))
	}

	s.loaded[ad.ID] = *ad
	span.SetAttributes(attribute.Int64("advert.id", ad.ID))
	return nil
}

// updateQuery sets only the columns present in patch.
func updateQuery(id int64, patch domain.AdvertPatch) (string, []any) {
	var (
		sets []string
		args []any
	)
	for _, col := range []struct {
		name  string
		value *string
	}{
		{"title", patch.Title},
		{"description", patch.Description},
		{"owner", patch.Owner},
	} {
		if col.value == nil {
			continue
		}
		args = append(args, *col.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col.name, len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE advertisements SET %s WHERE id = $%d",
		strings.Join(sets, ", "),
		len(args),
	)
	return query, args
}

func (s *postgresSession) update(ctx context.Context, ad *domain.Advert, patch domain.AdvertPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	ctx, span := s.store.tracer.Start(ctx, "Repository Update")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("advert.id", ad.ID),
		attribute.String("advert.title", ad.Title),
		attribute.String("advert.owner", ad.Owner),
	)

	startTime := time.Now()
	status := "success"
	defer func() { s.store.observe("Update", startTime, status) }()

	query, args := updateQuery(ad.ID, patch)
	result, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to update advert: %w", classify(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}

	// Deleted by a concurrent transaction after our Get.
	if rowsAffected == 0 {
		status = "not_found"
		return ErrNotFound
	}

	s.loaded[ad.ID] = *ad
	return nil
}

func (s *postgresSession) Delete(ctx context.Context, ad *domain.Advert) error {
	ctx, span := s.store.tracer.Start(ctx, "Repository Delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("advert.id", ad.ID))

	startTime := time.Now()
	status := "success"
	defer func() { s.store.observe("Delete", startTime, status) }()

	if s.closed {
		status = "error"
		return ErrSessionClosed
	}

	result, err := s.tx.ExecContext(ctx, "DELETE FROM advertisements WHERE id = $1", ad.ID)
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to delete advert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		status = "error"
		span.RecordError(err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}

	if rowsAffected == 0 {
		status = "not_found"
		return ErrNotFound
	}

	delete(s.loaded, ad.ID)
	return nil
}

func (s *postgresSession) Commit() error {
	startTime := time.Now()
	status := "success"
	defer func() { s.store.observe("Commit", startTime, status) }()

	if s.closed {
		status = "error"
		return ErrSessionClosed
	}
	s.closed = true

	if err := s.tx.Commit(); err != nil {
		status = "error"
		return fmt.Errorf("failed to commit: %w", classify(err))
	}
	return nil
}

func (s *postgresSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back: %w", err)
	}
	return nil
}
