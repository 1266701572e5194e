package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"advert-service/internal/domain"
	"advert-service/internal/infrastructure/cache"
	"advert-service/internal/infrastructure/metrics"
	"advert-service/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAdvertNotFound = errors.New("advert not found")
	ErrInvalidAdvert  = errors.New("invalid advert")
	ErrAdvertConflict = errors.New("advert already exists")
)

const DefaultCacheTTL = 10 * time.Minute

// cacheStripes sizes the generation table. Ids sharing a stripe can only
// cost each other a skipped cache fill.
const cacheStripes = 256

// AdvertService runs each operation inside the session it is given. The
// session is owned by the caller: the service commits it but never closes it.
type AdvertService interface {
	GetAdvert(ctx context.Context, sess repository.Session, id int64) (*domain.Advert, error)
	CreateAdvert(ctx context.Context, sess repository.Session, ad *domain.Advert) (int64, error)
	UpdateAdvert(ctx context.Context, sess repository.Session, id int64, patch domain.AdvertPatch) (int64, error)
	DeleteAdvert(ctx context.Context, sess repository.Session, id int64) error
}

type advertService struct {
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.ServiceMetrics
	tracer   trace.Tracer

	// generations move on every eviction so a GET that read a row before a
	// concurrent write commits does not put the old row back in the cache.
	generations [cacheStripes]atomic.Uint64
}

func NewAdvertService(c cache.Cache, cacheTTL time.Duration, metrics *metrics.ServiceMetrics) AdvertService {
	if c == nil {
		c = cache.NoopCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	tracer := otel.Tracer("advert-service/service")
	return &advertService{
		cache:    c,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		tracer:   tracer,
	}
}

func cacheKey(id int64) string {
	return fmt.Sprintf("advert:%d", id)
}

func (s *advertService) generation(id int64) *atomic.Uint64 {
	return &s.generations[uint64(id)%cacheStripes]
}

func (s *advertService) observe(method string, startTime time.Time, status string) {
	duration := time.Since(startTime).Seconds()
	s.metrics.MethodCount.WithLabelValues(method, status).Inc()
	s.metrics.MethodDuration.WithLabelValues(method, status).Observe(duration)
}

func (s *advertService) GetAdvert(ctx context.Context, sess repository.Session, id int64) (*domain.Advert, error) {
	ctx, span := s.tracer.Start(ctx, "GetAdvert")
	defer span.End()

	span.SetAttributes(attribute.Int64("advert.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { s.observe("GetAdvert", startTime, status) }()

	if ad, ok := s.cachedAdvert(ctx, id); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return ad, nil
	}

	gen := s.generation(id).Load()

	ad, err := sess.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			status = "not_found"
			return nil, ErrAdvertNotFound
		}
		status = "error"
		span.RecordError(err)
		return nil, err
	}

	s.storeAdvert(ctx, ad, gen)
	return ad, nil
}

func (s *advertService) CreateAdvert(ctx context.Context, sess repository.Session, ad *domain.Advert) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CreateAdvert")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { s.observe("CreateAdvert", startTime, status) }()

	if err := validateAdvert(ad); err != nil {
		status = "invalid"
		return 0, err
	}

	if err := sess.Add(ctx, ad); err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return 0, translate(err)
	}

	if err := sess.Commit(); err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return 0, translate(err)
	}

	span.SetAttributes(
		attribute.Int64("advert.id", ad.ID),
		attribute.String("advert.title", ad.Title),
		attribute.String("advert.owner", ad.Owner),
	)
	return ad.ID, nil
}

func (s *advertService) UpdateAdvert(ctx context.Context, sess repository.Session, id int64, patch domain.AdvertPatch) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateAdvert")
	defer span.End()

	span.SetAttributes(attribute.Int64("advert.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { s.observe("UpdateAdvert", startTime, status) }()

	ad, err := sess.Get(ctx, id)
	if err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return 0, translate(err)
	}

	patch.Apply(ad)
	if err := validateAdvert(ad); err != nil {
		status = "invalid"
		return 0, err
	}

	if err := sess.Add(ctx, ad); err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return 0, translate(err)
	}

	if err := sess.Commit(); err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return 0, translate(err)
	}

	s.evictAdvert(ctx, id)
	return ad.ID, nil
}

func (s *advertService) DeleteAdvert(ctx context.Context, sess repository.Session, id int64) error {
	ctx, span := s.tracer.Start(ctx, "DeleteAdvert")
	defer span.End()

	span.SetAttributes(attribute.Int64("advert.id", id))

	startTime := time.Now()
	status := "success"
	defer func() { s.observe("DeleteAdvert", startTime, status) }()

	ad, err := sess.Get(ctx, id)
	if err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return translate(err)
	}

	if err := sess.Delete(ctx, ad); err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return translate(err)
	}

	if err := sess.Commit(); err != nil {
		status = statusFor(err)
		span.RecordError(err)
		return translate(err)
	}

	s.evictAdvert(ctx, id)
	return nil
}

// cachedAdvert never fails the caller: any cache problem is a miss.
func (s *advertService) cachedAdvert(ctx context.Context, id int64) (*domain.Advert, bool) {
	ctx, span := s.tracer.Start(ctx, "Cache Get")
	defer span.End()

	raw, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			s.metrics.CacheLookups.WithLabelValues("miss").Inc()
		} else {
			s.metrics.CacheLookups.WithLabelValues("error").Inc()
			span.RecordError(err)
		}
		return nil, false
	}

	var ad domain.Advert
	if err := json.Unmarshal([]byte(raw), &ad); err != nil {
		s.metrics.CacheLookups.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, false
	}

	s.metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &ad, true
}

// storeAdvert caches ad unless the row was evicted since gen was read. An
// eviction racing the Set itself is undone by deleting the entry again.
func (s *advertService) storeAdvert(ctx context.Context, ad *domain.Advert, gen uint64) {
	ctx, span := s.tracer.Start(ctx, "Cache Set")
	defer span.End()

	counter := s.generation(ad.ID)
	if counter.Load() != gen {
		span.SetAttributes(attribute.Bool("cache.stale", true))
		return
	}

	raw, err := json.Marshal(ad)
	if err != nil {
		span.RecordError(err)
		return
	}
	if err := s.cache.Set(ctx, cacheKey(ad.ID), string(raw), s.cacheTTL); err != nil {
		span.RecordError(err)
		return
	}

	if counter.Load() != gen {
		span.SetAttributes(attribute.Bool("cache.stale", true))
		if err := s.cache.Delete(ctx, cacheKey(ad.ID)); err != nil {
			span.RecordError(err)
		}
	}
}

func (s *advertService) evictAdvert(ctx context.Context, id int64) {
	ctx, span := s.tracer.Start(ctx, "Cache Delete")
	defer span.End()

	s.generation(id).Add(1)
	if err := s.cache.Delete(ctx, cacheKey(id)); err != nil {
		span.RecordError(err)
	}
}

// validateAdvert enforces the column widths. Empty strings are valid values.
func validateAdvert(ad *domain.Advert) error {
	checks := []struct {
		name  string
		value string
		max   int
	}{
		{"title", ad.Title, domain.MaxTitleLength},
		{"description", ad.Description, domain.MaxDescriptionLength},
		{"owner", ad.Owner, domain.MaxOwnerLength},
	}

	for _, c := range checks {
		if utf8.RuneCountInString(c.value) > c.max {
			return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidAdvert, c.name, c.max)
		}
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrAdvertNotFound
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrAdvertConflict, err)
	case errors.Is(err, repository.ErrConstraint):
		return fmt.Errorf("%w: %w", ErrInvalidAdvert, err)
	default:
		return err
	}
}

func statusFor(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrConstraint):
		return "invalid"
	default:
		return "error"
	}
}
