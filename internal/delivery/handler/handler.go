package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"advert-service/internal/infrastructure/metrics"
	"advert-service/internal/repository"
	"advert-service/internal/service"
	"advert-service/pkg/logger"
	"advert-service/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	endpointAdverts  = "/adverts"
	endpointAdvertID = "/adverts/{id}"

	healthPingTimeout = 2 * time.Second
)

// SessionHandlerFunc is an HTTP handler that runs inside one unit of work.
type SessionHandlerFunc func(w http.ResponseWriter, r *http.Request, sess repository.Session)

type AdvertHandler struct {
	service service.AdvertService
	store   repository.Store
	logger  *logger.Loggers
	metrics *metrics.HandlerMetrics
	tracer  trace.Tracer
}

func NewAdvertHandler(service service.AdvertService, store repository.Store, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *AdvertHandler {
	tracer := otel.Tracer("advert-service/handler")
	return &AdvertHandler{
		service: service,
		store:   store,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
	}
}

// WithSession opens a session for the request, hands it to next and
// releases it once next returns, whatever the outcome.
func (h *AdvertHandler) WithSession(next SessionHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.store.Begin(r.Context())
		if err != nil {
			h.logger.ErrorLogger.Error("failed to open session", utils.Err(err))
			utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
			return
		}
		defer func() {
			if err := sess.Close(); err != nil {
				h.logger.ErrorLogger.Error("failed to release session", utils.Err(err))
			}
		}()

		next(w, r, sess)
	}
}

func (h *AdvertHandler) observe(method, endpoint string, startTime time.Time, status string) {
	duration := time.Since(startTime).Seconds()
	h.metrics.RequestCount.WithLabelValues(method, endpoint, status).Inc()
	h.metrics.RequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

func notFoundMessage(id string) string {
	return fmt.Sprintf("Advert with id %s not found", id)
}

// advertID reads the digits-only {id} parameter. label is the id as error
// messages show it: the parsed number, or the raw segment when it does not
// fit an int64 (ok is false; such an id cannot exist).
func advertID(r *http.Request) (label string, id int64, ok bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw, 0, false
	}
	return strconv.FormatInt(id, 10), id, true
}

// respondError writes the JSON error for err and returns the metrics status.
func (h *AdvertHandler) respondError(w http.ResponseWriter, err error, idLabel string, span trace.Span) string {
	var fe *fieldError
	switch {
	case errors.Is(err, service.ErrAdvertNotFound):
		utils.RespondWithErrorJSON(w, http.StatusNotFound, notFoundMessage(idLabel))
		return "not_found"
	case errors.Is(err, errInvalidPayload):
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, errInvalidPayload.Error())
		return "invalid"
	case errors.As(err, &fe):
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, fe.Error())
		return "invalid"
	case errors.Is(err, repository.ErrConstraint):
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, service.ErrInvalidAdvert.Error())
		return "invalid"
	case errors.Is(err, service.ErrInvalidAdvert):
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, err.Error())
		return "invalid"
	case errors.Is(err, service.ErrAdvertConflict):
		utils.RespondWithErrorJSON(w, http.StatusConflict, service.ErrAdvertConflict.Error())
		return "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.ErrorLogger.Error("request timed out", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusGatewayTimeout, "request timed out")
		return "timeout"
	default:
		h.logger.ErrorLogger.Error("request failed", utils.Err(err))
		span.RecordError(err)
		utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
		return "error"
	}
}

func (h *AdvertHandler) GetAdvert(w http.ResponseWriter, r *http.Request, sess repository.Session) {
	ctx, span := h.tracer.Start(r.Context(), "GetAdvert")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodGet, endpointAdvertID, startTime, status) }()

	idLabel, id, ok := advertID(r)
	if !ok {
		status = h.respondError(w, service.ErrAdvertNotFound, idLabel, span)
		return
	}

	span.SetAttributes(attribute.Int64("advert.id", id))

	ad, err := h.service.GetAdvert(ctx, sess, id)
	if err != nil {
		status = h.respondError(w, err, idLabel, span)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ad)
}

func (h *AdvertHandler) CreateAdvert(w http.ResponseWriter, r *http.Request, sess repository.Session) {
	ctx, span := h.tracer.Start(r.Context(), "CreateAdvert")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodPost, endpointAdverts, startTime, status) }()

	ad, err := decodeCreateRequest(w, r)
	if err != nil {
		status = h.respondError(w, err, "", span)
		return
	}

	span.SetAttributes(
		attribute.String("advert.title", ad.Title),
		attribute.String("advert.owner", ad.Owner),
	)

	id, err := h.service.CreateAdvert(ctx, sess, ad)
	if err != nil {
		status = h.respondError(w, err, "", span)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (h *AdvertHandler) UpdateAdvert(w http.ResponseWriter, r *http.Request, sess repository.Session) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateAdvert")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodPatch, endpointAdvertID, startTime, status) }()

	idLabel, id, ok := advertID(r)
	if !ok {
		status = h.respondError(w, service.ErrAdvertNotFound, idLabel, span)
		return
	}

	span.SetAttributes(attribute.Int64("advert.id", id))

	fields, err := decodeObject(w, r)
	if err != nil {
		status = h.respondError(w, err, idLabel, span)
		return
	}

	patch, err := patchFromFields(fields)
	if err != nil {
		// A missing advert is reported before a bad key.
		if _, getErr := h.service.GetAdvert(ctx, sess, id); getErr != nil {
			err = getErr
		}
		status = h.respondError(w, err, idLabel, span)
		return
	}

	updatedID, err := h.service.UpdateAdvert(ctx, sess, id, patch)
	if err != nil {
		status = h.respondError(w, err, idLabel, span)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]int64{"id": updatedID})
}

func (h *AdvertHandler) DeleteAdvert(w http.ResponseWriter, r *http.Request, sess repository.Session) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteAdvert")
	defer span.End()

	startTime := time.Now()
	status := "success"
	defer func() { h.observe(http.MethodDelete, endpointAdvertID, startTime, status) }()

	idLabel, id, ok := advertID(r)
	if !ok {
		status = h.respondError(w, service.ErrAdvertNotFound, idLabel, span)
		return
	}

	span.SetAttributes(attribute.Int64("advert.id", id))

	if err := h.service.DeleteAdvert(ctx, sess, id); err != nil {
		status = h.respondError(w, err, idLabel, span)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Health reports whether the database answers a ping.
func (h *AdvertHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorLogger.Error("health check failed", utils.Err(err))
		utils.RespondWithErrorJSON(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
