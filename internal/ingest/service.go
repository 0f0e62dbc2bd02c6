// Package ingest is the public write path for click analytics: it
// validates and bot-filters incoming payloads, then appends exactly one
// immutable event per accepted call. Losing a click under storage
// failure is acceptable; double counting is not, so there is no retry.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/proptradetools/clickstack/internal/metrics"
	"github.com/proptradetools/clickstack/internal/models"
	"github.com/proptradetools/clickstack/internal/storage"
	"github.com/proptradetools/clickstack/internal/validate"
	"go.uber.org/zap"
)

// Ingestion failure classes beyond validation errors.
var (
	// ErrBotFiltered signals a policy rejection. Callers surface it as a
	// rate-limit-class response so bots back off instead of retrying.
	ErrBotFiltered = errors.New("bot_filtered")

	// ErrStorageUnavailable is the opaque failure returned when the
	// append could not be persisted. The event is dropped.
	ErrStorageUnavailable = errors.New("storage_unavailable")
)

// Service records click events after validation and bot filtering.
type Service struct {
	store   storage.RawEventStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an ingestion service.
func NewService(store storage.RawEventStore, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock overrides the timestamp source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Record validates and stores one guide click. The returned error is
// either a *validate.Error, ErrBotFiltered, or ErrStorageUnavailable.
func (s *Service) Record(ctx context.Context, payload *validate.Payload, clientSignature string) error {
	ua := validate.TruncateUserAgent(clientSignature)

	if validate.IsBotSignature(ua) {
		s.metrics.RecordRejected("bot_filtered")
		return ErrBotFiltered
	}

	click, err := validate.GuideClick(payload)
	if err != nil {
		s.metrics.RecordRejected(validate.Reason(err))
		s.logger.Warn("click validation failed",
			zap.String("reason", validate.Reason(err)),
		)
		return err
	}

	return s.append(ctx, "guide", click.GuideID, click.Title, click.Href, ua)
}

// RecordNavigation stores an internal navigation event. The key must be
// one of the fixed navigation pseudo-keys rather than a guide slug.
func (s *Service) RecordNavigation(ctx context.Context, payload *validate.Payload, clientSignature string) error {
	ua := validate.TruncateUserAgent(clientSignature)

	if validate.IsBotSignature(ua) {
		s.metrics.RecordRejected("bot_filtered")
		return ErrBotFiltered
	}

	if payload == nil {
		s.metrics.RecordRejected(validate.ErrEmptyPayload.Reason)
		return validate.ErrEmptyPayload
	}

	key := payload.GuideID
	if key == "" || len(key) > validate.MaxGuideIDLength {
		s.metrics.RecordRejected(validate.ErrInvalidGuideID.Reason)
		return validate.ErrInvalidGuideID
	}
	if !models.NavigationKeys[key] {
		s.metrics.RecordRejected(validate.ErrInvalidBackType.Reason)
		return validate.ErrInvalidBackType
	}

	title := payload.Title
	if len(title) > validate.MaxTitleLength {
		title = title[:validate.MaxTitleLength]
	}
	href := payload.Href
	if len(href) > validate.MaxHrefLength {
		href = href[:validate.MaxHrefLength]
	}

	return s.append(ctx, "navigation", key, title, href, ua)
}

func (s *Service) append(ctx context.Context, kind, guideID, title, href, ua string) error {
	event := &models.ClickEvent{
		ID:        uuid.New().String(),
		GuideID:   guideID,
		Title:     title,
		Href:      href,
		UserAgent: ua,
		Timestamp: s.now().UTC(),
	}

	if err := s.store.Append(ctx, event); err != nil {
		s.metrics.RecordStorageError("append")
		s.logger.Error("failed to store click event",
			zap.String("guide_id", guideID),
			zap.Error(err),
		)
		return ErrStorageUnavailable
	}

	s.metrics.RecordIngested(kind)
	s.logger.Debug("click recorded",
		zap.String("kind", kind),
		zap.String("guide_id", guideID),
	)
	return nil
}
