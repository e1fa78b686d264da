package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/models"
	"github.com/noah-isme/kpi-ops-api/internal/observability"
	"github.com/noah-isme/kpi-ops-api/internal/repository"
)

// Notification errors.
var (
	ErrDuplicateNotification = errors.New("notification already published for kpi score")
	ErrEmptyNotification     = errors.New("notification empty after sanitization")
	ErrNotificationUser      = errors.New("user id is required")
)

// NotificationService stores in-app notifications and pushes them to open streams on every node.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]dto.NotificationResponse, dto.NotificationInboxMeta, error)
	MarkRead(ctx context.Context, id uint, userID uint) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
	Subscribe(userID uint) (<-chan dto.NotificationResponse, func())
	Start(ctx context.Context)
}

type notificationService struct {
	repo      repository.NotificationRepository
	relays    []notificationRelay
	hub       *notificationHub
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	nodeID    string
	now       func() time.Time
}

// notificationEnvelope is the relay wire format.
type notificationEnvelope struct {
	Node         string                   `json:"node"`
	Notification dto.NotificationResponse `json:"notification"`
	SentAt       time.Time                `json:"sent_at"`
}

// NewNotificationService constructs the notification service. Relays are enabled for whichever of
// redisClient and natsConn is non-nil, on channels derived from channelBase.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		relays:    notificationRelays(channelBase, redisClient, natsConn),
		hub:       newNotificationHub(),
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/kpi-ops-api/internal/service/notification"),
		nodeID:    uuid.NewString(),
		now:       time.Now,
	}
}

// Start listens on every relay until ctx is cancelled.
func (s *notificationService) Start(ctx context.Context) {
	for _, relay := range s.relays {
		go func(relay notificationRelay) {
			if err := relay.Listen(ctx, s.receive); err != nil {
				s.logger.Error().Err(err).Str("relay", relay.Name()).Msg("notification relay stopped")
			}
		}(relay)
	}
}

func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(payload.Title))
	message := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if title == "" || message == "" {
		return dto.NotificationResponse{}, ErrEmptyNotification
	}

	ctx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.Int64("notification.user_id", int64(payload.UserID)),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	if payload.KPIScoreID != nil {
		exists, err := s.repo.ExistsForKPI(ctx, payload.UserID, payload.Type, *payload.KPIScoreID)
		if err != nil {
			span.RecordError(err)
			return dto.NotificationResponse{}, err
		}
		if exists {
			return dto.NotificationResponse{}, ErrDuplicateNotification
		}
	}

	model := models.Notification{
		UserID:     payload.UserID,
		Title:      title,
		Message:    message,
		Type:       payload.Type,
		Priority:   strings.TrimSpace(firstNonEmpty(payload.Priority, "medium")),
		KPIScoreID: payload.KPIScoreID,
		SentBy:     strings.TrimSpace(firstNonEmpty(payload.SentBy, "system")),
	}
	if err := s.repo.Create(ctx, &model); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create notification")
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	s.deliverLocal(response)
	s.relay(ctx, response)
	observability.NotificationsPublishedTotal().WithLabelValues(response.Type).Inc()

	return response, nil
}

func (s *notificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]dto.NotificationResponse, dto.NotificationInboxMeta, error) {
	if userID == 0 {
		return nil, dto.NotificationInboxMeta{}, ErrNotificationUser
	}

	notifications, err := s.repo.ListByUser(ctx, repository.NotificationFilter{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, dto.NotificationInboxMeta{}, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, dto.NotificationInboxMeta{}, err
	}

	return dto.NewNotificationResponseSlice(notifications), dto.NotificationInboxMeta{
		Unread: unread,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID uint) (dto.NotificationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.id", int64(id)),
		attribute.Int64("notification.user_id", int64(userID)),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(ctx, id, userID, s.now().UTC())
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}
	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	if userID == 0 {
		return 0, ErrNotificationUser
	}
	return s.repo.MarkAllRead(ctx, userID, s.now().UTC())
}

func (s *notificationService) Subscribe(userID uint) (<-chan dto.NotificationResponse, func()) {
	ch, closeFn := s.hub.open(userID)
	observability.SSEClientsActive().Inc()

	return ch, func() {
		closeFn()
		observability.SSEClientsActive().Dec()
	}
}

func (s *notificationService) deliverLocal(notification dto.NotificationResponse) {
	if dropped := s.hub.deliver(notification); dropped > 0 {
		s.logger.Warn().
			Uint("user_id", notification.UserID).
			Uint("notification_id", notification.ID).
			Int("dropped", dropped).
			Msg("notification stream too slow, message dropped")
	}
}

func (s *notificationService) relay(ctx context.Context, notification dto.NotificationResponse) {
	if len(s.relays) == 0 {
		return
	}

	payload, err := json.Marshal(notificationEnvelope{
		Node:         s.nodeID,
		Notification: notification,
		SentAt:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode notification envelope")
		return
	}

	for _, relay := range s.relays {
		if err := relay.Send(ctx, payload); err != nil {
			s.logger.Warn().Err(err).Str("relay", relay.Name()).Msg("failed to relay notification")
		}
	}
}

// receive handles envelopes from other nodes; this node's own envelopes were delivered at publish time.
func (s *notificationService) receive(payload []byte) {
	var envelope notificationEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid notification envelope")
		return
	}
	if envelope.Node == s.nodeID || envelope.Notification.UserID == 0 {
		return
	}

	notification := envelope.Notification
	if notification.Type == "" {
		notification.Type = models.NotificationTypeInfo
	}
	s.deliverLocal(notification)
}
