package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_clustering_system/internal/apperrors"
	"github.com/shenikar/emergency_clustering_system/internal/config"
	"github.com/shenikar/emergency_clustering_system/internal/models"
	"github.com/shenikar/emergency_clustering_system/internal/webhook"
	"github.com/sirupsen/logrus"
)

// ClusterUnit - операции, доступные внутри одной транзакции кластеризации.
// FindNearestOpenIncident блокирует найденную строку до конца транзакции.
type ClusterUnit interface {
	FindNearestOpenIncident(ctx context.Context, lat, lon, maxDistanceMeters float64, window time.Duration) (*models.Incident, error)
	AttachReportToIncident(ctx context.Context, incidentID uuid.UUID) error
	CreateIncident(ctx context.Context, incident *models.Incident) error
	CreateReport(ctx context.Context, report *models.Report) error
}

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	RunClusterUnit(ctx context.Context, fn func(unit ClusterUnit) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.IncidentStatus, acceptedBy *uuid.UUID) (bool, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit, offset int) ([]*models.Incident, error)
	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// IncidentService определяет контракт жизненного цикла инцидентов и geofence-запросов
type IncidentService interface {
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	Accept(ctx context.Context, caller models.Caller, incidentID uuid.UUID) (*models.Incident, error)
	Resolve(ctx context.Context, caller models.Caller, incidentID uuid.UUID) (*models.Incident, error)
	MarkFalseAlarm(ctx context.Context, caller models.Caller, incidentID uuid.UUID) (*models.Incident, error)
	NearbyIncidents(ctx context.Context, caller models.Caller, radiusMeters float64, limit, offset int) ([]*models.Incident, error)
}

type incidentService struct {
	incidentRepo  IncidentRepository
	responderRepo ResponderRepository
	logger        *logrus.Logger
	cfg           *config.Config
	publisher     webhook.WebhookPublisher
}

func NewIncidentService(incidentRepo IncidentRepository, responderRepo ResponderRepository, logger *logrus.Logger, cfg *config.Config, publisher webhook.WebhookPublisher) IncidentService {
	return &incidentService{
		incidentRepo:  incidentRepo,
		responderRepo: responderRepo,
		logger:        logger,
		cfg:           cfg,
		publisher:     publisher,
	}
}

// GetIncident возвращает публичную сводку инцидента (с кешированием)
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	cached, err := s.incidentRepo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
	}
	if cached != nil {
		return cached, nil
	}

	incident, err := s.incidentRepo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident from repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.incidentRepo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}

	return incident, nil
}

// Accept переводит инцидент pending -> accepted и фиксирует принявшего респондера.
// Принять можно только pending-инцидент: повторный Accept и перехват чужого
// accepted-инцидента отклоняются.
func (s *incidentService) Accept(ctx context.Context, caller models.Caller, incidentID uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "Accept",
		"incident_id":  incidentID,
		"responder_id": caller.ID,
	})
	log.Info("Accepting incident")

	responderID, err := s.requireResponder(caller)
	if err != nil {
		log.WithError(err).Warn("Accept rejected")
		return nil, err
	}

	incident, err := s.incidentRepo.GetByID(ctx, incidentID)
	if err != nil {
		log.WithError(err).Warn("Failed to load incident for accept")
		return nil, fmt.Errorf("service: could not load incident: %w", err)
	}

	switch incident.Status {
	case models.IncidentPending:
		// допустимый переход
	case models.IncidentAccepted, models.IncidentResolved, models.IncidentFalseAlarm:
		log.Warnf("Accept rejected in status %s", incident.Status)
		return nil, fmt.Errorf("service: accept from status %s: %w", incident.Status, apperrors.ErrInvalidTransition)
	default:
		return nil, fmt.Errorf("service: unknown incident status %q: %w", incident.Status, apperrors.ErrInvalidTransition)
	}

	return s.applyTransition(ctx, log, incidentID, models.IncidentPending, models.IncidentAccepted, &responderID)
}

// Resolve переводит инцидент accepted -> resolved
func (s *incidentService) Resolve(ctx context.Context, caller models.Caller, incidentID uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "Resolve",
		"incident_id":  incidentID,
		"responder_id": caller.ID,
	})
	log.Info("Resolving incident")

	if _, err := s.requireResponder(caller); err != nil {
		log.WithError(err).Warn("Resolve rejected")
		return nil, err
	}

	incident, err := s.incidentRepo.GetByID(ctx, incidentID)
	if err != nil {
		log.WithError(err).Warn("Failed to load incident for resolve")
		return nil, fmt.Errorf("service: could not load incident: %w", err)
	}

	switch incident.Status {
	case models.IncidentAccepted:
		// допустимый переход
	case models.IncidentPending, models.IncidentResolved, models.IncidentFalseAlarm:
		log.Warnf("Resolve rejected in status %s", incident.Status)
		return nil, fmt.Errorf("service: resolve from status %s: %w", incident.Status, apperrors.ErrInvalidTransition)
	default:
		return nil, fmt.Errorf("service: unknown incident status %q: %w", incident.Status, apperrors.ErrInvalidTransition)
	}

	return s.applyTransition(ctx, log, incidentID, models.IncidentAccepted, models.IncidentResolved, nil)
}

// MarkFalseAlarm переводит инцидент pending/accepted -> false_alarm
func (s *incidentService) MarkFalseAlarm(ctx context.Context, caller models.Caller, incidentID uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "MarkFalseAlarm",
		"incident_id":  incidentID,
		"responder_id": caller.ID,
	})
	log.Info("Marking incident as false alarm")

	if _, err := s.requireResponder(caller); err != nil {
		log.WithError(err).Warn("MarkFalseAlarm rejected")
		return nil, err
	}

	incident, err := s.incidentRepo.GetByID(ctx, incidentID)
	if err != nil {
		log.WithError(err).Warn("Failed to load incident for false alarm")
		return nil, fmt.Errorf("service: could not load incident: %w", err)
	}

	switch incident.Status {
	case models.IncidentPending, models.IncidentAccepted:
		// допустимые переходы
	case models.IncidentResolved, models.IncidentFalseAlarm:
		log.Warnf("MarkFalseAlarm rejected in status %s", incident.Status)
		return nil, fmt.Errorf("service: false alarm from status %s: %w", incident.Status, apperrors.ErrInvalidTransition)
	default:
		return nil, fmt.Errorf("service: unknown incident status %q: %w", incident.Status, apperrors.ErrInvalidTransition)
	}

	return s.applyTransition(ctx, log, incidentID, incident.Status, models.IncidentFalseAlarm, nil)
}

// applyTransition выполняет guarded-обновление статуса. Нулевое число
// обновленных строк означает, что статус изменился конкурентно.
func (s *incidentService) applyTransition(ctx context.Context, log *logrus.Entry, incidentID uuid.UUID, from, to models.IncidentStatus, acceptedBy *uuid.UUID) (*models.Incident, error) {
	applied, err := s.incidentRepo.TransitionStatus(ctx, incidentID, from, to, acceptedBy)
	if err != nil {
		log.WithError(err).Error("Failed to apply status transition")
		return nil, fmt.Errorf("service: could not apply transition: %w", err)
	}
	if !applied {
		log.Warnf("Status transition %s -> %s lost a concurrent race", from, to)
		return nil, fmt.Errorf("service: transition %s -> %s was preempted: %w", from, to, apperrors.ErrConflict)
	}

	if cacheErr := s.incidentRepo.InvalidateIncidentCache(ctx, incidentID); cacheErr != nil {
		log.WithError(cacheErr).Warn("Failed to invalidate incident cache")
	}

	updated, err := s.incidentRepo.GetByID(ctx, incidentID)
	if err != nil {
		log.WithError(err).Error("Failed to reload incident after transition")
		return nil, fmt.Errorf("service: could not reload incident: %w", err)
	}

	event := webhook.WebhookEvent{
		Type:        webhook.EventStatusChanged,
		IncidentID:  updated.ID,
		Status:      updated.Status,
		ReportCount: updated.ReportCount,
		Latitude:    updated.Latitude,
		Longitude:   updated.Longitude,
		Timestamp:   time.Now().UTC(),
	}
	if pubErr := s.publisher.Publish(ctx, event); pubErr != nil {
		log.WithError(pubErr).Warn("Failed to publish status change event")
	}

	log.Infof("Incident transitioned %s -> %s", from, to)
	return updated, nil
}

// NearbyIncidents возвращает открытые инциденты в радиусе от зарегистрированной
// локации респондера, отсортированные по возрастанию дистанции
func (s *incidentService) NearbyIncidents(ctx context.Context, caller models.Caller, radiusMeters float64, limit, offset int) ([]*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "NearbyIncidents",
		"responder_id": caller.ID,
	})
	log.Info("Querying nearby incidents")

	responderID, err := s.requireResponder(caller)
	if err != nil {
		log.WithError(err).Warn("NearbyIncidents rejected")
		return nil, err
	}

	responder, err := s.responderRepo.GetByID(ctx, responderID)
	if err != nil {
		log.WithError(err).Warn("Failed to load responder profile")
		return nil, fmt.Errorf("service: could not load responder profile: %w", err)
	}

	if radiusMeters <= 0 {
		radiusMeters = s.cfg.GeofenceRadiusMeters
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	incidents, err := s.incidentRepo.FindNearby(ctx, responder.Latitude, responder.Longitude, radiusMeters, limit, offset)
	if err != nil {
		log.WithError(err).Error("Failed to query incidents by radius")
		return nil, fmt.Errorf("service: could not query nearby incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Nearby incidents query completed")
	return incidents, nil
}

// requireResponder проверяет роль вызывающего и разбирает его идентификатор
func (s *incidentService) requireResponder(caller models.Caller) (uuid.UUID, error) {
	if caller.Role != models.RoleResponder {
		return uuid.Nil, fmt.Errorf("service: caller is not a responder: %w", apperrors.ErrUnauthorized)
	}
	responderID, err := uuid.Parse(caller.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("service: malformed responder id %q: %w", caller.ID, apperrors.ErrInvalidInput)
	}
	return responderID, nil
}
