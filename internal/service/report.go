package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_clustering_system/internal/apperrors"
	"github.com/shenikar/emergency_clustering_system/internal/config"
	"github.com/shenikar/emergency_clustering_system/internal/models"
	"github.com/shenikar/emergency_clustering_system/internal/webhook"
	"github.com/sirupsen/logrus"
)

// ReportRepository определяет контракт для чтения репортов из бд
type ReportRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListByReporter(ctx context.Context, reporterID string, page, pageSize int) ([]*models.Report, error)
}

// SubmitReportInput - параметры подачи репорта от слоя приема
type SubmitReportInput struct {
	Latitude  float64
	Longitude float64
	Category  models.ReportCategory
	MediaRef  *string
	IsWitness bool
}

// ReportService определяет контракт подачи и чтения репортов
type ReportService interface {
	SubmitReport(ctx context.Context, caller models.Caller, input SubmitReportInput) (*models.Report, error)
	GetReport(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Report, error)
	ListMyReports(ctx context.Context, caller models.Caller, page, pageSize int) ([]*models.Report, error)
}

type reportService struct {
	incidentRepo IncidentRepository
	reportRepo   ReportRepository
	logger       *logrus.Logger
	cfg          *config.Config
	publisher    webhook.WebhookPublisher
}

func NewReportService(incidentRepo IncidentRepository, reportRepo ReportRepository, logger *logrus.Logger, cfg *config.Config, publisher webhook.WebhookPublisher) ReportService {
	return &reportService{
		incidentRepo: incidentRepo,
		reportRepo:   reportRepo,
		logger:       logger,
		cfg:          cfg,
		publisher:    publisher,
	}
}

// SubmitReport принимает репорт, назначает ему кластер и сохраняет его.
// Поиск кандидата, мутация инцидента и запись репорта выполняются в одной
// транзакции; при конфликте конкурентного обновления поиск кандидата
// перезапускается, так как множество открытых инцидентов могло измениться.
func (s *reportService) SubmitReport(ctx context.Context, caller models.Caller, input SubmitReportInput) (*models.Report, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "report",
		"method":      "SubmitReport",
		"reporter_id": caller.ID,
	})
	log.Info("Submitting a new report")

	if caller.Role != models.RoleReporter {
		log.Warn("Caller is not a reporter")
		return nil, fmt.Errorf("service: only reporters may submit reports: %w", apperrors.ErrUnauthorized)
	}

	if err := validateCoordinates(input.Latitude, input.Longitude); err != nil {
		log.WithError(err).Warn("Invalid report coordinates")
		return nil, err
	}

	if !input.Category.Valid() {
		log.Warnf("Unknown report category: %s", input.Category)
		return nil, fmt.Errorf("service: unknown category %q: %w", input.Category, apperrors.ErrInvalidInput)
	}

	var (
		report      *models.Report
		incident    *models.Incident
		newIncident bool
	)

	// Ограниченное число попыток: повторяем только при ErrConflict
	attempts := s.cfg.ClusterMaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		report, incident, newIncident, err = s.assignCluster(ctx, caller, input)
		if err == nil {
			break
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			log.WithError(err).Error("Failed to submit report")
			return nil, fmt.Errorf("service: could not submit report: %w", err)
		}
		log.WithField("attempt", attempt).Warn("Cluster assignment lost a concurrent race, retrying")
	}
	if err != nil {
		log.WithError(err).Error("Cluster assignment retries exhausted")
		return nil, fmt.Errorf("service: could not submit report: %w", err)
	}

	if cacheErr := s.incidentRepo.InvalidateIncidentCache(ctx, incident.ID); cacheErr != nil {
		log.WithError(cacheErr).Warn("Failed to invalidate incident cache")
	}

	eventType := webhook.EventReportAttached
	if newIncident {
		eventType = webhook.EventIncidentCreated
	}
	s.publishIncidentEvent(ctx, log, eventType, incident)

	log.WithFields(logrus.Fields{
		"report_id":    report.ID,
		"incident_id":  report.IncidentID,
		"new_incident": newIncident,
	}).Info("Report submitted successfully")
	return report, nil
}

// assignCluster - одна атомарная попытка: ближайший открытый инцидент в окне
// кандидатов либо получает репорт и инкремент счетчика, либо создается новый
// инцидент со статусом pending. Репорт пишется той же транзакцией.
func (s *reportService) assignCluster(ctx context.Context, caller models.Caller, input SubmitReportInput) (*models.Report, *models.Incident, bool, error) {
	report := &models.Report{
		ReporterID: caller.ID,
		Latitude:   input.Latitude,
		Longitude:  input.Longitude,
		Category:   input.Category,
		MediaRef:   input.MediaRef,
		IsWitness:  input.IsWitness,
	}

	var (
		incident    *models.Incident
		newIncident bool
	)

	err := s.incidentRepo.RunClusterUnit(ctx, func(unit ClusterUnit) error {
		candidate, err := unit.FindNearestOpenIncident(ctx, input.Latitude, input.Longitude, s.cfg.ClusterMaxDistanceMeters, s.cfg.ClusterTimeWindow)
		if err != nil {
			return err
		}

		if candidate != nil {
			if err := unit.AttachReportToIncident(ctx, candidate.ID); err != nil {
				return err
			}
			candidate.ReportCount++
			candidate.LastActivityAt = time.Now().UTC()
			incident = candidate
			newIncident = false
		} else {
			created := &models.Incident{
				Latitude:    input.Latitude,
				Longitude:   input.Longitude,
				Status:      models.IncidentPending,
				ReportCount: 1,
			}
			if err := unit.CreateIncident(ctx, created); err != nil {
				return err
			}
			incident = created
			newIncident = true
		}

		report.IncidentID = incident.ID
		return unit.CreateReport(ctx, report)
	})
	if err != nil {
		return nil, nil, false, err
	}
	return report, incident, newIncident, nil
}

// GetReport возвращает репорт. Репортер видит только свои репорты.
func (s *reportService) GetReport(ctx context.Context, caller models.Caller, id uuid.UUID) (*models.Report, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "report",
		"method":    "GetReport",
		"report_id": id,
	})
	log.Info("Fetching report by ID")

	report, err := s.reportRepo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get report from repository")
		return nil, fmt.Errorf("service: could not get report: %w", err)
	}

	if report.ReporterID != caller.ID {
		log.Warn("Caller attempted to read a foreign report")
		return nil, fmt.Errorf("service: report belongs to another reporter: %w", apperrors.ErrUnauthorized)
	}

	return report, nil
}

// ListMyReports возвращает репорты вызывающего с пагинацией
func (s *reportService) ListMyReports(ctx context.Context, caller models.Caller, page, pageSize int) ([]*models.Report, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":     "report",
		"method":      "ListMyReports",
		"reporter_id": caller.ID,
		"page":        page,
		"page_size":   pageSize,
	})
	log.Info("Listing reports for reporter")

	reports, err := s.reportRepo.ListByReporter(ctx, caller.ID, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list reports from repository")
		return nil, fmt.Errorf("service: could not list reports: %w", err)
	}

	log.WithField("count", len(reports)).Info("Reports listed successfully")
	return reports, nil
}

// publishIncidentEvent публикует событие инцидента; отказ очереди не
// фатален для подачи репорта
func (s *reportService) publishIncidentEvent(ctx context.Context, log *logrus.Entry, eventType webhook.EventType, incident *models.Incident) {
	event := webhook.WebhookEvent{
		Type:        eventType,
		IncidentID:  incident.ID,
		Status:      incident.Status,
		ReportCount: incident.ReportCount,
		Latitude:    incident.Latitude,
		Longitude:   incident.Longitude,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to publish incident event")
	}
}

// validateCoordinates проверяет, что точка является корректной географической координатой
func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("service: latitude %f out of range: %w", lat, apperrors.ErrInvalidInput)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("service: longitude %f out of range: %w", lon, apperrors.ErrInvalidInput)
	}
	return nil
}
