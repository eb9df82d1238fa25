package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_clustering_system/internal/models"
	"github.com/sirupsen/logrus"
)

// ResponderRepository определяет контракт для работы с профилями респондеров
type ResponderRepository interface {
	Create(ctx context.Context, responder *models.Responder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Responder, error)
}

// ResponderService определяет контракт справочных данных респондеров.
// Привязка аккаунтов и аутентификация остаются на внешнем слое.
type ResponderService interface {
	RegisterResponder(ctx context.Context, responder *models.Responder) error
	GetResponder(ctx context.Context, id uuid.UUID) (*models.Responder, error)
}

type responderService struct {
	repo   ResponderRepository
	logger *logrus.Logger
}

func NewResponderService(repo ResponderRepository, logger *logrus.Logger) ResponderService {
	return &responderService{
		repo:   repo,
		logger: logger,
	}
}

// RegisterResponder сохраняет профиль респондера с фиксированной локацией
func (s *responderService) RegisterResponder(ctx context.Context, responder *models.Responder) error {
	log := s.logger.WithFields(logrus.Fields{
		"service": "responder",
		"method":  "RegisterResponder",
		"name":    responder.Name,
	})
	log.Info("Registering a new responder")

	if err := validateCoordinates(responder.Latitude, responder.Longitude); err != nil {
		log.WithError(err).Warn("Invalid responder coordinates")
		return err
	}

	if err := s.repo.Create(ctx, responder); err != nil {
		log.WithError(err).Error("Failed to create responder in repository")
		return fmt.Errorf("service: could not register responder: %w", err)
	}

	log.WithField("responder_id", responder.ID).Info("Responder registered successfully")
	return nil
}

// GetResponder возвращает профиль респондера по ID
func (s *responderService) GetResponder(ctx context.Context, id uuid.UUID) (*models.Responder, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "responder",
		"method":       "GetResponder",
		"responder_id": id,
	})
	log.Info("Fetching responder by ID")

	responder, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get responder from repository")
		return nil, fmt.Errorf("service: could not get responder: %w", err)
	}
	return responder, nil
}
