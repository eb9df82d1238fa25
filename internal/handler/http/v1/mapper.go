package v1

import "github.com/shenikar/emergency_clustering_system/internal/models"

// ModelToReportResponse преобразует доменную модель репорта в DTO для ответа
func ModelToReportResponse(model *models.Report) *ReportResponse {
	return &ReportResponse{
		ID:         model.ID,
		ReporterID: model.ReporterID,
		IncidentID: model.IncidentID,
		Latitude:   model.Latitude,
		Longitude:  model.Longitude,
		Category:   string(model.Category),
		MediaRef:   model.MediaRef,
		IsWitness:  model.IsWitness,
		CreatedAt:  model.CreatedAt,
	}
}

// ModelsToReportResponses преобразует слайс моделей репортов в слайс DTO
func ModelsToReportResponses(models []*models.Report) []*ReportResponse {
	responses := make([]*ReportResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToReportResponse(model)
	}
	return responses
}

// ModelToIncidentResponse преобразует доменную модель инцидента в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	return &IncidentResponse{
		ID:             model.ID,
		Latitude:       model.Latitude,
		Longitude:      model.Longitude,
		Status:         string(model.Status),
		AcceptedBy:     model.AcceptedBy,
		ReportCount:    model.ReportCount,
		CreatedAt:      model.CreatedAt,
		LastActivityAt: model.LastActivityAt,
		DistanceMeters: model.DistanceMeters,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей инцидентов в слайс DTO
func ModelsToIncidentResponses(models []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(models))
	for i, model := range models {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

// DTOToResponderModel преобразует DTO регистрации в доменную модель
func DTOToResponderModel(dto RegisterResponderRequest) *models.Responder {
	return &models.Responder{
		Name:      dto.Name,
		Latitude:  dto.Latitude,
		Longitude: dto.Longitude,
		RoleTag:   dto.RoleTag,
	}
}

// ModelToResponderResponse преобразует доменную модель респондера в DTO для ответа
func ModelToResponderResponse(model *models.Responder) *ResponderResponse {
	return &ResponderResponse{
		ID:        model.ID,
		Name:      model.Name,
		Latitude:  model.Latitude,
		Longitude: model.Longitude,
		RoleTag:   model.RoleTag,
		CreatedAt: model.CreatedAt,
	}
}
