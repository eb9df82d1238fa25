package v1

import (
	"time"

	"github.com/google/uuid"
)

// SubmitReportRequest DTO для подачи репорта
// @Description DTO для подачи репорта
type SubmitReportRequest struct {
	Latitude  float64 `json:"latitude" validate:"required,latitude"`
	Longitude float64 `json:"longitude" validate:"required,longitude"`
	Category  string  `json:"category" validate:"required,oneof=accident medical fire crime other"`
	MediaRef  *string `json:"media_ref,omitempty"`
	IsWitness bool    `json:"is_witness"`
}

// SubmitReportResponse DTO для ответа на подачу репорта
// @Description DTO для ответа на подачу репорта
type SubmitReportResponse struct {
	ReportID   uuid.UUID `json:"report_id"`
	IncidentID uuid.UUID `json:"incident_id"`
}

// ReportResponse DTO для ответа с информацией о репорте
// @Description DTO для ответа с информацией о репорте
type ReportResponse struct {
	ID         uuid.UUID `json:"id"`
	ReporterID string    `json:"reporter_id"`
	IncidentID uuid.UUID `json:"incident_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Category   string    `json:"category"`
	MediaRef   *string   `json:"media_ref,omitempty"`
	IsWitness  bool      `json:"is_witness"`
	CreatedAt  time.Time `json:"created_at"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID             uuid.UUID  `json:"id"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	Status         string     `json:"status"`
	AcceptedBy     *uuid.UUID `json:"accepted_by,omitempty"`
	ReportCount    int        `json:"report_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	DistanceMeters float64    `json:"distance_meters,omitempty"`
}

// RegisterResponderRequest DTO для регистрации респондера
// @Description DTO для регистрации респондера
type RegisterResponderRequest struct {
	Name      string  `json:"name" validate:"required,min=2,max=255"`
	Latitude  float64 `json:"latitude" validate:"required,latitude"`
	Longitude float64 `json:"longitude" validate:"required,longitude"`
	RoleTag   string  `json:"role_tag" validate:"required,min=2,max=64"`
}

// ResponderResponse DTO для ответа с профилем респондера
// @Description DTO для ответа с профилем респондера
type ResponderResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	RoleTag   string    `json:"role_tag"`
	CreatedAt time.Time `json:"created_at"`
}
