package models

import (
	"time"

	"github.com/google/uuid"
)

// Responder - зарегистрированный получатель инцидентов (например, больница).
// Локация фиксирована и используется только для geofence-запросов.
type Responder struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	RoleTag   string    `json:"role_tag"`
	CreatedAt time.Time `json:"created_at"`
}
