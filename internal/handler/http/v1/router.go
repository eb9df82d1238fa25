package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	// Маршруты, требующие идентичности вызывающего от внешнего слоя аутентификации
	authed := api.Group("", IdentityMiddleware(h.logger))
	{
		reports := authed.Group("/reports")
		{
			reports.POST("", h.submitReport)
			reports.GET("", h.listMyReports)
			reports.GET("/:id", h.getReport)
		}

		incidents := authed.Group("/incidents")
		{
			incidents.GET("/nearby", h.nearbyIncidents)
			incidents.POST("/:id/accept", h.acceptIncident)
			incidents.POST("/:id/resolve", h.resolveIncident)
			incidents.POST("/:id/false-alarm", h.markFalseAlarm)
		}
	}

	// Публичная сводка инцидента
	api.GET("/incidents/:id", h.getIncident)

	// Справочные данные респондеров
	responders := api.Group("/responders")
	{
		responders.POST("", h.registerResponder)
		responders.GET("/:id", h.getResponder)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
