package api

import "github.com/gin-gonic/gin"

// SetupRouter configures and returns a Gin engine instance.
func SetupRouter(h *Handler, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(serviceName), gin.Recovery())

	r.GET("/health", h.Health)

	apiV1 := r.Group("/api/v1")
	{
		policies := apiV1.Group("/policies")
		{
			policies.POST("", h.CreatePolicy)
			policies.GET("", h.ListPolicies)
			policies.GET("/:id", h.GetPolicy)
			policies.PUT("/:id", h.UpdatePolicy)
			policies.DELETE("/:id", h.DeletePolicy)
			policies.GET("/:id/download", h.DownloadPolicy)
		}

		assistant := apiV1.Group("/assistant")
		{
			assistant.POST("/chat", h.Chat)
			assistant.GET("/policies", h.SearchPolicies)
			assistant.GET("/health", h.AssistantHealth)
		}
	}

	return r
}
