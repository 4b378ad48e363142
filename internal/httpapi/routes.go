package httpapi

import "github.com/gin-gonic/gin"

// Register mounts the /v1 API on r. Keep this free of business logic.
func (h Handlers) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	projects := v1.Group("/projects")
	{
		projects.PUT("", h.UpsertProject)
		projects.GET("/:external_id", h.GetProject)
		projects.PUT("/:external_id/contacts/:contact_id", h.LinkContact)
		projects.GET("/:external_id/calls/summary", h.CallsSummary)
	}

	contacts := v1.Group("/contacts")
	{
		contacts.PUT("", h.UpsertContact)
		contacts.GET("/:id", h.GetContact)
	}

	sessions := v1.Group("/call-sessions")
	{
		sessions.POST("", h.CreateCallSession)
		sessions.PATCH("/:id", h.UpdateCallSession)
		sessions.GET("/:id", h.GetCallSession)
	}

	terminals := v1.Group("/terminal-sessions")
	{
		terminals.POST("", h.CreateTerminal)
		terminals.GET("/active", h.ActiveTerminal)
		terminals.GET("/:id", h.GetTerminal)
		terminals.DELETE("/:id", h.RemoveTerminal)
	}

	v1.GET("/eligibility", h.ListEligible)
	v1.GET("/eligibility/:project_external_id", h.IsEligible)
}
