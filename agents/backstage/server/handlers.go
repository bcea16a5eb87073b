package server

import (
	"errors"
	"net/http"

	"backstage/agents/backstage"
	"backstage/shared/ai"
	"backstage/shared/apperror"
	"backstage/shared/settings"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code    apperror.Code `json:"code"`
	Message string        `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	_ = c.Error(err)

	var ae *apperror.Error
	if errors.As(err, &ae) {
		c.JSON(status, APIError{Code: ae.Code, Message: ae.Error()})
		return
	}

	c.JSON(status, APIError{Code: apperror.CodeInternal, Message: http.StatusText(status)})
}

type handlers struct {
	agent    *backstage.Agent
	settings *settings.Store
}

// message handles the control envelope. Failures are part of the response
// body, so the status is always 200 for a well-formed envelope.
func (h *handlers) message(c *gin.Context) {
	var msg backstage.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		writeError(c, apperror.E(apperror.CodeInvalidArgument, "Handlers.Message", "invalid control message", err))
		return
	}
	c.JSON(http.StatusOK, h.agent.HandleMessage(c.Request.Context(), msg))
}

func (h *handlers) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

func (h *handlers) putSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, apperror.E(apperror.CodeInvalidArgument, "Handlers.PutSettings", "invalid settings", err))
		return
	}
	if err := h.settings.Apply(c.Request.Context(), patch); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

type modelsResponse struct {
	Providers []ai.ProviderModels `json:"providers"`
	Available []string            `json:"available"`
	Selected  string              `json:"selected"`
	HasAPIKey bool                `json:"hasApiKey"`
}

func (h *handlers) listModels(c *gin.Context) {
	available := h.settings.AvailableModels()
	if available == nil {
		available = []string{}
	}
	c.JSON(http.StatusOK, modelsResponse{
		Providers: ai.ModelTable(),
		Available: available,
		Selected:  h.settings.Snapshot().SelectedModel,
		HasAPIKey: h.settings.HasAnyAPIKey(),
	})
}
