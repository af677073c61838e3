package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/prompt-relay/logging"
	"github.com/itish2003/prompt-relay/models"
	"github.com/itish2003/prompt-relay/services"
)

const (
	serviceName    = "prompt-relay"
	serviceVersion = "1.0.0"

	// statusClientClosedRequest is nginx's non-standard status for a client that went away
	// before the response was written.
	statusClientClosedRequest = 499
)

// RelayController handles the HTTP requests for the relay API. It depends on the
// RelayService to perform the upstream call.
type RelayController struct {
	relayService services.RelayService
}

// NewRelayController is a constructor function that creates a new RelayController.
func NewRelayController(service services.RelayService) *RelayController {
	return &RelayController{
		relayService: service,
	}
}

// Query is the Gin handler for the POST /query endpoint.
// It parses the request, calls the service layer, and returns the HTTP response.
func (c *RelayController) Query(ctx *gin.Context) {
	var req models.QueryRequest

	// Use Gin's binding to parse and validate the incoming JSON.
	// Both fields are tagged `binding:"required"`, so empty values are rejected here.
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, http.StatusBadRequest, bindErrorMessage(err), err)
		return
	}

	// Delegate the upstream call to the service layer.
	// We extract the standard context from Gin's context so a disconnect cancels the call.
	response, err := c.relayService.Relay(ctx.Request.Context(), req)
	if err != nil {
		// Nobody is left to read a response; record the disconnect with its own status.
		if errors.Is(err, context.Canceled) {
			logging.FromContext(ctx.Request.Context()).Debugf("Client %s disconnected: %v", ctx.ClientIP(), err)
			ctx.AbortWithStatus(statusClientClosedRequest)
			return
		}
		// Map the service error onto the status the client should see.
		status, message := errorStatus(err)
		respondError(ctx, status, message, err)
		return
	}

	// On success, return a 200 OK status with the relayed message.
	ctx.JSON(http.StatusOK, response)
}

// Health reports liveness; it never touches the upstream.
func (c *RelayController) Health(ctx *gin.Context) {
	// Return a 200 OK status with the service identity.
	ctx.JSON(http.StatusOK, models.HealthResponse{
		Status:  "healthy",
		Service: serviceName,
		Version: serviceVersion,
	})
}

// errorStatus maps the relay error taxonomy onto an HTTP status and a client-facing message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidCredential):
		return http.StatusUnauthorized, "Access token was rejected by the upstream service"
	case errors.Is(err, services.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Failed to reach the upstream service"
	default:
		return http.StatusInternalServerError, "Failed to generate AI response"
	}
}

func respondError(ctx *gin.Context, status int, message string, cause error) {
	logging.FromContext(ctx.Request.Context()).WithField("status", status).Errorf("%s: %v", message, cause)
	ctx.AbortWithStatusJSON(status, models.ErrorResponse{Error: message})
}
