//
//  Copyright © Manetu Inc. All rights reserved.
//

package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/manetu/policygateway/pkg/common"
	"github.com/manetu/policygateway/pkg/enforcement"
	"github.com/manetu/policygateway/pkg/pdp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server implements the gateway's REST API.
type Server struct {
	client *pdp.Client
}

// NewServer creates a new API server instance backed by the given decision
// client.
func NewServer(client *pdp.Client) Server {
	return Server{
		client: client,
	}
}

// RegisterHandlers attaches the API routes to the echo instance.
//
// The document route is protected purely by the enforcement filter; the
// check-access routes sit on the default skip list and perform their own
// decision calls.
func RegisterHandlers(e *echo.Echo, s Server) {
	e.GET("/api/users/:userId/documents/:docId", s.GetDocument)
	e.POST("/api/check-access", s.CheckAccess)
	e.POST("/api/public/check-access", s.CheckAccessPublic)
	e.GET("/health", s.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// AccessRequest is the body of a direct decision-check call.
type AccessRequest struct {
	User     string `json:"user,omitempty"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// AccessResponse reports a decision outcome.
type AccessResponse struct {
	Allowed bool `json:"allowed"`
}

// DocumentResponse is the demo document payload.
type DocumentResponse struct {
	UserID  string `json:"userId"`
	DocID   string `json:"docId"`
	Content string `json:"content"`
}

// GetDocument serves the demo protected resource. Authorization has
// already happened in the enforcement filter by the time this runs.
func (s Server) GetDocument(c echo.Context) error {
	userID := c.Param("userId")
	docID := c.Param("docId")

	return c.JSON(http.StatusOK, DocumentResponse{
		UserID:  userID,
		DocID:   docID,
		Content: fmt.Sprintf("Document %s content for user %s", docID, userID),
	})
}

// CheckAccess is the protected decision-check endpoint. The subject is
// derived from the verified identity only; a 'user' field in the body is
// ignored.
func (s Server) CheckAccess(c echo.Context) error {
	id, ok := enforcement.IdentityFrom(c)
	if !ok {
		return enforcement.RespondError(c,
			common.NewError(common.ReasonMissingIdentity, "no verified identity available"))
	}

	var body AccessRequest
	if err := c.Bind(&body); err != nil {
		return enforcement.RespondError(c,
			common.NewError(common.ReasonInvalidInput, "malformed request body"))
	}

	return s.decide(c, pdp.Request{
		Subject:  id.Subject,
		Action:   body.Action,
		Resource: body.Resource,
	})
}

// CheckAccessPublic is the public decision-check endpoint; the subject is
// taken from the request body.
func (s Server) CheckAccessPublic(c echo.Context) error {
	var body AccessRequest
	if err := c.Bind(&body); err != nil {
		return enforcement.RespondError(c,
			common.NewError(common.ReasonInvalidInput, "malformed request body"))
	}

	return s.decide(c, pdp.Request{
		Subject:  body.User,
		Action:   body.Action,
		Resource: body.Resource,
	})
}

func (s Server) decide(c echo.Context, req pdp.Request) error {
	result, err := s.client.Decide(c.Request().Context(), req)
	if err != nil {
		return enforcement.RespondError(c, err)
	}
	return c.JSON(http.StatusOK, AccessResponse{Allowed: result.Allowed})
}

// HealthResponse reports the gateway's view of itself and of the engine.
type HealthResponse struct {
	Status  string     `json:"status"`
	Breaker string     `json:"breaker"`
	Engine  pdp.Status `json:"engine"`
}

// Health reports gateway health including an engine reachability probe.
// The probe is observational; it never influences enforcement.
func (s Server) Health(c echo.Context) error {
	engine := s.client.CheckHealth(c.Request().Context())

	status := http.StatusOK
	state := "UP"
	if !engine.Up {
		status = http.StatusServiceUnavailable
		state = "DOWN"
	}

	return c.JSON(status, HealthResponse{
		Status:  state,
		Breaker: s.client.BreakerState().String(),
		Engine:  engine,
	})
}
