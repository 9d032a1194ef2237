//
//  Copyright © Manetu Inc. All rights reserved.
//

package enforcement

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/manetu/policygateway/pkg/common"
	"github.com/manetu/policygateway/pkg/pdp"
)

// HeaderRequestID is the correlation id header. An inbound value is
// reused, otherwise one is generated; either way it is echoed on the
// response.
const HeaderRequestID = "X-Request-ID"

const requestIDContextKey = "policygateway.requestid"

// ErrorResponse is the single response shape produced for every failure
// and denial at the enforcement boundary.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Status    int       `json:"status"`
	ErrorID   string    `json:"errorId"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

// Filter enforces policy decisions on inbound requests. Requests matching
// the skip list pass through untouched; everything else is mapped to a
// decision request and allowed or denied.
type Filter struct {
	client   *pdp.Client
	mapper   *Mapper
	skipList []string
}

// NewFilter creates an enforcement filter. Skip list entries ending in
// '/' match as path prefixes, except the bare "/" which matches exactly;
// all other entries match exactly.
func NewFilter(client *pdp.Client, mapper *Mapper, skipList []string) *Filter {
	return &Filter{
		client:   client,
		mapper:   mapper,
		skipList: skipList,
	}
}

// RequestIDFrom returns the correlation id attached to the request.
func RequestIDFrom(c echo.Context) string {
	id, _ := c.Get(requestIDContextKey).(string)
	return id
}

func (f *Filter) skipped(path string) bool {
	for _, entry := range f.skipList {
		if entry == path {
			return true
		}
		if entry != "/" && strings.HasSuffix(entry, "/") && strings.HasPrefix(path, entry) {
			return true
		}
	}
	return false
}

// Middleware returns the echo middleware performing enforcement.
//
// Every request, skipped or not, gets a correlation id echoed on the
// response. Any panic below the filter is caught at this boundary and
// converted into a generic internal error; it never propagates and never
// silently allows.
func (f *Filter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(HeaderRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Set(requestIDContextKey, requestID)
			c.Response().Header().Set(HeaderRequestID, requestID)

			if f.skipped(c.Request().URL.Path) {
				return next(c)
			}

			var err error
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("sys", "enforce", "panic in enforcement pipeline [%s]: %v", requestID, r)
						err = f.fail(c, common.NewErrorf(common.ReasonInternal, "panic: %v", r))
					}
				}()
				err = f.enforce(c, next, requestID)
			}()
			return err
		}
	}
}

func (f *Filter) enforce(c echo.Context, next echo.HandlerFunc, requestID string) error {
	method := c.Request().Method
	path := c.Request().URL.Path

	id, _ := IdentityFrom(c)

	req, err := f.mapper.Map(id, method, path)
	if err != nil {
		return f.fail(c, err)
	}

	result, err := f.client.Decide(c.Request().Context(), req)
	if err != nil {
		return f.fail(c, err)
	}

	if !result.Allowed {
		logger.Warnf(req.Subject, "enforce", "access denied [%s]: action=%s resource=%s source=%s",
			requestID, req.Action, req.Resource, result.Source)
		return f.deny(c)
	}

	logger.Debugf(req.Subject, "enforce", "access granted [%s]: action=%s resource=%s latency=%s",
		requestID, req.Action, req.Resource, result.Latency)
	return next(c)
}

// deny produces the access-denied response. Denials from the engine and
// from the fail-closed fallback are deliberately indistinguishable so that
// callers cannot probe engine health through decision outcomes.
func (f *Filter) deny(c echo.Context) error {
	return respond(c, http.StatusForbidden, "ACCESS_DENIED", "Access denied")
}

func (f *Filter) fail(c echo.Context, err error) error {
	return RespondError(c, err)
}

// RespondError maps a classified pipeline error onto its response variant.
// The match is exhaustive: each reason code yields exactly one response
// shape. Invalid input carries its diagnostic detail; everything else is
// deliberately opaque.
func RespondError(c echo.Context, err error) error {
	switch code := common.CodeOf(err); code {
	case common.ReasonInvalidInput:
		return respond(c, http.StatusBadRequest, code.String(), err.Error())
	case common.ReasonMissingIdentity:
		return respond(c, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required")
	case common.ReasonEngineUnavailable:
		// fail closed; indistinguishable from a policy denial
		return respond(c, http.StatusForbidden, "ACCESS_DENIED", "Access denied")
	default:
		return respond(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}

func respond(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Status:    status,
		ErrorID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Path:      c.Request().URL.Path,
	})
}
