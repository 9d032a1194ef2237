//
//  Copyright © Manetu Inc. All rights reserved.
//

package enforcement

import (
	"encoding/json"

	"github.com/labstack/echo/v4"
)

// Identity is a verified identity claim set. Producing it is the job of an
// upstream authentication collaborator; the gateway never verifies
// credentials itself.
type Identity struct {
	// Subject is the principal id on whose behalf decisions are requested.
	Subject string
	// Claims carries any additional verified claims, passed through to
	// handlers untouched.
	Claims map[string]string
}

// Headers populated by the fronting authenticator after it has verified
// the caller's credentials.
const (
	HeaderVerifiedSubject = "X-Verified-User"
	HeaderVerifiedClaims  = "X-Verified-Claims"
)

const identityContextKey = "policygateway.identity"

// SetIdentity attaches a verified identity to the request context.
func SetIdentity(c echo.Context, id Identity) {
	c.Set(identityContextKey, id)
}

// IdentityFrom returns the verified identity attached to the request, if any.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityContextKey).(Identity)
	return id, ok && id.Subject != ""
}

// VerifiedHeaderIdentity lifts the fronting authenticator's verified-claims
// headers into an [Identity]. It never rejects a request; requests without
// the headers simply proceed without an identity, and the enforcement
// filter decides what that means for the route.
func VerifiedHeaderIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject := c.Request().Header.Get(HeaderVerifiedSubject)
			if subject == "" {
				return next(c)
			}

			id := Identity{Subject: subject}
			if raw := c.Request().Header.Get(HeaderVerifiedClaims); raw != "" {
				// claims are optional; a malformed header only drops them
				_ = json.Unmarshal([]byte(raw), &id.Claims)
			}

			SetIdentity(c, id)
			return next(c)
		}
	}
}
