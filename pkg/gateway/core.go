//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package gateway assembles the Policy Decision Gateway: an HTTP server
// whose inbound requests are authorized against a remote policy engine
// before reaching their handlers.
//
// A gateway combines three collaborators:
//   - [pdp.Client]: the resilient decision client
//   - [enforcement.Mapper]: request-to-decision-input mapping
//   - [enforcement.Filter]: per-request enforcement middleware
//
// # Usage
//
// Create and start a gateway server:
//
//	client, _ := pdp.NewClient()
//	mapper, _ := enforcement.NewMapper(enforcement.DefaultRules())
//	server, _ := gateway.CreateServer(client, mapper, 8080)
//	defer server.Stop(ctx)
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/manetu/policygateway/pkg/enforcement"
	"github.com/manetu/policygateway/pkg/gateway/api"
	"github.com/manetu/policygateway/pkg/gateway/config"
	"github.com/manetu/policygateway/pkg/pdp"
)

// Server is the interface for gateway servers that can be gracefully
// stopped.
//
// Implementations must ensure that [Server.Stop] completes any in-flight
// requests before returning.
type Server interface {
	// Stop gracefully shuts down the server, waiting for active requests
	// to complete or until the context is cancelled.
	Stop(context.Context) error
}

type server struct {
	echo *echo.Echo
}

// CreateServer creates and starts a new gateway server on the given port.
// The enforcement skip list is taken from configuration.
func CreateServer(client *pdp.Client, mapper *enforcement.Mapper, port int) (Server, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true

	filter := enforcement.NewFilter(client, mapper,
		config.VConfig.GetStringSlice(config.EnforcementSkipList))

	e.Use(enforcement.VerifiedHeaderIdentity())
	e.Use(filter.Middleware())

	api.RegisterHandlers(e, api.NewServer(client))

	// Start server in goroutine since e.Start() blocks
	go func() {
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal(err)
		}
	}()

	return &server{
		echo: e,
	}, nil
}

// Stop gracefully stops the server by shutting down the Echo HTTP server.
func (s *server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
