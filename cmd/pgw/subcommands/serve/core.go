//
//  Copyright © Manetu Inc. All rights reserved.
//

package serve

import (
	"context"
	"os"
	"os/signal"

	"github.com/manetu/policygateway/internal/logging"
	"github.com/manetu/policygateway/pkg/enforcement"
	"github.com/manetu/policygateway/pkg/gateway"
	"github.com/manetu/policygateway/pkg/gateway/config"
	"github.com/manetu/policygateway/pkg/pdp"
	"github.com/urfave/cli/v3"
)

var logger = logging.GetLogger("policygateway")

const agent string = "serve"

// Execute runs the serve command, starting a gateway server that enforces
// policy decisions on inbound requests. It gracefully shuts down on
// interrupt signals.
func Execute(ctx context.Context, cmd *cli.Command) error {
	if err := config.Load(); err != nil {
		return err
	}

	// CLI flags take precedence over config-file/envvar settings
	if url := cmd.String("engine-url"); url != "" {
		config.VConfig.Set(config.EngineURL, url)
	}

	rulesFile := config.VConfig.GetString(config.EnforcementRulesFile)
	if f := cmd.String("rules"); f != "" {
		rulesFile = f
	}
	rules, err := enforcement.LoadRules(rulesFile)
	if err != nil {
		return err
	}

	mapper, err := enforcement.NewMapper(rules)
	if err != nil {
		return err
	}

	client, err := pdp.NewClient()
	if err != nil {
		return err
	}

	server, err := gateway.CreateServer(client, mapper, cmd.Int("port"))
	if err != nil {
		return err
	}

	logger.Infof(agent, "start", "Gateway serving on port %d, engine at %s",
		cmd.Int("port"), config.VConfig.GetString(config.EngineURL))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	logger.Info(agent, "shutdown", "Shutting down server...")

	err = server.Stop(ctx)
	if err != nil {
		return err
	}

	logger.Info(agent, "shutdown", "Server exited gracefully.")
	return nil
}
