//
//  Copyright © Manetu Inc. All rights reserved.
//

package main

import (
	"context"
	"log"
	"os"

	"github.com/manetu/policygateway/cmd/pgw/subcommands/check"
	"github.com/manetu/policygateway/cmd/pgw/subcommands/health"
	"github.com/manetu/policygateway/cmd/pgw/subcommands/serve"
	"github.com/manetu/policygateway/cmd/pgw/version"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "pgw",
		Usage:   "A CLI application for running and exercising the Manetu PolicyGateway",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Creates a gateway service enforcing policy decisions on inbound requests",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "The TCP port to serve on.",
						Value: 8080,
					},
					&cli.StringFlag{
						Name:    "engine-url",
						Aliases: []string{"e"},
						Usage:   "Base URL of the remote policy engine.  Overrides configuration.",
					},
					&cli.StringFlag{
						Name:    "rules",
						Aliases: []string{"r"},
						Usage:   "Load request-mapping rules from YAML `FILE` instead of the built-in defaults",
					},
				},
				Action: serve.Execute,
			},
			{
				Name:  "check",
				Usage: "Invokes a one-shot policy decision against the configured engine",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "The subject of the decision request",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "action",
						Aliases:  []string{"a"},
						Usage:    "The action of the decision request",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "resource",
						Aliases:  []string{"s"},
						Usage:    "The resource of the decision request",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "engine-url",
						Aliases: []string{"e"},
						Usage:   "Base URL of the remote policy engine.  Overrides configuration.",
					},
				},
				Action: check.Execute,
			},
			{
				Name:  "health",
				Usage: "Probes the policy engine's health endpoint",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "engine-url",
						Aliases: []string{"e"},
						Usage:   "Base URL of the remote policy engine.  Overrides configuration.",
					},
				},
				Action: health.Execute,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
