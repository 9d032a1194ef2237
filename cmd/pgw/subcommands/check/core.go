//
//  Copyright © Manetu Inc. All rights reserved.
//

package check

import (
	"context"
	"encoding/json"
	"os"

	"github.com/manetu/policygateway/pkg/gateway/config"
	"github.com/manetu/policygateway/pkg/pdp"
	"github.com/urfave/cli/v3"
)

// output is the JSON shape printed for a one-shot decision check.
type output struct {
	Allowed   bool   `json:"allowed"`
	Source    string `json:"source"`
	LatencyMs int64  `json:"latencyMs"`
}

// Execute runs a single decision check against the configured policy
// engine and prints the outcome as JSON.
func Execute(ctx context.Context, cmd *cli.Command) error {
	if err := config.Load(); err != nil {
		return err
	}

	if url := cmd.String("engine-url"); url != "" {
		config.VConfig.Set(config.EngineURL, url)
	}

	client, err := pdp.NewClient()
	if err != nil {
		return err
	}

	result, err := client.Decide(ctx, pdp.Request{
		Subject:  cmd.String("user"),
		Action:   cmd.String("action"),
		Resource: cmd.String("resource"),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output{
		Allowed:   result.Allowed,
		Source:    result.Source.String(),
		LatencyMs: result.Latency.Milliseconds(),
	})
}
