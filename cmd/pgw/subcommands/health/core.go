//
//  Copyright © Manetu Inc. All rights reserved.
//

package health

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/manetu/policygateway/pkg/gateway/config"
	"github.com/manetu/policygateway/pkg/pdp"
	"github.com/urfave/cli/v3"
)

// Execute probes the configured policy engine's health endpoint and
// prints the result. Exits non-zero when the engine is unreachable.
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

	status := client.CheckHealth(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return err
	}

	if !status.Up {
		return fmt.Errorf("policy engine at %s is unreachable", status.URL)
	}
	return nil
}
