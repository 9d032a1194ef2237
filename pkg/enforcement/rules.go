//
//  Copyright © Manetu Inc. All rights reserved.
//

package enforcement

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads an ordered mapping rule set from a YAML file of the form:
//
//	rules:
//	  - pattern: "**/users/:userId/documents/:docId"
//	    resource: "document:${docId}"
//	  - pattern: "**/users/**"
//	    resource: "user-api"
//
// An empty path returns the built-in [DefaultRules].
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading mapping rules from %s", path)
	}

	var parsed rulesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrapf(err, "parsing mapping rules from %s", path)
	}
	if len(parsed.Rules) == 0 {
		return nil, errors.Errorf("mapping rules file %s contains no rules", path)
	}

	logger.SysInfof("loaded %d mapping rule(s) from %s", len(parsed.Rules), path)
	return parsed.Rules, nil
}
