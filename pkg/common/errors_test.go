//
//  Copyright © Manetu Inc. All rights reserved.
//

package common

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestGatewayErrorFormat(t *testing.T) {
	err := NewError(ReasonInvalidInput, "subject must not be empty")
	assert.Equal(t, "subject must not be empty(code-INVALID_INPUT)", err.Error())
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf(ReasonEngineUnavailable, "engine returned status %d", 503)
	assert.Equal(t, ReasonEngineUnavailable, err.ReasonCode)
	assert.Contains(t, err.Reason, "503")
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ReasonCode
	}{
		{"nil", nil, ReasonUnknown},
		{"gateway error", NewError(ReasonMissingIdentity, "no identity"), ReasonMissingIdentity},
		{"wrapped gateway error", errors.Wrap(NewError(ReasonInvalidInput, "bad"), "decide"), ReasonInvalidInput},
		{"plain error", fmt.Errorf("boom"), ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestReasonCodeString(t *testing.T) {
	assert.Equal(t, "INVALID_INPUT", ReasonInvalidInput.String())
	assert.Equal(t, "MISSING_IDENTITY", ReasonMissingIdentity.String())
	assert.Equal(t, "ENGINE_UNAVAILABLE", ReasonEngineUnavailable.String())
	assert.Equal(t, "INTERNAL_ERROR", ReasonInternal.String())
	assert.Equal(t, "UNKNOWN", ReasonUnknown.String())
	assert.Equal(t, "UNKNOWN", ReasonCode(99).String())
}
