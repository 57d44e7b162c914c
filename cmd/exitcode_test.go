package cmd

import (
	"context"
	"fmt"
	"testing"

	"flakeview/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", fmt.Errorf("boom"), ExitInternal},
		{"config", errors.New(errors.ErrCodeConfigMissing, "missing"), ExitConfig},
		{"key", errors.New(errors.ErrCodeInvalidKey, "bad key"), ExitFile},
		{"halted", errors.New(errors.ErrCodeDeploymentHalted, "halted"), ExitDeployment},
		{"auth", errors.New(errors.ErrCodeAuthenticationFailed, "denied"), ExitDeployment},
		{"order", errors.New(errors.ErrCodeDependencyOrder, "order"), ExitValidation},
		{"repo", errors.New(errors.ErrCodeRepoNotFound, "no repo"), ExitValidation},
		{"cancelled", errors.New(errors.ErrCodeCancelled, "stop"), ExitCancelled},
		{"context", fmt.Errorf("run: %w", context.Canceled), ExitCancelled},
		{"wrapped", fmt.Errorf("outer: %w", errors.New(errors.ErrCodeFileNotFound, "gone")), ExitFile},
		{"unmapped", errors.New(errors.ErrCodeInternal, "bug"), ExitInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
