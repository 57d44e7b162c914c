package cmd

import (
	"context"

	"flakeview/pkg/errors"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitInternal   = 1
	ExitConfig     = 2
	ExitFile       = 3
	ExitDeployment = 4
	ExitValidation = 5
	ExitCancelled  = 130
)

var exitCodes = map[errors.ErrorCode]int{
	errors.ErrCodeConfigNotFound: ExitConfig,
	errors.ErrCodeConfigInvalid:  ExitConfig,
	errors.ErrCodeConfigMissing:  ExitConfig,

	errors.ErrCodeKeyGeneration:    ExitFile,
	errors.ErrCodeInvalidKey:       ExitFile,
	errors.ErrCodeEncryptionFailed: ExitFile,
	errors.ErrCodeFileNotFound:     ExitFile,
	errors.ErrCodeFilePermission:   ExitFile,
	errors.ErrCodeFileOperation:    ExitFile,

	errors.ErrCodeDeploymentHalted:     ExitDeployment,
	errors.ErrCodeConnectionFailed:     ExitDeployment,
	errors.ErrCodeConnectionTimeout:    ExitDeployment,
	errors.ErrCodeAuthenticationFailed: ExitDeployment,
	errors.ErrCodeNetworkUnavailable:   ExitDeployment,
	errors.ErrCodeSQLSyntax:            ExitDeployment,
	errors.ErrCodeSQLPermission:        ExitDeployment,
	errors.ErrCodeSQLTimeout:           ExitDeployment,
	errors.ErrCodeSQLObjectNotFound:    ExitDeployment,
	errors.ErrCodeSQLExecution:         ExitDeployment,
	errors.ErrCodeTimeout:              ExitDeployment,
	errors.ErrCodeResourceExhausted:    ExitDeployment,
	errors.ErrCodeServiceUnavailable:   ExitDeployment,

	errors.ErrCodeValidationFailed: ExitValidation,
	errors.ErrCodeDependencyOrder:  ExitValidation,
	errors.ErrCodeInvalidInput:     ExitValidation,
	errors.ErrCodeRequiredField:    ExitValidation,
	errors.ErrCodeUserInput:        ExitValidation,
	errors.ErrCodeNotFound:         ExitValidation,
	errors.ErrCodeRepoNotFound:     ExitValidation,
	errors.ErrCodeRevisionNotFound: ExitValidation,

	errors.ErrCodeCancelled: ExitCancelled,
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if code, ok := exitCodes[appErr.Code]; ok {
			return code
		}
		return ExitInternal
	}

	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	return ExitInternal
}
