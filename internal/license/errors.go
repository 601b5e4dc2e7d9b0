package license

import "errors"

// Domain errors for license operations. Every request-rejection condition is
// a sentinel value so callers branch with errors.Is instead of string checks.
var (
	ErrLicenseNotFound        = errors.New("license not found")
	ErrActivationNotFound     = errors.New("activation not found")
	ErrTrialExpired           = errors.New("trial expired")
	ErrDeviceLimitExceeded    = errors.New("device limit exceeded")
	ErrActivationCodeNotFound = errors.New("activation code not found")
	ErrActivationCodeExpired  = errors.New("activation code expired")
	ErrActivationCodeDepleted = errors.New("activation code depleted")
)

// Machine-readable condition codes carried in error responses
const (
	CodeLicenseNotFound        = "license_not_found"
	CodeActivationNotFound     = "activation_not_found"
	CodeTrialExpired           = "trial_expired"
	CodeDeviceLimitExceeded    = "device_limit_exceeded"
	CodeActivationCodeNotFound = "activation_code_not_found"
	CodeActivationCodeExpired  = "activation_code_expired"
	CodeActivationCodeDepleted = "activation_code_depleted"
	CodeInternalError          = "internal_error"
)

// CodeForError returns the condition code for a domain error, or
// CodeInternalError when the error is not part of the taxonomy.
func CodeForError(err error) string {
	switch {
	case errors.Is(err, ErrLicenseNotFound):
		return CodeLicenseNotFound
	case errors.Is(err, ErrActivationNotFound):
		return CodeActivationNotFound
	case errors.Is(err, ErrTrialExpired):
		return CodeTrialExpired
	case errors.Is(err, ErrDeviceLimitExceeded):
		return CodeDeviceLimitExceeded
	case errors.Is(err, ErrActivationCodeNotFound):
		return CodeActivationCodeNotFound
	case errors.Is(err, ErrActivationCodeExpired):
		return CodeActivationCodeExpired
	case errors.Is(err, ErrActivationCodeDepleted):
		return CodeActivationCodeDepleted
	default:
		return CodeInternalError
	}
}
