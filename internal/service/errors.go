package service

import "codeberg.org/mutker/benchlog/internal/errors"

const (
	ErrDeleteActiveSession = errors.ErrorCode("service_delete_active_session")
	ErrRecoveryFailed      = errors.ErrorCode("service_recovery_failed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrDeleteActiveSession: "Cannot delete the active session, stop it first",
		ErrRecoveryFailed:      "Failed to recover sessions left active",
	})
}
