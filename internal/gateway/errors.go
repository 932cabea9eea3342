package gateway

import "errors"

var (
	ErrOriginRejected         = errors.New("message origin not in allowlist")
	ErrSchemaValidationFailed = errors.New("message failed schema validation")
	ErrSubscriberFailure      = errors.New("subscriber failed")
	ErrNotMounted             = errors.New("module instance not mounted")
	ErrAlreadyMounted         = errors.New("module instance already mounted")
	ErrEmptyAllowlist         = errors.New("allowlist is empty")
	ErrNoMessageTypes         = errors.New("subscription needs at least one message type")
)
