package vault

import "errors"

// Sentinel errors returned by Database operations. Open and save failures
// wrap ErrOpen or ErrSave together with the underlying message.
var (
	ErrOpen                 = errors.New("vault: failed to open database")
	ErrSave                 = errors.New("vault: failed to save database")
	ErrNotLoaded            = errors.New("vault: database not loaded")
	ErrInvalidCredentials   = errors.New("vault: invalid password or keyfile")
	ErrEntryNotFound        = errors.New("vault: entry not found")
	ErrGroupNotFound        = errors.New("vault: group not found")
	ErrInvalidUUID          = errors.New("vault: invalid UUID format")
	ErrInvalidAttachmentKey = errors.New("vault: attachment key must be non-empty and must not contain '.'")
	ErrInvalidExpiry        = errors.New("vault: invalid expiry time")
	ErrAttachmentNotFound   = errors.New("vault: attachment not found")
	ErrInsufficientDisk     = errors.New("vault: insufficient disk space")
)
