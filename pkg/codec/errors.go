// Package codec implements the encrypted single-file format of simplepm
// databases.
//
// File layout:
//
//	magic "SIMPLEPM" | header length (uint32 BE) | header JSON |
//	ciphertext length (uint32 BE) | nonce + AES-256-GCM ciphertext | HMAC-SHA256
//
// The header carries the KDF parameters and a salt that is regenerated on
// every save. Encryption and MAC keys are split from the stretched master
// key with HKDF-SHA256. The HMAC covers everything before it.
package codec

import "errors"

// Codec errors
var (
	// ErrInvalidMagic indicates the file is not a simplepm database.
	ErrInvalidMagic = errors.New("codec: not a simplepm database: magic number mismatch")

	// ErrUnsupportedVersion indicates the file was written by a newer format version.
	ErrUnsupportedVersion = errors.New("codec: unsupported format version")

	// ErrTruncated indicates the file ends before the declared payload.
	ErrTruncated = errors.New("codec: file truncated")

	// ErrIntegrityFailed indicates the HMAC verification failed.
	ErrIntegrityFailed = errors.New("codec: integrity check failed")

	// ErrDecryptionFailed indicates the payload could not be decrypted.
	ErrDecryptionFailed = errors.New("codec: decryption failed")

	// ErrEmptyCredential indicates neither a password nor a key file was given.
	ErrEmptyCredential = errors.New("codec: password and key file are both empty")

	// ErrInvalidKeyFile indicates an empty or unreadable key file.
	ErrInvalidKeyFile = errors.New("codec: invalid key file")
)
