// Package crypto provides the cryptographic primitives used by the simplepm
// database file format.
//
// # Security Features
//
//   - AES-256-GCM authenticated encryption
//   - Parameterized key stretching: Argon2id, Argon2i, or AES-KDF rounds
//   - Cryptographically secure random nonce generation
//   - Secure memory wiping for sensitive data
//
// # Example Usage
//
//	params := crypto.DefaultKDF()
//	key, err := params.DeriveKey([]byte("password"), salt)
//
//	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
//	plaintext, err := crypto.Decrypt(key, ciphertext, nonce)
//
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of KDF salts written by new files.
	SaltLength = 32

	// MiB is one mebibyte in bytes. KDF memory costs are expressed in bytes.
	MiB = 1024 * 1024
)

// KDF algorithm identifiers as stored in file headers.
const (
	AlgArgon2id = "argon2id"
	AlgArgon2i  = "argon2i"
	AlgAESKDF   = "aes-kdf"
)

// Default key stretching parameters for newly created or upgraded files.
const (
	DefaultIterations  = 2
	DefaultMemory      = 64 * MiB
	DefaultParallelism = 2
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrUnknownKDF indicates the KDF algorithm identifier is not supported.
	ErrUnknownKDF = errors.New("crypto: unknown KDF algorithm")

	// ErrInvalidKDFParams indicates a zero or out-of-range KDF parameter.
	ErrInvalidKDFParams = errors.New("crypto: invalid KDF parameters")
)

// KDFParams describes how a master credential is stretched into a key.
// For AES-KDF only Iterations (the number of rounds) is meaningful.
type KDFParams struct {
	Algorithm   string `json:"algorithm"`
	Iterations  uint64 `json:"iterations"`
	Memory      uint64 `json:"memory,omitempty"`
	Parallelism uint32 `json:"parallelism,omitempty"`
}

// DefaultKDF returns the parameter set used for new databases.
func DefaultKDF() KDFParams {
	return KDFParams{
		Algorithm:   AlgArgon2id,
		Iterations:  DefaultIterations,
		Memory:      DefaultMemory,
		Parallelism: DefaultParallelism,
	}
}

// Validate checks that the parameters can be used for derivation.
func (p KDFParams) Validate() error {
	switch p.Algorithm {
	case AlgArgon2id, AlgArgon2i:
		if p.Iterations == 0 || p.Iterations > 1<<32-1 {
			return fmt.Errorf("%w: iterations out of range", ErrInvalidKDFParams)
		}
		if p.Memory < 8*1024 || p.Memory/1024 > 1<<32-1 {
			return fmt.Errorf("%w: memory out of range", ErrInvalidKDFParams)
		}
		if p.Parallelism == 0 || p.Parallelism > 255 {
			return fmt.Errorf("%w: parallelism out of range", ErrInvalidKDFParams)
		}
	case AlgAESKDF:
		if p.Iterations == 0 {
			return fmt.Errorf("%w: rounds must be positive", ErrInvalidKDFParams)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKDF, p.Algorithm)
	}
	return nil
}

// DeriveKey stretches password into a 256-bit key using the configured algorithm.
// The salt should be at least 16 bytes of cryptographically secure random data.
func (p KDFParams) DeriveKey(password, salt []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch p.Algorithm {
	case AlgArgon2id:
		return argon2.IDKey(password, salt, uint32(p.Iterations), uint32(p.Memory/1024), uint8(p.Parallelism), KeyLength), nil
	case AlgArgon2i:
		return argon2.Key(password, salt, uint32(p.Iterations), uint32(p.Memory/1024), uint8(p.Parallelism), KeyLength), nil
	default:
		return aesKDF(password, salt, p.Iterations)
	}
}

// aesKDF hashes the password, then encrypts it Iterations times with AES-256
// in ECB mode keyed by the salt, and hashes the result.
func aesKDF(password, salt []byte, rounds uint64) ([]byte, error) {
	seed := sha256.Sum256(salt)
	block, err := aes.NewCipher(seed[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	composite := sha256.Sum256(password)
	buf := composite[:]
	for i := uint64(0); i < rounds; i++ {
		block.Encrypt(buf[:16], buf[:16])
		block.Encrypt(buf[16:], buf[16:])
	}
	key := sha256.Sum256(buf)
	SecureWipe(buf)
	return key[:], nil
}

// Encrypt encrypts plaintext using AES-256-GCM authenticated encryption.
//
// A fresh 12-byte nonce is generated for every call and returned alongside
// the ciphertext; the authentication tag is appended to the ciphertext.
func Encrypt(key, plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	if len(key) != KeyLength {
		return nil, nil, ErrInvalidKeyLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM authenticated encryption.
// Returns ErrDecryptionFailed if the authentication tag does not verify.
func Decrypt(key, ciphertext, nonce []byte) (plaintext []byte, err error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}

	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// GCM tag is 16 bytes
	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err = gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// GenerateSalt returns SaltLength random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// keep b live until after the loop so the writes are not elided
	runtime.KeepAlive(b)
}
