package codec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/crypto/hkdf"

	"github.com/forest6511/simplepm/pkg/crypto"
)

const (
	// HMACLength is the length of the HMAC-SHA256 trailer in bytes.
	HMACLength = 32

	// KeyFileLength is the size of generated key files.
	KeyFileLength = 32
)

// HKDF info strings for key derivation.
const (
	hkdfInfoEncryption = "simplepm-db-encryption"
	hkdfInfoMAC        = "simplepm-db-mac"
)

// compositeKey hashes the password and key file into the KDF input.
// Either part may be empty but not both.
func compositeKey(password, keyFile []byte) ([]byte, error) {
	if len(password) == 0 && len(keyFile) == 0 {
		return nil, ErrEmptyCredential
	}
	h := sha256.New()
	pw := sha256.Sum256(password)
	h.Write(pw[:])
	if len(keyFile) > 0 {
		kf := sha256.Sum256(keyFile)
		h.Write(kf[:])
	}
	return h.Sum(nil), nil
}

// deriveKeys stretches the composite key with the header's KDF and splits
// the result into encryption and MAC keys.
func deriveKeys(password, keyFile []byte, header *Header) (encKey, macKey []byte, err error) {
	composite, err := compositeKey(password, keyFile)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(composite)

	masterKey, err := header.KDF.DeriveKey(composite, header.Salt)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(masterKey)

	encKey, err = deriveHKDF(masterKey, []byte(hkdfInfoEncryption))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	macKey, err = deriveHKDF(masterKey, []byte(hkdfInfoMAC))
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("failed to derive MAC key: %w", err)
	}
	return encKey, macKey, nil
}

// deriveHKDF derives a key using HKDF-SHA256.
func deriveHKDF(secret, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, crypto.KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// sealPayload encrypts with AES-256-GCM and prepends the nonce.
func sealPayload(plaintext, key []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return append(nonce, ciphertext...), nil
}

// openPayload reverses sealPayload.
func openPayload(data, key []byte) ([]byte, error) {
	if len(data) < crypto.NonceLength {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := crypto.Decrypt(key, data[crypto.NonceLength:], data[:crypto.NonceLength])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func computeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func verifyHMAC(data, expected, key []byte) bool {
	return hmac.Equal(computeHMAC(data, key), expected)
}

// ReadKeyFile reads a key file. Any non-empty file is accepted.
func ReadKeyFile(fs afero.Fs, path string) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidKeyFile
	}
	return data, nil
}

// GenerateKeyFile writes KeyFileLength random bytes to path with owner-only
// permissions. An existing file is not overwritten.
func GenerateKeyFile(fs afero.Fs, path string) error {
	if _, err := fs.Stat(path); err == nil {
		return fmt.Errorf("key file already exists: %s", path)
	}

	key := make([]byte, KeyFileLength)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	defer crypto.SecureWipe(key)

	if err := afero.WriteFile(fs, path, key, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
