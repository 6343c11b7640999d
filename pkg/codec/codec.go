package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/forest6511/simplepm/pkg/crypto"
	"github.com/forest6511/simplepm/pkg/secret"
	"github.com/forest6511/simplepm/pkg/vault"
)

// cipherName is recorded in the header for inspection tools.
const cipherName = "aes-256-gcm"

// Codec reads and writes database files. It implements vault.Codec.
type Codec struct {
	keyFile []byte
	now     func() time.Time
}

var _ vault.Codec = (*Codec)(nil)

// Option configures a Codec.
type Option func(*Codec)

// WithKeyFile adds key file content to the credential.
func WithKeyFile(data []byte) Option {
	return func(c *Codec) { c.keyFile = append([]byte(nil), data...) }
}

// WithClock overrides the time recorded in headers.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New returns a codec.
func New(opts ...Option) *Codec {
	c := &Codec{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wipe clears the key file held by the codec.
func (c *Codec) Wipe() {
	crypto.SecureWipe(c.keyFile)
	c.keyFile = nil
}

// Encode encrypts tree with a fresh salt, using tree.KDF for key stretching.
func (c *Codec) Encode(w io.Writer, tree *vault.Tree, credential secret.String) error {
	if tree == nil || tree.Root == nil {
		return errors.New("codec: tree has no root group")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	header := &Header{
		Version:     FormatVersion,
		SavedAt:     c.now(),
		KDF:         tree.KDF,
		Salt:        salt,
		Cipher:      cipherName,
		UsesKeyFile: len(c.keyFile) > 0,
	}

	password := credential.Bytes()
	defer crypto.SecureWipe(password)
	encKey, macKey, err := deriveKeys(password, c.keyFile, header)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	plaintext, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal tree: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	ciphertext, err := sealPayload(plaintext, encKey)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(ciphertext))); err != nil {
		return fmt.Errorf("failed to write ciphertext length: %w", err)
	}
	buf.Write(ciphertext)

	mac := computeHMAC(buf.Bytes(), macKey)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write database: %w", err)
	}
	if _, err := w.Write(mac); err != nil {
		return fmt.Errorf("failed to write HMAC: %w", err)
	}
	return nil
}

// Decode verifies and decrypts a database file. A wrong password or key
// file, or a tampered file, yields an error wrapping
// vault.ErrInvalidCredentials; format errors do not.
func (c *Codec) Decode(r io.Reader, credential secret.String) (*vault.Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read database: %w", err)
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, err
	}
	headerEnd := len(data) - reader.Len()

	var ciphertextLen uint32
	if err := binary.Read(reader, binary.BigEndian, &ciphertextLen); err != nil {
		return nil, fmt.Errorf("%w: ciphertext length", ErrTruncated)
	}
	if uint64(reader.Len()) < uint64(ciphertextLen)+HMACLength {
		return nil, ErrTruncated
	}
	bodyEnd := headerEnd + 4 + int(ciphertextLen)
	ciphertext := data[headerEnd+4 : bodyEnd]
	storedMAC := data[bodyEnd : bodyEnd+HMACLength]

	password := credential.Bytes()
	defer crypto.SecureWipe(password)
	encKey, macKey, err := deriveKeys(password, c.keyFile, header)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !verifyHMAC(data[:bodyEnd], storedMAC, macKey) {
		return nil, fmt.Errorf("%w: %w", vault.ErrInvalidCredentials, ErrIntegrityFailed)
	}

	plaintext, err := openPayload(ciphertext, encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vault.ErrInvalidCredentials, err)
	}
	defer crypto.SecureWipe(plaintext)

	var tree vault.Tree
	if err := json.Unmarshal(plaintext, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree: %w", err)
	}
	tree.KDF = header.KDF
	return &tree, nil
}

// Inspect reads the unauthenticated header without decrypting.
func Inspect(r io.Reader) (*Header, error) {
	return ReadHeader(r)
}
