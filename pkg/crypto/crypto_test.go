package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

// cheapArgon keeps test derivation fast while still exercising argon2.
func cheapArgon(alg string) KDFParams {
	return KDFParams{Algorithm: alg, Iterations: 1, Memory: 8 * 1024, Parallelism: 1}
}

func TestDeriveKey(t *testing.T) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}

	params := []KDFParams{
		cheapArgon(AlgArgon2id),
		cheapArgon(AlgArgon2i),
		{Algorithm: AlgAESKDF, Iterations: 100},
	}

	for _, p := range params {
		t.Run(p.Algorithm, func(t *testing.T) {
			key, err := p.DeriveKey([]byte("test-password-123"), salt)
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if len(key) != KeyLength {
				t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
			}

			key2, _ := p.DeriveKey([]byte("test-password-123"), salt)
			if !bytes.Equal(key, key2) {
				t.Error("DeriveKey() with same inputs should produce identical keys")
			}

			other, _ := p.DeriveKey([]byte("different-password"), salt)
			if bytes.Equal(key, other) {
				t.Error("DeriveKey() with different password should produce different key")
			}
		})
	}
}

func TestDeriveKeyAlgorithmsDiffer(t *testing.T) {
	salt := []byte("0123456789abcdef")
	id, _ := cheapArgon(AlgArgon2id).DeriveKey([]byte("pw"), salt)
	i, _ := cheapArgon(AlgArgon2i).DeriveKey([]byte("pw"), salt)
	if bytes.Equal(id, i) {
		t.Error("argon2id and argon2i should derive different keys")
	}
}

func TestKDFParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  KDFParams
		wantErr error
	}{
		{"default", DefaultKDF(), nil},
		{"aes", KDFParams{Algorithm: AlgAESKDF, Iterations: 60000}, nil},
		{"unknown", KDFParams{Algorithm: "scrypt", Iterations: 1}, ErrUnknownKDF},
		{"zero iterations", KDFParams{Algorithm: AlgArgon2id, Memory: MiB, Parallelism: 1}, ErrInvalidKDFParams},
		{"tiny memory", KDFParams{Algorithm: AlgArgon2id, Iterations: 1, Memory: 1024, Parallelism: 1}, ErrInvalidKDFParams},
		{"zero parallelism", KDFParams{Algorithm: AlgArgon2i, Iterations: 1, Memory: MiB}, ErrInvalidKDFParams},
		{"zero rounds", KDFParams{Algorithm: AlgAESKDF}, ErrInvalidKDFParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultKDF(t *testing.T) {
	p := DefaultKDF()
	if p.Algorithm != AlgArgon2id {
		t.Errorf("Algorithm = %q, want %q", p.Algorithm, AlgArgon2id)
	}
	if p.Iterations != 2 || p.Memory != 64*MiB || p.Parallelism != 2 {
		t.Errorf("unexpected default params: %+v", p)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	for _, plaintext := range [][]byte{{}, []byte("secret data"), bytes.Repeat([]byte{0xAB}, 64*1024)} {
		ciphertext, nonce, err := Encrypt(key, plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if len(nonce) != NonceLength {
			t.Errorf("Encrypt() nonce length = %d, want %d", len(nonce), NonceLength)
		}
		got, err := Decrypt(key, ciphertext, nonce)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Error("Decrypt() did not return the original plaintext")
		}
	}
}

func TestEncryptInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33} {
		if _, _, err := Encrypt(make([]byte, n), []byte("x")); !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("Encrypt() with %d-byte key error = %v, want %v", n, err, ErrInvalidKeyLength)
		}
	}
}

func TestDecryptFailures(t *testing.T) {
	key := make([]byte, KeyLength)
	rand.Read(key)
	ciphertext, nonce, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	t.Run("wrong key", func(t *testing.T) {
		other := make([]byte, KeyLength)
		rand.Read(other)
		if _, err := Decrypt(other, ciphertext, nonce); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		tampered := append([]byte(nil), ciphertext...)
		tampered[0] ^= 0xFF
		if _, err := Decrypt(key, tampered, nonce); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("expected ErrDecryptionFailed, got %v", err)
		}
	})

	t.Run("short nonce", func(t *testing.T) {
		if _, err := Decrypt(key, ciphertext, nonce[:8]); !errors.Is(err, ErrInvalidNonceLength) {
			t.Errorf("expected ErrInvalidNonceLength, got %v", err)
		}
	})

	t.Run("short ciphertext", func(t *testing.T) {
		if _, err := Decrypt(key, []byte{1, 2, 3}, nonce); !errors.Is(err, ErrCiphertextTooShort) {
			t.Errorf("expected ErrCiphertextTooShort, got %v", err)
		}
	})
}

func TestEncryptProducesUniqueNonce(t *testing.T) {
	key := make([]byte, KeyLength)
	rand.Read(key)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, nonce, err := Encrypt(key, []byte("same"))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[string(nonce)] {
			t.Fatal("Encrypt() reused a nonce")
		}
		seen[string(nonce)] = true
	}
}

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	b, _ := GenerateSalt()
	if len(a) != SaltLength {
		t.Errorf("salt length = %d, want %d", len(a), SaltLength)
	}
	if bytes.Equal(a, b) {
		t.Error("GenerateSalt() returned identical salts")
	}
}

func TestSecureWipe(t *testing.T) {
	data := []byte("sensitive")
	SecureWipe(data)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
	SecureWipe(nil)
}

func BenchmarkDeriveKeyDefault(b *testing.B) {
	salt := make([]byte, SaltLength)
	p := DefaultKDF()
	for i := 0; i < b.N; i++ {
		_, _ = p.DeriveKey([]byte("benchmark-password"), salt)
	}
}
