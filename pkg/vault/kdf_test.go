package vault

import (
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/forest6511/simplepm/pkg/crypto"
	"github.com/forest6511/simplepm/pkg/secret"
)

func TestKdfInfoFor(t *testing.T) {
	tests := []struct {
		name     string
		params   crypto.KDFParams
		wantType string
		wantWeak bool
	}{
		{"default", crypto.DefaultKDF(), "Argon2id", false},
		{"one iteration", crypto.KDFParams{Algorithm: crypto.AlgArgon2id, Iterations: 1, Memory: 64 * crypto.MiB, Parallelism: 2}, "Argon2id", true},
		{"low memory", crypto.KDFParams{Algorithm: crypto.AlgArgon2id, Iterations: 3, Memory: 32 * crypto.MiB, Parallelism: 4}, "Argon2id", true},
		{"single lane", crypto.KDFParams{Algorithm: crypto.AlgArgon2i, Iterations: 3, Memory: 128 * crypto.MiB, Parallelism: 1}, "Argon2i", true},
		{"argon2i strong", crypto.KDFParams{Algorithm: crypto.AlgArgon2i, Iterations: 2, Memory: 64 * crypto.MiB, Parallelism: 2}, "Argon2i", false},
		{"aes weak", crypto.KDFParams{Algorithm: crypto.AlgAESKDF, Iterations: 6000}, "AES", true},
		{"aes strong", crypto.KDFParams{Algorithm: crypto.AlgAESKDF, Iterations: 600000}, "AES", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := KdfInfoFor(tt.params)
			if info.KdfType != tt.wantType {
				t.Errorf("KdfType = %s, want %s", info.KdfType, tt.wantType)
			}
			if info.IsWeak != tt.wantWeak {
				t.Errorf("IsWeak = %v, want %v", info.IsWeak, tt.wantWeak)
			}
			if info.Iterations == nil || *info.Iterations != tt.params.Iterations {
				t.Errorf("Iterations = %v, want %d", info.Iterations, tt.params.Iterations)
			}
			if tt.wantType == "AES" && (info.Memory != nil || info.Parallelism != nil) {
				t.Error("AES-KDF has no memory or parallelism")
			}
		})
	}
}

func TestUpgradeKDF(t *testing.T) {
	env := newTestEnv(t)
	weak := crypto.KDFParams{Algorithm: crypto.AlgAESKDF, Iterations: 1000}

	if err := env.db.SetKDF(weak); err != nil {
		t.Fatalf("SetKDF failed: %v", err)
	}
	if !env.db.KdfInfo().IsWeak {
		t.Fatal("expected weak parameters")
	}

	if err := env.db.UpgradeKDF(); err != nil {
		t.Fatalf("UpgradeKDF failed: %v", err)
	}
	if info := env.db.KdfInfo(); info.IsWeak || info.KdfType != "Argon2id" {
		t.Errorf("unexpected info after upgrade: %+v", info)
	}

	reopened, _ := env.reopen(t)
	if info := reopened.KdfInfo(); info.KdfType != "Argon2id" {
		t.Errorf("upgrade was not saved: %+v", info)
	}
}

func TestSetKDF_Errors(t *testing.T) {
	env := newTestEnv(t)

	err := env.db.SetKDF(crypto.KDFParams{Algorithm: "scrypt", Iterations: 1})
	if !errors.Is(err, crypto.ErrUnknownKDF) {
		t.Errorf("expected ErrUnknownKDF, got %v", err)
	}

	env.db.codec = failingCodec{}
	err = env.db.SetKDF(crypto.KDFParams{Algorithm: crypto.AlgAESKDF, Iterations: 1000})
	if !errors.Is(err, ErrSave) {
		t.Errorf("expected ErrSave, got %v", err)
	}
	if info := env.db.KdfInfo(); info.KdfType != "Argon2id" {
		t.Errorf("failed save must restore parameters, got %+v", info)
	}
}

func TestCreate_WithKDF(t *testing.T) {
	fs := afero.NewMemMapFs()
	fast := crypto.KDFParams{Algorithm: crypto.AlgArgon2id, Iterations: 1, Memory: crypto.MiB, Parallelism: 1}

	db, err := Create(testPath, secret.New("pw"), jsonCodec{}, WithFs(fs), WithKDF(fast))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if info := db.KdfInfo(); !info.IsWeak || *info.Iterations != 1 {
		t.Errorf("WithKDF not applied: %+v", info)
	}

	_, err = Create("/other.spdb", secret.New("pw"), jsonCodec{}, WithFs(fs), WithKDF(crypto.KDFParams{Algorithm: "scrypt"}))
	if !errors.Is(err, crypto.ErrUnknownKDF) {
		t.Errorf("expected ErrUnknownKDF, got %v", err)
	}
	if exists, _ := afero.Exists(fs, "/other.spdb"); exists {
		t.Error("invalid parameters must not write a file")
	}
}
