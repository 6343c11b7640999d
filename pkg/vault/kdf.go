package vault

import (
	"github.com/forest6511/simplepm/pkg/crypto"
)

// Weak-parameter thresholds.
const (
	MinArgon2Iterations  = 2
	MinArgon2Memory      = 64 * crypto.MiB
	MinArgon2Parallelism = 2
	MinAESRounds         = 60000
)

// KdfInfoFor describes a parameter set and applies the weakness policy:
// Argon2 is weak with fewer than 2 iterations, less than 64 MiB of memory
// or parallelism below 2; AES-KDF is weak below 60000 rounds.
func KdfInfoFor(p crypto.KDFParams) KdfInfo {
	iterations := p.Iterations
	switch p.Algorithm {
	case crypto.AlgAESKDF:
		return KdfInfo{
			KdfType:    "AES",
			IsWeak:     p.Iterations < MinAESRounds,
			Iterations: &iterations,
		}
	default:
		name := "Argon2id"
		if p.Algorithm == crypto.AlgArgon2i {
			name = "Argon2i"
		}
		memory := p.Memory
		parallelism := p.Parallelism
		return KdfInfo{
			KdfType:     name,
			IsWeak:      p.Iterations < MinArgon2Iterations || p.Memory < MinArgon2Memory || p.Parallelism < MinArgon2Parallelism,
			Iterations:  &iterations,
			Memory:      &memory,
			Parallelism: &parallelism,
		}
	}
}

// KdfInfo returns the key derivation parameters of the open database.
func (d *Database) KdfInfo() KdfInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return KdfInfoFor(d.tree.KDF)
}

// UpgradeKDF switches to the default Argon2id parameters and saves. On save
// failure the previous parameters are restored.
func (d *Database) UpgradeKDF() error {
	return d.SetKDF(crypto.DefaultKDF())
}

// SetKDF replaces the key derivation parameters and saves.
func (d *Database) SetKDF(p crypto.KDFParams) error {
	if err := p.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.tree.KDF
	d.tree.KDF = p
	if err := d.save(); err != nil {
		d.tree.KDF = old
		return err
	}
	return nil
}
