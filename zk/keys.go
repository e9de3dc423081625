package zk

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"

	"github.com/steake/bitcell/errors"
)

// Groth16 key files are content-addressed: a JSON sidecar records the
// SHA-256 of each serialized key and the ceremony provenance, and loads are
// refused when the file hash disagrees with the sidecar.

// KeyMetadata is the sidecar written next to the key files.
type KeyMetadata struct {
	Circuit             string `json:"circuit"`
	Version             string `json:"version"`
	ProvingKeyHash      string `json:"proving_key_hash"`
	VerificationKeyHash string `json:"verification_key_hash"`
	NumParticipants     int    `json:"num_participants"`
	CeremonyDate        string `json:"ceremony_date"`
}

// DefaultKeyPaths returns the conventional (proving, verifying) key paths
// for a circuit under baseDir.
func DefaultKeyPaths(baseDir, circuit string) (string, string) {
	return filepath.Join(baseDir, circuit, "proving.key"),
		filepath.Join(baseDir, circuit, "verifying.key")
}

// MetadataPath returns the sidecar path for a circuit under baseDir.
func MetadataPath(baseDir, circuit string) string {
	return filepath.Join(baseDir, circuit, "keys.json")
}

// SaveProvingKey writes the compressed canonical serialization of pk.
func SaveProvingKey(pk groth16.ProvingKey, path string) error {
	return saveKey(path, func(w io.Writer) error {
		_, err := pk.WriteTo(w)
		return err
	})
}

// SaveVerifyingKey writes the compressed canonical serialization of vk.
func SaveVerifyingKey(vk groth16.VerifyingKey, path string) error {
	return saveKey(path, func(w io.Writer) error {
		_, err := vk.WriteTo(w)
		return err
	})
}

func saveKey(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageError("key directory creation failed", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.NewStorageError("key file creation failed", err)
	}
	defer f.Close()

	if err := write(f); err != nil {
		return errors.NewStorageError("key serialization failed", err)
	}
	return nil
}

// LoadProvingKey reads a proving key, verifying the file hash against
// expectedHash when non-empty.
func LoadProvingKey(path, expectedHash string) (groth16.ProvingKey, error) {
	if expectedHash != "" {
		if err := VerifyKeyHash(path, expectedHash); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError("proving key open failed", err)
	}
	defer f.Close()

	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(f); err != nil {
		return nil, errors.NewProofSetupError("proving key deserialization failed", err)
	}
	return pk, nil
}

// LoadVerifyingKey reads a verifying key, verifying the file hash against
// expectedHash when non-empty.
func LoadVerifyingKey(path, expectedHash string) (groth16.VerifyingKey, error) {
	if expectedHash != "" {
		if err := VerifyKeyHash(path, expectedHash); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError("verifying key open failed", err)
	}
	defer f.Close()

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, errors.NewProofSetupError("verifying key deserialization failed", err)
	}
	return vk, nil
}

// ComputeFileHash returns the SHA-256 of a file, hex encoded.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewStorageError("key file open failed", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.NewStorageError("key file read failed", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyKeyHash checks a key file's SHA-256 against the expected value.
func VerifyKeyHash(path, expectedHash string) error {
	actual, err := ComputeFileHash(path)
	if err != nil {
		return err
	}
	if actual != expectedHash {
		return errors.NewProofSetupError("key file hash mismatch for %s: expected %s, got %s", path, expectedHash, actual)
	}
	return nil
}

// Save writes the sidecar as indented JSON.
func (m *KeyMetadata) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageError("metadata directory creation failed", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.NewStorageError("metadata serialization failed", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewStorageError("metadata write failed", err)
	}
	return nil
}

// LoadKeyMetadata reads a sidecar.
func LoadKeyMetadata(path string) (*KeyMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewStorageError("metadata read failed", err)
	}

	var m KeyMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewStorageError("metadata decode failed", err)
	}
	return &m, nil
}

// VerifyKeys checks both key files against the sidecar hashes.
func (m *KeyMetadata) VerifyKeys(pkPath, vkPath string) error {
	if err := VerifyKeyHash(pkPath, m.ProvingKeyHash); err != nil {
		return err
	}
	return VerifyKeyHash(vkPath, m.VerificationKeyHash)
}

// ExportKeys saves both keys plus a fresh sidecar for a circuit under
// baseDir.
func ExportKeys(prover *Prover, baseDir, circuit, version, ceremonyDate string, numParticipants int) error {
	pk, vk := prover.Keys()
	if pk == nil || vk == nil {
		return errors.NewProofSetupError("no keys to export for circuit %s", circuit)
	}

	pkPath, vkPath := DefaultKeyPaths(baseDir, circuit)

	if err := SaveProvingKey(pk, pkPath); err != nil {
		return err
	}
	if err := SaveVerifyingKey(vk, vkPath); err != nil {
		return err
	}

	pkHash, err := ComputeFileHash(pkPath)
	if err != nil {
		return err
	}
	vkHash, err := ComputeFileHash(vkPath)
	if err != nil {
		return err
	}

	meta := &KeyMetadata{
		Circuit:             circuit,
		Version:             version,
		ProvingKeyHash:      pkHash,
		VerificationKeyHash: vkHash,
		NumParticipants:     numParticipants,
		CeremonyDate:        ceremonyDate,
	}
	return meta.Save(MetadataPath(baseDir, circuit))
}

// LoadKeys loads both keys for a circuit after checking the sidecar.
func LoadKeys(baseDir, circuit string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	meta, err := LoadKeyMetadata(MetadataPath(baseDir, circuit))
	if err != nil {
		return nil, nil, err
	}
	if meta.Circuit != circuit {
		return nil, nil, errors.NewProofSetupError(fmt.Sprintf("sidecar circuit %q does not match %q", meta.Circuit, circuit))
	}

	pkPath, vkPath := DefaultKeyPaths(baseDir, circuit)

	pk, err := LoadProvingKey(pkPath, meta.ProvingKeyHash)
	if err != nil {
		return nil, nil, err
	}
	vk, err := LoadVerifyingKey(vkPath, meta.VerificationKeyHash)
	if err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
