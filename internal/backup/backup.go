// Package backup bundles the encrypted vault file and the settings file
// into a single portable archive and restores from one. The vault blob is
// copied as-is; a bundle is exactly as confidential as the vault file it
// contains.
package backup

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PyPartners/MindVault/internal/config"
	"github.com/PyPartners/MindVault/internal/vault"
)

const (
	// ManifestVersion is the bundle schema version.
	ManifestVersion = 1

	manifestName = "manifest.yaml"
	vaultName    = "vault.enc"
	settingsName = "settings.yaml"
)

var (
	// ErrIntegrity reports a bundle whose contents do not match its
	// manifest checksums.
	ErrIntegrity = errors.New("backup: bundle integrity check failed")
	// ErrManifestVersion reports a bundle written by an incompatible
	// schema version.
	ErrManifestVersion = errors.New("backup: unsupported bundle version")
	// ErrMalformed reports a bundle missing required members.
	ErrMalformed = errors.New("backup: malformed bundle")
)

// Manifest describes a bundle's contents. Checksums are hex SHA-256 over
// each member's raw bytes.
type Manifest struct {
	Version   int               `yaml:"version"`
	CreatedAt time.Time         `yaml:"createdAt"`
	Checksums map[string]string `yaml:"checksums"`
}

// Export writes a bundle containing the vault file at vaultPath and the
// settings at settingsPath. A missing settings file is bundled as the
// defaults; a missing vault file is an error.
func Export(bundlePath, vaultPath, settingsPath string) error {
	vaultRaw, err := os.ReadFile(vaultPath)
	if err != nil {
		return fmt.Errorf("backup: read vault: %w", err)
	}
	if _, err := vault.DecodeHeader(vaultRaw); err != nil {
		return fmt.Errorf("backup: refusing to bundle: %w", err)
	}

	settings, err := config.Load(settingsPath)
	if err != nil {
		return err
	}
	settingsRaw, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("backup: encode settings: %w", err)
	}

	m := Manifest{
		Version:   ManifestVersion,
		CreatedAt: time.Now().UTC(),
		Checksums: map[string]string{
			vaultName:    checksum(vaultRaw),
			settingsName: checksum(settingsRaw),
		},
	}
	manifestRaw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("backup: encode manifest: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, member := range []struct {
		name string
		data []byte
	}{
		{manifestName, manifestRaw},
		{vaultName, vaultRaw},
		{settingsName, settingsRaw},
	} {
		w, err := zw.Create(member.name)
		if err != nil {
			return fmt.Errorf("backup: write bundle: %w", err)
		}
		if _, err := w.Write(member.data); err != nil {
			return fmt.Errorf("backup: write bundle: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("backup: write bundle: %w", err)
	}

	return vault.WriteFileAtomic(bundlePath, buf.Bytes(), 0o600)
}

// Import restores a bundle over vaultPath and settingsPath. Every check
// runs before anything is written: a bundle that fails validation leaves
// both target files untouched. The vault file is written last, after the
// settings, so a partial failure never strands a restored vault against
// stale targets.
func Import(bundlePath, vaultPath, settingsPath string) error {
	m, members, err := readBundle(bundlePath)
	if err != nil {
		return err
	}
	if m.Version != ManifestVersion {
		return fmt.Errorf("%w: %d", ErrManifestVersion, m.Version)
	}

	vaultRaw, ok := members[vaultName]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrMalformed, vaultName)
	}
	settingsRaw, ok := members[settingsName]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrMalformed, settingsName)
	}

	for name, data := range map[string][]byte{vaultName: vaultRaw, settingsName: settingsRaw} {
		want, ok := m.Checksums[name]
		if !ok || checksum(data) != want {
			return fmt.Errorf("%w: %s", ErrIntegrity, name)
		}
	}

	// Structural prechecks before any write.
	if _, err := vault.DecodeHeader(vaultRaw); err != nil {
		return fmt.Errorf("backup: bundle vault: %w", err)
	}
	if _, err := config.Decode(settingsRaw); err != nil {
		return err
	}

	if err := vault.WriteFileAtomic(settingsPath, settingsRaw, 0o644); err != nil {
		return fmt.Errorf("backup: restore settings: %w", err)
	}
	if err := vault.WriteFileAtomic(vaultPath, vaultRaw, 0o600); err != nil {
		return fmt.Errorf("backup: restore vault: %w", err)
	}
	return nil
}

// Inspect returns a bundle's manifest without restoring it.
func Inspect(bundlePath string) (Manifest, error) {
	m, _, err := readBundle(bundlePath)
	return m, err
}

func readBundle(bundlePath string) (Manifest, map[string][]byte, error) {
	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		return Manifest{}, nil, fmt.Errorf("backup: open bundle: %w", err)
	}
	defer zr.Close()

	members := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("backup: read %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("backup: read %s: %w", f.Name, err)
		}
		members[f.Name] = data
	}

	manifestRaw, ok := members[manifestName]
	if !ok {
		return Manifest{}, nil, fmt.Errorf("%w: missing %s", ErrMalformed, manifestName)
	}
	var m Manifest
	if err := yaml.Unmarshal(manifestRaw, &m); err != nil {
		return Manifest{}, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	delete(members, manifestName)
	return m, members, nil
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
