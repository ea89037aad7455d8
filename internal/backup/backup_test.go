package backup

import (
	"archive/zip"
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/PyPartners/MindVault/internal/config"
	"github.com/PyPartners/MindVault/internal/crypto"
	"github.com/PyPartners/MindVault/internal/vault"
)

func writeVaultFile(t *testing.T, path string) []byte {
	t.Helper()
	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		t.Fatal(err)
	}
	params := crypto.KDFParams{Time: 1, Memory: 8 * 1024, Threads: 1, Salt: salt}
	key := crypto.DeriveKey([]byte("pw"), params)
	p := vault.NewPlain()
	p.Add("a.com", "user", "secret", "")

	raw, err := vault.Seal(key, vault.NewHeader(params), p)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	return raw
}

func writeSettingsFile(t *testing.T, path string) config.Settings {
	t.Helper()
	s := config.Default()
	s.Theme = "dark"
	s.AutoLockTimeoutSeconds = 120
	if err := config.Save(path, s); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	return s
}

// rewriteBundle rebuilds a bundle with its members passed through mutate,
// bypassing Export's integrity guarantees.
func rewriteBundle(t *testing.T, src, dst string, mutate func(members map[string][]byte)) {
	t.Helper()
	zr, err := zip.OpenReader(src)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()

	members := map[string][]byte{}
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatal(err)
		}
		members[f.Name] = data
	}
	mutate(members)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestExportImportRoundtrip(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	vaultPath := filepath.Join(srcDir, "vault.enc")
	settingsPath := filepath.Join(srcDir, "settings.yaml")
	bundlePath := filepath.Join(srcDir, "backup.mvb")

	vaultRaw := writeVaultFile(t, vaultPath)
	wantSettings := writeSettingsFile(t, settingsPath)

	if err := Export(bundlePath, vaultPath, settingsPath); err != nil {
		t.Fatalf("export: %v", err)
	}

	restoredVault := filepath.Join(dstDir, "vault.enc")
	restoredSettings := filepath.Join(dstDir, "settings.yaml")
	if err := Import(bundlePath, restoredVault, restoredSettings); err != nil {
		t.Fatalf("import: %v", err)
	}

	got, err := os.ReadFile(restoredVault)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, vaultRaw) {
		t.Fatal("restored vault differs from the original")
	}
	s, err := config.Load(restoredSettings)
	if err != nil {
		t.Fatalf("load restored settings: %v", err)
	}
	if s != wantSettings {
		t.Fatalf("settings = %+v, want %+v", s, wantSettings)
	}
}

func TestExportRequiresVault(t *testing.T) {
	dir := t.TempDir()
	err := Export(filepath.Join(dir, "b.mvb"), filepath.Join(dir, "missing.enc"), filepath.Join(dir, "settings.yaml"))
	if err == nil {
		t.Fatal("export without a vault file succeeded")
	}
}

func TestImportRejectsTamperedVault(t *testing.T) {
	srcDir := t.TempDir()
	vaultPath := filepath.Join(srcDir, "vault.enc")
	settingsPath := filepath.Join(srcDir, "settings.yaml")
	bundlePath := filepath.Join(srcDir, "backup.mvb")
	writeVaultFile(t, vaultPath)
	writeSettingsFile(t, settingsPath)
	if err := Export(bundlePath, vaultPath, settingsPath); err != nil {
		t.Fatalf("export: %v", err)
	}

	tampered := filepath.Join(srcDir, "tampered.mvb")
	rewriteBundle(t, bundlePath, tampered, func(members map[string][]byte) {
		members["vault.enc"][len(members["vault.enc"])-1] ^= 0x01
	})

	// Import targets that already hold live data.
	dstDir := t.TempDir()
	liveVault := filepath.Join(dstDir, "vault.enc")
	liveSettings := filepath.Join(dstDir, "settings.yaml")
	before := writeVaultFile(t, liveVault)
	writeSettingsFile(t, liveSettings)
	settingsBefore, err := os.ReadFile(liveSettings)
	if err != nil {
		t.Fatal(err)
	}

	if err := Import(tampered, liveVault, liveSettings); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("want ErrIntegrity, got %v", err)
	}

	after, err := os.ReadFile(liveVault)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("rejected import modified the vault file")
	}
	settingsAfter, err := os.ReadFile(liveSettings)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(settingsBefore, settingsAfter) {
		t.Fatal("rejected import modified the settings file")
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "vault.enc")
	settingsPath := filepath.Join(dir, "settings.yaml")
	bundlePath := filepath.Join(dir, "backup.mvb")
	writeVaultFile(t, vaultPath)
	writeSettingsFile(t, settingsPath)
	if err := Export(bundlePath, vaultPath, settingsPath); err != nil {
		t.Fatalf("export: %v", err)
	}

	future := filepath.Join(dir, "future.mvb")
	rewriteBundle(t, bundlePath, future, func(members map[string][]byte) {
		var m Manifest
		if err := yaml.Unmarshal(members["manifest.yaml"], &m); err != nil {
			t.Fatal(err)
		}
		m.Version = 99
		raw, err := yaml.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		members["manifest.yaml"] = raw
	})

	err := Import(future, filepath.Join(dir, "out.enc"), filepath.Join(dir, "out.yaml"))
	if !errors.Is(err, ErrManifestVersion) {
		t.Fatalf("want ErrManifestVersion, got %v", err)
	}
}

func TestImportRejectsMissingMember(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "vault.enc")
	settingsPath := filepath.Join(dir, "settings.yaml")
	bundlePath := filepath.Join(dir, "backup.mvb")
	writeVaultFile(t, vaultPath)
	writeSettingsFile(t, settingsPath)
	if err := Export(bundlePath, vaultPath, settingsPath); err != nil {
		t.Fatalf("export: %v", err)
	}

	gutted := filepath.Join(dir, "gutted.mvb")
	rewriteBundle(t, bundlePath, gutted, func(members map[string][]byte) {
		delete(members, "vault.enc")
	})

	err := Import(gutted, filepath.Join(dir, "out.enc"), filepath.Join(dir, "out.yaml"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	vaultPath := filepath.Join(dir, "vault.enc")
	settingsPath := filepath.Join(dir, "settings.yaml")
	bundlePath := filepath.Join(dir, "backup.mvb")
	writeVaultFile(t, vaultPath)
	writeSettingsFile(t, settingsPath)
	if err := Export(bundlePath, vaultPath, settingsPath); err != nil {
		t.Fatalf("export: %v", err)
	}

	m, err := Inspect(bundlePath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if m.Version != ManifestVersion {
		t.Fatalf("version = %d", m.Version)
	}
	if len(m.Checksums) != 2 {
		t.Fatalf("checksums = %v", m.Checksums)
	}
	if m.CreatedAt.IsZero() {
		t.Fatal("createdAt missing")
	}
}
