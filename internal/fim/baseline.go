package fim

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BaselineName is the vault name under which a host's snapshot store is
// archived.
const BaselineName = "baseline"

// ArchiveBaseline copies the snapshot store to the vault. When an
// encryptor is configured the copy is encrypted first. version is stored
// alongside the archive, normally the sequence of the run that produced it.
func (s *FIMService) ArchiveBaseline(ctx context.Context, hostID string, version int64) error {
	if s.vault == nil {
		return fmt.Errorf("no vault configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "fim-baseline-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	backupPath := filepath.Join(tmpDir, "snapshot.db")
	if err := s.store.BackupTo(backupPath); err != nil {
		return fmt.Errorf("backing up store: %w", err)
	}

	uploadPath := backupPath
	if s.encryptor != nil && s.encryptor.IsConfigured() {
		uploadPath = filepath.Join(tmpDir, "snapshot.db.age")
		if err := encryptFile(s.encryptor, backupPath, uploadPath); err != nil {
			return err
		}
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	if err := s.vault.PutBaseline(hostID, BaselineName, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading baseline: %w", err)
	}

	s.logger.Info("baseline archived", "host_id", hostID, "version", version, "size", info.Size())
	return nil
}

func encryptFile(enc Encryptor, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening store backup: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating encrypted archive: %w", err)
	}
	if err := enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting baseline: %w", err)
	}
	return out.Close()
}

// RestoreBaseline writes the archived baseline of hostID to dest, which
// must not exist yet. decryptCtx is required when the archive is
// encrypted; pass nil for plaintext archives. Returns the archived version.
func (s *FIMService) RestoreBaseline(ctx context.Context, hostID string, dest string, decryptCtx DecryptionContext) (int64, error) {
	if s.vault == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	version, err := s.vault.GetBaselineVersion(hostID, BaselineName)
	if err != nil {
		return 0, fmt.Errorf("reading baseline version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no baseline archived for host %s", hostID)
	}

	if _, err := os.Stat(dest); err == nil {
		return 0, fmt.Errorf("output file already exists: %s", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("creating parent directory: %w", err)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if decryptCtx == nil {
		if err := s.vault.GetBaseline(hostID, BaselineName, f); err != nil {
			os.Remove(dest)
			return 0, fmt.Errorf("retrieving baseline: %w", err)
		}
	} else {
		pr, pw := io.Pipe()
		vaultErrCh := make(chan error, 1)
		go func() {
			err := s.vault.GetBaseline(hostID, BaselineName, pw)
			pw.CloseWithError(err)
			vaultErrCh <- err
		}()

		decryptErr := decryptCtx.Decrypt(pr, f)
		pr.CloseWithError(decryptErr)
		vaultErr := <-vaultErrCh

		if decryptErr != nil {
			os.Remove(dest)
			return 0, fmt.Errorf("decrypting baseline: %w", decryptErr)
		}
		if vaultErr != nil {
			os.Remove(dest)
			return 0, fmt.Errorf("retrieving baseline: %w", vaultErr)
		}
	}

	s.logger.Info("baseline restored", "host_id", hostID, "version", version, "path", dest)
	return version, nil
}
