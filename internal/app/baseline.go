package app

import (
	"context"
	"fmt"

	"fim-go/internal/config"
	"fim-go/internal/encryption"
	"fim-go/internal/fim"
	"fim-go/internal/vault"
)

// PullBaseline restores the archived baseline of cfg.HostID to dest. It
// does not open the local store, which may be missing or untrusted.
// passphrase is only called when the keys need unlocking.
func PullBaseline(ctx context.Context, cfg *config.Config, dest string, passphrase func() (string, error)) (int64, error) {
	if len(cfg.Vaults) == 0 {
		return 0, fmt.Errorf("no vault configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return 0, fmt.Errorf("creating encryptor: %w", err)
	}

	var dc fim.DecryptionContext
	if enc != nil && enc.IsConfigured() {
		pass, err := passphrase()
		if err != nil {
			return 0, fmt.Errorf("reading passphrase: %w", err)
		}
		if dc, err = enc.Unlock(pass); err != nil {
			return 0, fmt.Errorf("unlocking private key: %w", err)
		}
	}

	svc := fim.NewFIMService(nil, nil, v, enc, nil, nil, nil, nil)
	return svc.RestoreBaseline(ctx, cfg.HostID, dest, dc)
}

// InitKeys generates the baseline encryption keys. For age keys the
// public recipient is returned so it can be recorded elsewhere.
func InitKeys(cfg *config.Config, passphrase string) (string, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return "", fmt.Errorf("creating encryptor: %w", err)
	}
	if enc == nil {
		return "", fmt.Errorf("encryption is disabled (encryption.type = none)")
	}
	if err := enc.Setup(passphrase); err != nil {
		return "", fmt.Errorf("generating keys: %w", err)
	}
	if age, ok := enc.(*encryption.AgeEncryptor); ok {
		return age.Recipient()
	}
	return "", nil
}
