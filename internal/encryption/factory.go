package encryption

import (
	"fmt"

	"fim-go/internal/config"
	"fim-go/internal/fim"
)

// NewEncryptorFromConfig returns the encryptor for cfg.Type. Type "none"
// yields a nil Encryptor and baselines are archived unencrypted.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (fim.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewPlainEncryptor(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
