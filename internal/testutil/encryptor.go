package testutil

import (
	"fim-go/internal/encryption"
	"fim-go/internal/fim"
)

// NewTestEncryptor returns the header-framing encryptor, which needs no keys.
func NewTestEncryptor() fim.Encryptor {
	return encryption.NewPlainEncryptor()
}
