package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"fim-go/internal/fim"
)

// plainHeader marks archives produced by PlainEncryptor so a pull can tell
// them apart from a raw store copy.
var plainHeader = []byte("FIMENC\x00\x00")

var errBadHeader = errors.New("archive is not marked by the test encryptor")

// PlainEncryptor frames data with a fixed header and no cryptography. It
// stands in for age in tests and in deployments that select type "test".
type PlainEncryptor struct {
	keysCreated bool
}

var _ fim.Encryptor = (*PlainEncryptor)(nil)

func NewPlainEncryptor() *PlainEncryptor {
	return &PlainEncryptor{}
}

func (e *PlainEncryptor) Setup(string) error {
	e.keysCreated = true
	return nil
}

func (e *PlainEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(plainHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying archive: %w", err)
	}
	return nil
}

func (e *PlainEncryptor) Unlock(string) (fim.DecryptionContext, error) {
	return plainDecryptor{}, nil
}

func (e *PlainEncryptor) IsConfigured() bool { return true }

type plainDecryptor struct{}

func (plainDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	got := make([]byte, len(plainHeader))
	if _, err := io.ReadFull(r, got); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(got, plainHeader) {
		return errBadHeader
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying archive: %w", err)
	}
	return nil
}
