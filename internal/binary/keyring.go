package binary

import (
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// LoadKeyring reads an OpenPGP public keyring from disk. Armored and binary
// keyrings are both accepted.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	keyringFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer keyringFile.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(keyringFile)
	if err != nil {
		if _, err := keyringFile.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind keyring: %w", err)
		}
		keyring, err = openpgp.ReadKeyRing(keyringFile)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}
