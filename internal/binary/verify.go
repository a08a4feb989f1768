package binary

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork

	"github.com/ZebulonRouseFrantzich/foundryup/internal/archive"
)

// VerifySignature checks a detached signature over the file at dataPath.
// The signature may be armored or binary.
func VerifySignature(keyring openpgp.EntityList, dataPath, signaturePath string) error {
	dataFile, err := os.Open(dataPath)
	if err != nil {
		return fmt.Errorf("open signed file: %w", err)
	}
	defer dataFile.Close()

	sigFile, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sigFile.Close()

	// Try armored first
	_, err = openpgp.CheckArmoredDetachedSignature(keyring, dataFile, sigFile, nil)
	if err != nil {
		if _, serr := dataFile.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind signed file: %w", serr)
		}
		if _, serr := sigFile.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind signature: %w", serr)
		}
		_, err = openpgp.CheckDetachedSignature(keyring, dataFile, sigFile, nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// verifyChecksums compares each extraction result against the narrowed
// expected digests. The first mismatch is returned as an IntegrityError.
func verifyChecksums(results []archive.Result, expected map[string]string, algorithm string, opts Options) error {
	for _, res := range results {
		name := binaryName(res.Binary, opts.Platform)
		want, ok := expected[name]
		if !ok {
			return fmt.Errorf("no expected checksum for %s", name)
		}
		if !strings.EqualFold(res.Checksum, want) {
			return &IntegrityError{
				Binary:    name,
				Platform:  opts.Platform,
				Arch:      opts.Arch,
				Algorithm: algorithm,
				Expected:  want,
				Actual:    res.Checksum,
			}
		}
	}
	return nil
}
