package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/pourtree/pourtree/pkg/errors"
)

// VerifySha256 recomputes the file's digest and compares it to the
// expected hex string. A mismatch is reported as ChecksumMismatch,
// distinct from transport failures.
func VerifySha256(path, expected string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "opening %s", path)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "hashing %s", path)
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	if actual != expected {
		return errors.Newf(errors.ErrChecksumMismatch,
			"%s: expected sha256 %s, got %s", path, expected, actual)
	}
	return nil
}
