package hasher

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const bufferSize = 32 * 1024

// prefixDigest hashes the first n bytes of a file with xxHash. It is only a
// pre-filter; files that agree here are confirmed with fullDigest.
func prefixDigest(path string, n int64) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.CopyBuffer(h, io.LimitReader(f, n), make([]byte, bufferSize)); err != nil {
		return 0, errors.Wrap(err, "read prefix")
	}
	return h.Sum64(), nil
}

// fullDigest returns the hex BLAKE2b-256 of the whole file, checking stop
// between chunks so large files can be abandoned mid-read.
func fullDigest(path string, stop func() error) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open")
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	buf := make([]byte, bufferSize)
	for {
		if err := stop(); err != nil {
			return "", err
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "read")
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
