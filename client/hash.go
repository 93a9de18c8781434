package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Sum identifies transferred content by length and SHA-256.
type Sum struct {
	Size int64
	Hex  string
}

func (s Sum) String() string {
	return fmt.Sprintf("%s (%d bytes)", s.Hex, s.Size)
}

// Hash consumes r and returns its Sum.
func Hash(r io.Reader) (Sum, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Sum{}, err
	}
	return Sum{Size: n, Hex: hex.EncodeToString(h.Sum(nil))}, nil
}

// HashFile returns the Sum of the file at path, for comparing an upload
// with its download.
func HashFile(path string) (Sum, error) {
	fd, err := os.Open(path)
	if err != nil {
		return Sum{}, err
	}
	defer fd.Close()
	return Hash(fd)
}
