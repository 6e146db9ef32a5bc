// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package oais

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

const (
	Md5      = "MD5"
	SHA1     = "SHA-1"
	SHA256   = "SHA-256"
	SHA512   = "SHA-512"
	FileSize = "FileSize"
)

// FixityError reports a staged copy whose content differs from what was written.
type FixityError struct {
	Path     string
	HashType string
	Expected []byte
	Actual   []byte
}

func (e *FixityError) Error() string {
	return fmt.Sprintf("fixity check failed for %v: %v %x, expected %x", e.Path, e.HashType, e.Actual, e.Expected)
}

type hashingReader struct {
	reader io.Reader
	hasher hash.Hash
}

func (r hashingReader) Read(buf []byte) (n int, err error) {
	n, err = r.reader.Read(buf)
	r.hasher.Write(buf[:n])
	return
}

func getHash(hashType string) (hasher hash.Hash, err error) {
	switch strings.ToLower(hashType) {
	case strings.ToLower(Md5):
		hasher = md5.New()
	case strings.ToLower(SHA1):
		hasher = sha1.New()
	case strings.ToLower(SHA256):
		hasher = sha256.New()
	case strings.ToLower(SHA512):
		hasher = sha512.New()
	case strings.ToLower(FileSize):
		hasher = &FileSizeHash{}
	default:
		err = fmt.Errorf("unsupported hash type: %v", hashType)
	}
	return
}

type FileSizeHash struct {
	FileSize int64
}

func (h *FileSizeHash) Write(p []byte) (n int, err error) {
	h.FileSize = h.FileSize + int64(len(p))
	return len(p), nil
}

func (h *FileSizeHash) Sum(b []byte) []byte {
	res := make([]byte, 8)
	binary.LittleEndian.PutUint64(res, uint64(h.FileSize))
	return append(b, res...)
}

func (h *FileSizeHash) Reset() {
	*h = FileSizeHash{}
}

func (h *FileSizeHash) Size() int {
	return 8
}

func (h *FileSizeHash) BlockSize() int {
	return 64
}

func FileHash(path, hashType string) ([]byte, error) {
	hasher, err := getHash(hashType)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.Copy(io.Discard, hashingReader{f, hasher}); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

func verify(path, hashType string, expected []byte) error {
	actual, err := FileHash(path, hashType)
	if err != nil {
		return err
	}
	if !bytes.Equal(actual, expected) {
		return &FixityError{Path: path, HashType: hashType, Expected: expected, Actual: actual}
	}
	return nil
}
