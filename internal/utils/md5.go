package utils

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
)

// DefaultChunkSize is used when a non-positive chunk size is given.
const DefaultChunkSize = 8192

// MD5Reader hashes r in chunks of chunkSize bytes.
func MD5Reader(r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	h := md5.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return "", werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MD5Bytes is MD5Reader over an in-memory upload.
func MD5Bytes(data []byte, chunkSize int) string {
	sum, _ := MD5Reader(bytes.NewReader(data), chunkSize)
	return sum
}
