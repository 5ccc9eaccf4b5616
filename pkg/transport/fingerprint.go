// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Fingerprint hashes r with SHA-256 and renders the digest in the
// wire's hex form: each byte contributes its minimal-width lowercase
// hex, so 0x0a renders as "a", not "0a". Both endpoints must use this
// form; it is not standard hex and digests of different lengths can
// render identically. Kept for compatibility with deployed receivers.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return formatDigest(h.Sum(nil)), nil
}

// FingerprintFile fingerprints the file's current on-disk bytes.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	fp, err := Fingerprint(f)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return fp, nil
}

func formatDigest(sum []byte) string {
	buf := make([]byte, 0, 2*len(sum))
	for _, b := range sum {
		buf = strconv.AppendUint(buf, uint64(b), 16)
	}
	return string(buf)
}
