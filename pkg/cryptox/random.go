package cryptox

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// BackupCodeAlphabet drops the glyphs people confuse when reading codes back
// (0/O, 1/I/L).
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var ErrInvalidAlphabet = errors.New("cryptox: alphabet must hold between 2 and 256 symbols")

var pow10 = [...]uint32{1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000, 1_000_000_000}

// RandomDigits returns an n-digit decimal code (1 <= n <= 9), zero padded.
// The code is a random 32-bit value reduced mod 10^n.
func RandomDigits(r io.Reader, n int) (string, error) {
	if n < 1 || n >= len(pow10) {
		return "", fmt.Errorf("cryptox: digit count must be 1..9, got %d", n)
	}
	if r == nil {
		r = rand.Reader
	}

	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", fmt.Errorf("failed to read random digits: %w", err)
	}

	v := binary.BigEndian.Uint32(buf[:]) % pow10[n]
	return fmt.Sprintf("%0*d", n, v), nil
}

// RandomString draws n symbols uniformly from alphabet. Bytes that would bias
// the distribution are rejected and redrawn.
func RandomString(r io.Reader, alphabet string, n int) (string, error) {
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return "", ErrInvalidAlphabet
	}
	if n <= 0 {
		return "", fmt.Errorf("cryptox: length must be positive, got %d", n)
	}
	if r == nil {
		r = rand.Reader
	}

	size := len(alphabet)
	limit := 256 - (256 % size)

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read random string: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%size])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}

// CanonicalizeCode upper-cases a user supplied code and strips the
// separators people type while copying it ("-" and whitespace).
func CanonicalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			return -1
		}
		if r >= 'a' && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	}, code)
}
