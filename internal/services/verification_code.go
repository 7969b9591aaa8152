package services

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"time"
)

const (
	// verificationAlphabet leaves out 0/O and 1/I.
	verificationAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	verificationCodeLength = 8
	maxCodeAttempts        = 10
)

// newVerificationCode draws a code from r. The alphabet has 32 symbols, so
// masking a random byte to 5 bits is unbiased.
func newVerificationCode(r io.Reader) (string, error) {
	buf := make([]byte, verificationCodeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = verificationAlphabet[b&31]
	}
	return string(buf), nil
}

func randomVerificationCode() (string, error) {
	return newVerificationCode(rand.Reader)
}

// newCertificateNumber formats CERT-<yyyymmdd>-<6 hex>.
func newCertificateNumber(at time.Time) (string, error) {
	suffix := make([]byte, 3)
	if _, err := io.ReadFull(rand.Reader, suffix); err != nil {
		return "", err
	}
	return "CERT-" + at.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(suffix)), nil
}

// normalizeVerificationCode accepts codes typed in lower case or with
// surrounding blanks.
func normalizeVerificationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isWellFormedCode(code string) bool {
	if len(code) != verificationCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(verificationAlphabet, c) {
			return false
		}
	}
	return true
}
