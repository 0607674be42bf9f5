// Package codec mints and parses the one-time login codes mailed to users.
//
// Two shapes exist. A plain code is pure randomness. A snapshot code
// additionally self-encodes a coarse copy of the balance so redemption can
// still hand the user something when the store write behind a purchase never
// landed. The snapshot is a degraded fallback only; the store record always
// wins when one exists.
package codec

import (
	"crypto/rand"
	"strconv"
	"strings"
)

const (
	// base32 without padding, lowercase to survive being typed from an email.
	randAlphabet = "abcdefghijklmnopqrstuvwxyz234567"
	base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"

	plainLen = 16 // 16 chars of base32 = 80 bits of entropy

	snapshotPrefix   = "sd1"
	snapshotValueLen = 7 // zero-padded base36 of balance/SnapshotUnit
	snapshotRandLen  = 8
	snapshotLen      = len(snapshotPrefix) + snapshotValueLen + snapshotRandLen + 1

	// SnapshotUnit is the granularity of the embedded balance. Snapshots are
	// lossy: the balance is truncated to the nearest unit before encoding.
	SnapshotUnit = 1000
)

// Mint returns a fresh random opaque code.
func Mint() (string, error) {
	tail, err := randChars(plainLen)
	if err != nil {
		return "", err
	}
	return tail, nil
}

// MintWithSnapshot returns a fresh code that also encodes balance, truncated
// to SnapshotUnit.
func MintWithSnapshot(balance int64) (string, error) {
	if balance < 0 {
		balance = 0
	}
	value := strconv.FormatInt(balance/SnapshotUnit, 36)
	value = strings.Repeat("0", snapshotValueLen-len(value)) + value

	tail, err := randChars(snapshotRandLen)
	if err != nil {
		return "", err
	}

	body := snapshotPrefix + value + tail
	return body + string(base36Digits[checksum(body)]), nil
}

// DecodeSnapshot returns the balance embedded in a snapshot code. The second
// return is false for plain codes, malformed input, or a bad check digit.
func DecodeSnapshot(code string) (int64, bool) {
	if len(code) != snapshotLen || !strings.HasPrefix(code, snapshotPrefix) {
		return 0, false
	}
	body, check := code[:snapshotLen-1], code[snapshotLen-1]
	if base36Digits[checksum(body)] != check {
		return 0, false
	}
	value := body[len(snapshotPrefix) : len(snapshotPrefix)+snapshotValueLen]
	units, err := strconv.ParseInt(value, 36, 64)
	if err != nil {
		return 0, false
	}
	return units * SnapshotUnit, true
}

func randChars(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = randAlphabet[int(buf[i])%len(randAlphabet)]
	}
	return string(buf), nil
}

func checksum(body string) int {
	sum := 0
	for _, c := range body {
		sum += strings.IndexRune(base36Digits, c) + 1
	}
	return sum % len(base36Digits)
}
