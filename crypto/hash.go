package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HashPassword returns the lowercase hex SHA-256 digest of pw's UTF-8 bytes.
//
// This is a known-weak scheme (spec §9, Open Question 3): it has no salt and
// no work factor, so it is vulnerable to rainbow tables and brute force at
// GPU speed. It is kept here because the core's contract (spec §4.1) is
// explicitly this single SHA-256 pass; VerifyPassword and HashPassword are
// the two ends of that contract and must agree. A production deployment
// should replace both with an Argon2id-based KDF salted per user — see
// DESIGN.md for the recorded decision.
func HashPassword(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword re-hashes pw and compares it against stored in constant
// time, so that the comparison itself does not leak timing information
// about how many leading hex characters matched.
func VerifyPassword(pw, stored string) bool {
	got := HashPassword(pw)
	return subtle.ConstantTimeCompare([]byte(got), []byte(stored)) == 1
}

// HashVote returns the lowercase hex SHA-256 digest of
// "{electionID}:{optionID}:{isoTimestamp}", the vote_hash of spec §3/§4.1.
func HashVote(electionID, optionID int64, isoTimestamp string) string {
	return hashFields(fmt.Sprintf("%d:%d:%s", electionID, optionID, isoTimestamp))
}

// HashReceipt returns the lowercase hex SHA-256 digest of
// "{voterID}:{electionID}:{isoTimestamp}", the receipt_hash of spec §3/§4.1.
func HashReceipt(voterID, electionID int64, isoTimestamp string) string {
	return hashFields(fmt.Sprintf("%d:%d:%s", voterID, electionID, isoTimestamp))
}

func hashFields(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// IsLowerHex reports whether s is a non-empty string of lowercase hex
// characters, the wire format spec §6 mandates for a blinded_token.
func IsLowerHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// IsHexSHA256 reports whether s is exactly 64 lowercase hex characters, the
// wire format spec §8 (property 10) and §6 mandate for every persisted
// vote_hash and receipt_hash.
func IsHexSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
