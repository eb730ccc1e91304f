package crypto

import (
	"encoding/hex"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestGenerateInstitutionKeysProducesUsableKeypair(t *testing.T) {
	c := qt.New(t)

	privPEM, pubPEM, err := GenerateInstitutionKeys()
	c.Assert(err, qt.IsNil)
	c.Assert(privPEM, qt.Not(qt.Equals), "")
	c.Assert(pubPEM, qt.Not(qt.Equals), "")

	derived, err := PublicKeyFromPrivate(privPEM)
	c.Assert(err, qt.IsNil)
	c.Assert(derived, qt.Equals, pubPEM, qt.Commentf("public key derived from private must match the one returned at generation"))
}

func TestBlindSignRoundTrip(t *testing.T) {
	c := qt.New(t)

	privPEM, pubPEM, err := GenerateInstitutionKeys()
	c.Assert(err, qt.IsNil)

	blinded := hex.EncodeToString([]byte("blinded-token-bytes-for-voter-42"))

	sig, err := BlindSign(blinded, privPEM)
	c.Assert(err, qt.IsNil)
	c.Assert(sig, qt.Not(qt.Equals), "")

	c.Assert(VerifyBlindSignature(blinded, sig, pubPEM), qt.IsTrue)
}

func TestVerifyBlindSignatureRejectsTamperedInput(t *testing.T) {
	c := qt.New(t)

	privPEM, pubPEM, err := GenerateInstitutionKeys()
	c.Assert(err, qt.IsNil)

	blinded := hex.EncodeToString([]byte("blinded-token-bytes-for-voter-42"))
	sig, err := BlindSign(blinded, privPEM)
	c.Assert(err, qt.IsNil)

	tampered := hex.EncodeToString([]byte("blinded-token-bytes-for-voter-43"))
	c.Assert(VerifyBlindSignature(tampered, sig, pubPEM), qt.IsFalse)
}

func TestVerifyBlindSignatureRejectsWrongKey(t *testing.T) {
	c := qt.New(t)

	privA, _, err := GenerateInstitutionKeys()
	c.Assert(err, qt.IsNil)
	_, pubB, err := GenerateInstitutionKeys()
	c.Assert(err, qt.IsNil)

	blinded := hex.EncodeToString([]byte("blinded-token-bytes"))
	sig, err := BlindSign(blinded, privA)
	c.Assert(err, qt.IsNil)

	c.Assert(VerifyBlindSignature(blinded, sig, pubB), qt.IsFalse)
}

func TestVerifyBlindSignatureNeverErrorsOnGarbage(t *testing.T) {
	c := qt.New(t)

	c.Assert(VerifyBlindSignature("not-hex!", "not-base64!", "not-pem"), qt.IsFalse)
	c.Assert(VerifyBlindSignature("", "", ""), qt.IsFalse)
}

func TestBlindSignRejectsMalformedInput(t *testing.T) {
	c := qt.New(t)

	privPEM, _, err := GenerateInstitutionKeys()
	c.Assert(err, qt.IsNil)

	_, err = BlindSign("not-hex!", privPEM)
	c.Assert(err, qt.ErrorIs, ErrBadInput)

	_, err = BlindSign("abcd", "not a pem")
	c.Assert(err, qt.ErrorIs, ErrKeyMaterial)
}
