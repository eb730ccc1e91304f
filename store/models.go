package store

import "time"

// User is the Voter entity of spec §3. The core never mutates a user
// during the voting flow; it is append-only from this package's
// perspective here.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	PublicKey    *string
	IsAdmin      bool
	CreatedAt    time.Time
}

// Election is spec §3's Election entity, including the per-election RSA
// signing keypair (C3 custody).
type Election struct {
	ID          int64
	Title       string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	IsActive    bool
	SigningKey  string
	CreatedAt   time.Time
}

// Option is one ballot choice within an Election.
type Option struct {
	ID          int64
	ElectionID  int64
	OptionText  string
	OptionOrder int
}

// BlindToken is spec §3's BlindToken entity: the issued authorization for
// one voter in one election. SignedBlob is nil until C4 signs it.
type BlindToken struct {
	ID           int64
	VoterID      int64
	ElectionID   int64
	BlindedNonce string
	SignedBlob   *string
	Used         bool
	CreatedAt    time.Time
	UsedAt       *time.Time
}

// Signed reports whether the token has been signed by the institution.
func (t *BlindToken) Signed() bool { return t.SignedBlob != nil }

// Ballot is the anonymous cast-vote record: spec §3's hard invariant that
// no column here references a voter.
type Ballot struct {
	ID                 int64
	ElectionID         int64
	OptionID           int64
	UnblindedSignature string
	VoteHash           string
	EncryptedPayload   string
	CreatedAt          time.Time
}

// Receipt is the voter-linked "I voted" witness, carrying no choice data.
type Receipt struct {
	ID               int64
	VoterID          int64
	ElectionID       int64
	ReceiptHash      string
	DigitalSignature string
	VotedAt          time.Time
}
