package api

// Endpoint paths, exactly spec §6's wire surface. ElectionIDURLParam names
// the chi URL parameter used by every route scoped to one election.
const (
	PingEndpoint = "/ping"

	ElectionIDURLParam = "electionId"

	BlindTokensEndpoint       = "/voting/blind-tokens"
	MyBlindTokenEndpoint      = "/voting/blind-tokens/me/{" + ElectionIDURLParam + "}"
	CastBallotEndpoint        = "/voting/votes/complete"
	LegacyCastBallotEndpoint  = "/voting/votes" // retired, spec §6: 410 Gone
	MyReceiptEndpoint         = "/voting/receipts/me/{" + ElectionIDURLParam + "}"
	HasVotedEndpoint          = "/voting/has-voted/{" + ElectionIDURLParam + "}"
	ElectionResultsEndpoint   = "/elections/{" + ElectionIDURLParam + "}/results"
	ElectionPublicKeyEndpoint = "/elections/{" + ElectionIDURLParam + "}/public-key"
	ElectionsEndpoint         = "/elections"
	ElectionEndpoint          = "/elections/{" + ElectionIDURLParam + "}"
)
