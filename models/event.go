package models

// Event types accepted by the receiver
const (
	EventProposalsSync = "dao.proposals.sync"
	EventVoteSubmit    = "dao.vote.submit"
)

// Event event
type Event struct {
	// TrackingNumber
	TrackingNumber string `json:"TrackingNumber,omitempty"`
}

// SyncData - payload of dao.proposals.sync
type SyncData struct {
	// Count of proposal ids to scan, starting at 1
	Count int `json:"Count"`
}

// VoteData - payload of dao.vote.submit
type VoteData struct {
	// Sender signs the vote; required
	Sender     string `json:"Sender"`
	ProposalID uint64 `json:"ProposalID"`
	Support    bool   `json:"Support"`
}
