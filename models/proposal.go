package models

import (
	"time"
)

// Proposal statuses reported by get-proposal-status
const (
	StatusVotingActive           = "voting-active"
	StatusPassedPendingExecution = "passed-pending-execution"
	StatusRejected               = "rejected"
	StatusExecuted               = "executed"
	StatusNotFound               = "not-found"
)

// Proposal - a treasury transfer subject to a vote
type Proposal struct {
	ID           uint64 `json:"id"`
	Creator      string `json:"creator"`
	Amount       uint64 `json:"amount"`
	Recipient    string `json:"recipient"`
	YesVotes     uint64 `json:"yesVotes"`
	NoVotes      uint64 `json:"noVotes"`
	EndBlock     uint64 `json:"endBlock"`
	EndTimestamp uint64 `json:"endTimestamp"`
	Executed     bool   `json:"executed"`
	CreatedAt    uint64 `json:"createdAt"`
}

// ProposalStatus -
type ProposalStatus struct {
	Status string `json:"status"`
}

// Active reports whether voting is still open
func (s ProposalStatus) Active() bool {
	return s.Status == StatusVotingActive
}

// VotingDeadlineInfo -
type VotingDeadlineInfo struct {
	EndTimestamp  uint64 `json:"endTimestamp"`
	CreatedAt     uint64 `json:"createdAt"`
	TimeRemaining uint64 `json:"timeRemaining"`
	IsActive      bool   `json:"isActive"`
}

// ProposalResults -
type ProposalResults struct {
	YesVotes   uint64 `json:"yesVotes"`
	NoVotes    uint64 `json:"noVotes"`
	TotalVotes uint64 `json:"totalVotes"`
	Winning    bool   `json:"winning"`
}

// YesPercent is the share of yes votes in yes+no, 0 when nobody voted
func (r ProposalResults) YesPercent() float64 {
	return percent(r.YesVotes, r.YesVotes+r.NoVotes)
}

// NoPercent is the share of no votes in yes+no, 0 when nobody voted
func (r ProposalResults) NoPercent() float64 {
	return percent(r.NoVotes, r.YesVotes+r.NoVotes)
}

// Results derives the tally view from the counters carried on the proposal itself
func (p Proposal) Results() ProposalResults {
	return ProposalResults{
		YesVotes:   p.YesVotes,
		NoVotes:    p.NoVotes,
		TotalVotes: p.YesVotes + p.NoVotes,
		Winning:    p.YesVotes > p.NoVotes,
	}
}

// Created -
func (p Proposal) Created() time.Time {
	return time.Unix(int64(p.CreatedAt), 0).UTC()
}

// Ends -
func (p Proposal) Ends() time.Time {
	return time.Unix(int64(p.EndTimestamp), 0).UTC()
}

func percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Delegation - who a member delegated their vote on a proposal to
type Delegation struct {
	Delegator  string `json:"delegator"`
	ProposalID uint64 `json:"proposalId"`
	Delegate   string `json:"delegate"`
}

// ActiveProposalsInfo is returned verbatim from get-active-proposals-info
type ActiveProposalsInfo map[string]interface{}

// UserData -
type UserData struct {
	Address    string `json:"address"`
	IsMember   bool   `json:"isMember"`
	HasPasskey bool   `json:"hasPasskey"`
	Balance    uint64 `json:"balance"`
}

// Badge labels shown on a proposal card
const (
	BadgeExecuted = "Executed"
	BadgeActive   = "Active"
	BadgeEnded    = "Ended"
)

// ProposalCard is everything needed to render one proposal for one viewer
type ProposalCard struct {
	Proposal   Proposal        `json:"proposal"`
	Status     *ProposalStatus `json:"status,omitempty"`
	Badge      string          `json:"badge"`
	YesPercent float64         `json:"yesPercent"`
	NoPercent  float64         `json:"noPercent"`
	HasVoted   bool            `json:"hasVoted"`
	CanVote    bool            `json:"canVote"`
}

// ProposalSnapshot - last fetched copy of a proposal
type ProposalSnapshot struct {
	ProposalID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Creator      string
	Amount       uint64
	Recipient    string
	YesVotes     uint64
	NoVotes      uint64
	EndBlock     uint64
	EndTimestamp uint64
	Executed     bool
	OpenedAt     uint64
	Status       string
	FetchedAt    time.Time
}

// TableName - Return table name
func (t ProposalSnapshot) TableName() string {
	return "proposals"
}

// NewSnapshot -
func NewSnapshot(p Proposal, status string, at time.Time) ProposalSnapshot {
	return ProposalSnapshot{
		ProposalID:   p.ID,
		Creator:      p.Creator,
		Amount:       p.Amount,
		Recipient:    p.Recipient,
		YesVotes:     p.YesVotes,
		NoVotes:      p.NoVotes,
		EndBlock:     p.EndBlock,
		EndTimestamp: p.EndTimestamp,
		Executed:     p.Executed,
		OpenedAt:     p.CreatedAt,
		Status:       status,
		FetchedAt:    at,
	}
}

// Proposal -
func (t ProposalSnapshot) Proposal() Proposal {
	return Proposal{
		ID:           t.ProposalID,
		Creator:      t.Creator,
		Amount:       t.Amount,
		Recipient:    t.Recipient,
		YesVotes:     t.YesVotes,
		NoVotes:      t.NoVotes,
		EndBlock:     t.EndBlock,
		EndTimestamp: t.EndTimestamp,
		Executed:     t.Executed,
		CreatedAt:    t.OpenedAt,
	}
}
