package submit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/pkg/errors"
)

const ballotTTL = 10 * time.Minute

// ErrNoBallot is returned for unknown, expired or already used ballots, and for
// ballots prepared by another sender
var ErrNoBallot = errors.New("no such ballot")

// Ballot is a vote choice waiting for confirmation
type Ballot struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	ProposalID uint64    `json:"proposalId"`
	Support    bool      `json:"support"`
	Prompt     string    `json:"prompt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type ballots struct {
	mu    sync.Mutex
	items map[string]Ballot
	now   func() time.Time
}

func newBallots() *ballots {
	return &ballots{items: map[string]Ballot{}, now: time.Now}
}

func (b *ballots) add(sender string, proposalID uint64, support bool) Ballot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()

	choice := "NO"
	if support {
		choice = "YES"
	}
	ballot := Ballot{
		ID:         uuid.New().String(),
		Sender:     sender,
		ProposalID: proposalID,
		Support:    support,
		Prompt:     "Confirm your " + choice + " vote?",
		ExpiresAt:  b.now().Add(ballotTTL),
	}
	b.items[ballot.ID] = ballot
	return ballot
}

func (b *ballots) take(id, sender string) (Ballot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()

	ballot, ok := b.items[id]
	if !ok || ballot.Sender != sender {
		return Ballot{}, false
	}
	delete(b.items, id)
	return ballot, true
}

func (b *ballots) put(ballot Ballot) {
	b.mu.Lock()
	b.items[ballot.ID] = ballot
	b.mu.Unlock()
}

func (b *ballots) expire() {
	now := b.now()
	for id, ballot := range b.items {
		if now.After(ballot.ExpiresAt) {
			delete(b.items, id)
		}
	}
}

// Prepare records a vote choice; nothing reaches the wallet until Confirm
func (s *Submitter) Prepare(sender string, proposalID uint64, support bool) Ballot {
	return s.ballots.add(sender, proposalID, support)
}

// Confirm submits a prepared vote on behalf of the sender who prepared it.
// The ballot stays available when the wallet is busy.
func (s *Submitter) Confirm(ctx context.Context, id, sender string) (*models.Submission, error) {
	ballot, ok := s.ballots.take(id, sender)
	if !ok {
		return nil, ErrNoBallot
	}

	sub, err := s.Vote(ctx, ballot.Sender, ballot.ProposalID, ballot.Support)
	if errors.Is(err, ErrSubmitting) {
		s.ballots.put(ballot)
	}
	return sub, err
}

// Cancel drops a vote the sender prepared
func (s *Submitter) Cancel(id, sender string) error {
	if _, ok := s.ballots.take(id, sender); !ok {
		return ErrNoBallot
	}
	return nil
}
