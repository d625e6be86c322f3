package dao

import (
	"context"
	"math/big"

	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/ndau/stacks-dao-gateway/models"
	"golang.org/x/sync/errgroup"
)

const listConcurrency = 4

// Contract read-only functions
const (
	FnIsMember               = "is-member"
	FnGetProposal            = "get-proposal"
	FnGetProposalStatus      = "get-proposal-status"
	FnGetVotingDeadlineInfo  = "get-voting-deadline-info"
	FnGetProposalResults     = "get-proposal-results"
	FnGetTreasuryBalance     = "get-treasury-balance"
	FnHasVoted               = "has-voted"
	FnHasPasskey             = "has-passkey"
	FnGetDelegation          = "get-delegation"
	FnGetActiveProposalsInfo = "get-active-proposals-info"
)

// Node is the read-only side of a Stacks node
//
//go:generate mockgen -destination=./mocks/mock_node.go -package=mocks github.com/ndau/stacks-dao-gateway/dao Node
type Node interface {
	CallReadOnly(ctx context.Context, contract, function, sender string, args ...clarity.Value) (clarity.Value, error)
	AccountBalance(ctx context.Context, address string) (*big.Int, error)
}

// Contract wraps the read-only functions of the DAO contract.
//
// Every query swallows its error: it is logged and a safe fallback (false, nil or 0)
// is returned, so a dead node degrades the views instead of failing them.
type Contract struct {
	node     Node
	contract string
	address  string

	// Optional: logging
	Log logger.Logger
}

// NewContract - contract is address.name
func NewContract(node Node, contractAddress, contractName string, loggers ...logger.Logger) *Contract {
	var log logger.Logger
	if len(loggers) > 0 {
		log = loggers[0]
	} else {
		log = &logger.NoopLogger{}
	}

	return &Contract{
		node:     node,
		contract: contractAddress + "." + contractName,
		address:  contractAddress,
		Log:      log,
	}
}

// ID returns the contract identifier
func (c *Contract) ID() string {
	return c.contract
}

func (c *Contract) call(ctx context.Context, function, sender string, args ...clarity.Value) (clarity.Value, error) {
	return c.node.CallReadOnly(ctx, c.contract, function, sender, args...)
}

func (c *Contract) principal(ctx context.Context, what, address string) (clarity.Value, bool) {
	p, err := clarity.Principal(address)
	if err != nil {
		c.Log.Errorf("%s | Error checking %s: %v", trackingNumber(ctx), what, err)
		return nil, false
	}
	return p, true
}

// IsMember -
func (c *Contract) IsMember(ctx context.Context, user string) bool {
	p, ok := c.principal(ctx, "membership", user)
	if !ok {
		return false
	}
	res, err := c.call(ctx, FnIsMember, user, p)
	if err != nil {
		c.Log.Errorf("%s | Error checking membership: %v", trackingNumber(ctx), err)
		return false
	}
	b, err := clarity.AsBool(res)
	if err != nil {
		c.Log.Errorf("%s | Error checking membership: %v", trackingNumber(ctx), err)
		return false
	}
	return b
}

// GetProposal returns nil when the proposal does not exist or cannot be read
func (c *Contract) GetProposal(ctx context.Context, id uint64) *models.Proposal {
	res, err := c.call(ctx, FnGetProposal, c.address, clarity.UInt(id))
	if err != nil {
		c.Log.Errorf("%s | Error fetching proposal %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	p, err := decodeProposal(id, res)
	if err != nil {
		c.Log.Errorf("%s | Error fetching proposal %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	return p
}

// GetProposalStatus -
func (c *Contract) GetProposalStatus(ctx context.Context, id uint64) *models.ProposalStatus {
	res, err := c.call(ctx, FnGetProposalStatus, c.address, clarity.UInt(id))
	if err != nil {
		c.Log.Errorf("%s | Error fetching proposal status %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	s, err := decodeStatus(res)
	if err != nil {
		c.Log.Errorf("%s | Error fetching proposal status %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	return s
}

// GetVotingDeadlineInfo -
func (c *Contract) GetVotingDeadlineInfo(ctx context.Context, id uint64) *models.VotingDeadlineInfo {
	res, err := c.call(ctx, FnGetVotingDeadlineInfo, c.address, clarity.UInt(id))
	if err != nil {
		c.Log.Errorf("%s | Error fetching voting deadline %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	d, err := decodeDeadline(res)
	if err != nil {
		c.Log.Errorf("%s | Error fetching voting deadline %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	return d
}

// GetProposalResults -
func (c *Contract) GetProposalResults(ctx context.Context, id uint64) *models.ProposalResults {
	res, err := c.call(ctx, FnGetProposalResults, c.address, clarity.UInt(id))
	if err != nil {
		c.Log.Errorf("%s | Error fetching proposal results %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	r, err := decodeResults(res)
	if err != nil {
		c.Log.Errorf("%s | Error fetching proposal results %d: %v", trackingNumber(ctx), id, err)
		return nil
	}
	return r
}

// GetTreasuryBalance returns 0 on failure
func (c *Contract) GetTreasuryBalance(ctx context.Context, user string) uint64 {
	sender := user
	if sender == "" {
		sender = c.address
	}
	res, err := c.call(ctx, FnGetTreasuryBalance, sender)
	if err != nil {
		c.Log.Errorf("%s | Error fetching treasury balance: %v", trackingNumber(ctx), err)
		return 0
	}
	n, err := clarity.AsUint64(res)
	if err != nil {
		c.Log.Errorf("%s | Error fetching treasury balance: %v", trackingNumber(ctx), err)
		return 0
	}
	return n
}

// HasVoted -
func (c *Contract) HasVoted(ctx context.Context, id uint64, voter string) bool {
	p, ok := c.principal(ctx, "vote status", voter)
	if !ok {
		return false
	}
	res, err := c.call(ctx, FnHasVoted, voter, clarity.UInt(id), p)
	if err != nil {
		c.Log.Errorf("%s | Error checking vote status: %v", trackingNumber(ctx), err)
		return false
	}
	b, err := clarity.AsBool(res)
	if err != nil {
		c.Log.Errorf("%s | Error checking vote status: %v", trackingNumber(ctx), err)
		return false
	}
	return b
}

// HasPasskey -
func (c *Contract) HasPasskey(ctx context.Context, member string) bool {
	p, ok := c.principal(ctx, "passkey", member)
	if !ok {
		return false
	}
	res, err := c.call(ctx, FnHasPasskey, member, p)
	if err != nil {
		c.Log.Errorf("%s | Error checking passkey: %v", trackingNumber(ctx), err)
		return false
	}
	b, err := clarity.AsBool(res)
	if err != nil {
		c.Log.Errorf("%s | Error checking passkey: %v", trackingNumber(ctx), err)
		return false
	}
	return b
}

// GetDelegation returns nil when there is no delegation
func (c *Contract) GetDelegation(ctx context.Context, delegator string, id uint64) *models.Delegation {
	p, ok := c.principal(ctx, "delegation", delegator)
	if !ok {
		return nil
	}
	res, err := c.call(ctx, FnGetDelegation, delegator, p, clarity.UInt(id))
	if err != nil {
		c.Log.Errorf("%s | Error fetching delegation: %v", trackingNumber(ctx), err)
		return nil
	}
	d, err := decodeDelegation(delegator, id, res)
	if err != nil {
		c.Log.Errorf("%s | Error fetching delegation: %v", trackingNumber(ctx), err)
		return nil
	}
	return d
}

// GetActiveProposalsInfo -
func (c *Contract) GetActiveProposalsInfo(ctx context.Context) models.ActiveProposalsInfo {
	res, err := c.call(ctx, FnGetActiveProposalsInfo, c.address)
	if err != nil {
		c.Log.Errorf("%s | Error fetching active proposals info: %v", trackingNumber(ctx), err)
		return nil
	}
	return decodeActiveInfo(res)
}

// ListProposals fetches proposals 1..count and drops the ones that cannot be read
func (c *Contract) ListProposals(ctx context.Context, count int) []models.Proposal {
	if count <= 0 {
		return nil
	}

	found := make([]*models.Proposal, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			found[i] = c.GetProposal(gctx, uint64(i+1))
			return nil
		})
	}
	_ = g.Wait()

	proposals := make([]models.Proposal, 0, count)
	for _, p := range found {
		if p != nil {
			proposals = append(proposals, *p)
		}
	}
	return proposals
}

// UserData gathers membership, passkey and STX balance of address
func (c *Contract) UserData(ctx context.Context, address string) models.UserData {
	data := models.UserData{
		Address:    address,
		IsMember:   c.IsMember(ctx, address),
		HasPasskey: c.HasPasskey(ctx, address),
	}

	balance, err := c.node.AccountBalance(ctx, address)
	if err != nil {
		c.Log.Errorf("%s | Error fetching balance of %s: %v", trackingNumber(ctx), address, err)
		return data
	}
	if balance != nil && balance.IsUint64() {
		data.Balance = balance.Uint64()
	}
	return data
}

// Card builds the view of one proposal for viewer, who may be empty
func (c *Contract) Card(ctx context.Context, id uint64, viewer string) *models.ProposalCard {
	p := c.GetProposal(ctx, id)
	if p == nil {
		return nil
	}

	results := p.Results()
	card := &models.ProposalCard{
		Proposal:   *p,
		Status:     c.GetProposalStatus(ctx, id),
		YesPercent: results.YesPercent(),
		NoPercent:  results.NoPercent(),
	}

	active := card.Status != nil && card.Status.Active()
	switch {
	case p.Executed:
		card.Badge = models.BadgeExecuted
	case active:
		card.Badge = models.BadgeActive
	default:
		card.Badge = models.BadgeEnded
	}

	if viewer != "" {
		card.HasVoted = c.HasVoted(ctx, id, viewer)
		card.CanVote = active && !card.HasVoted
	}
	return card
}

func trackingNumber(ctx context.Context) string {
	return models.TrackingNumber(ctx)
}
