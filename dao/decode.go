package dao

import (
	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/pkg/errors"
)

// fields reads typed entries out of a response tuple; a missing key keeps the zero value
type fields struct {
	t   clarity.TupleCV
	err error
}

func (f *fields) u64(key string) uint64 {
	v, ok := f.t[key]
	if !ok || f.err != nil {
		return 0
	}
	n, err := clarity.AsUint64(v)
	if err != nil {
		f.err = errors.Wrapf(err, "field %s", key)
	}
	return n
}

func (f *fields) flag(key string) bool {
	v, ok := f.t[key]
	if !ok || f.err != nil {
		return false
	}
	b, err := clarity.AsBool(v)
	if err != nil {
		f.err = errors.Wrapf(err, "field %s", key)
	}
	return b
}

func (f *fields) text(keys ...string) string {
	if f.err != nil {
		return ""
	}
	for _, key := range keys {
		v, ok := f.t[key]
		if !ok {
			continue
		}
		s, err := clarity.AsString(v)
		if err != nil {
			f.err = errors.Wrapf(err, "field %s", key)
		}
		return s
	}
	return ""
}

func decodeProposal(id uint64, v clarity.Value) (*models.Proposal, error) {
	t, found, err := clarity.AsTuple(v)
	if err != nil || !found {
		return nil, err
	}

	f := &fields{t: t}
	p := &models.Proposal{
		ID:           id,
		Creator:      f.text("creator"),
		Amount:       f.u64("amount"),
		Recipient:    f.text("recipient"),
		YesVotes:     f.u64("yes-votes"),
		NoVotes:      f.u64("no-votes"),
		EndBlock:     f.u64("end-block"),
		EndTimestamp: f.u64("end-timestamp"),
		Executed:     f.flag("executed"),
		CreatedAt:    f.u64("created-at"),
	}
	if f.err != nil {
		return nil, f.err
	}
	return p, nil
}

// decodeStatus accepts a bare status string or a tuple carrying a status key
func decodeStatus(v clarity.Value) (*models.ProposalStatus, error) {
	inner, ok := clarity.Unwrap(v)
	if !ok {
		return &models.ProposalStatus{Status: models.StatusNotFound}, nil
	}

	if t, isTuple := inner.(clarity.TupleCV); isTuple {
		f := &fields{t: t}
		s := f.text("status")
		if f.err != nil {
			return nil, f.err
		}
		return &models.ProposalStatus{Status: s}, nil
	}

	s, err := clarity.AsString(inner)
	if err != nil {
		return nil, err
	}
	return &models.ProposalStatus{Status: s}, nil
}

func decodeDeadline(v clarity.Value) (*models.VotingDeadlineInfo, error) {
	t, found, err := clarity.AsTuple(v)
	if err != nil || !found {
		return nil, err
	}

	f := &fields{t: t}
	d := &models.VotingDeadlineInfo{
		EndTimestamp:  f.u64("end-timestamp"),
		CreatedAt:     f.u64("created-at"),
		TimeRemaining: f.u64("time-remaining"),
		IsActive:      f.flag("is-active"),
	}
	if f.err != nil {
		return nil, f.err
	}
	return d, nil
}

func decodeResults(v clarity.Value) (*models.ProposalResults, error) {
	t, found, err := clarity.AsTuple(v)
	if err != nil || !found {
		return nil, err
	}

	f := &fields{t: t}
	r := &models.ProposalResults{
		YesVotes:   f.u64("yes-votes"),
		NoVotes:    f.u64("no-votes"),
		TotalVotes: f.u64("total-votes"),
		Winning:    f.flag("winning"),
	}
	if f.err != nil {
		return nil, f.err
	}
	return r, nil
}

// decodeDelegation accepts (some principal) or (some {delegate: principal, ...})
func decodeDelegation(delegator string, id uint64, v clarity.Value) (*models.Delegation, error) {
	inner, ok := clarity.Unwrap(v)
	if !ok {
		return nil, nil
	}

	d := &models.Delegation{Delegator: delegator, ProposalID: id}
	if t, isTuple := inner.(clarity.TupleCV); isTuple {
		f := &fields{t: t}
		d.Delegate = f.text("delegate", "delegate-to", "delegatee")
		if f.err != nil {
			return nil, f.err
		}
		return d, nil
	}

	s, err := clarity.AsString(inner)
	if err != nil {
		return nil, err
	}
	d.Delegate = s
	return d, nil
}

func decodeActiveInfo(v clarity.Value) models.ActiveProposalsInfo {
	switch out := clarity.ToValue(v).(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return models.ActiveProposalsInfo(out)
	default:
		return models.ActiveProposalsInfo{"value": out}
	}
}
