package submit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/ndau/stacks-dao-gateway/wallet"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sender   = "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ"
	delegate = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
)

type fakeBridge struct {
	mu    sync.Mutex
	calls []wallet.ContractCall
	err   error

	// block, when set, holds OpenContractCall until closed; entered is signalled on each call
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeBridge) Connect(ctx context.Context, req wallet.AuthRequest) (*wallet.UserProfile, error) {
	return nil, errors.New("not used")
}

func (f *fakeBridge) OpenContractCall(ctx context.Context, call wallet.ContractCall) (*wallet.TxResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return &wallet.TxResult{TxID: "0xfeed"}, nil
}

type memRecorder struct {
	mu      sync.Mutex
	records []models.Submission
}

func (m *memRecorder) InsertSubmission(ctx context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *s)
	return nil
}

var target = Target{
	Network:         "testnet",
	ContractAddress: delegate,
	ContractName:    "Stacks-Money",
	App:             wallet.AppDetails{Name: "Stacks DAO", Icon: "/logo.png"},
}

func hexOf(t *testing.T, v clarity.Value) string {
	h, err := clarity.EncodeHex(v)
	require.NoError(t, err)
	return h
}

func TestVote(t *testing.T) {
	bridge := &fakeBridge{}
	rec := &memRecorder{}
	s := New(bridge, rec, target)

	sub, err := s.Vote(context.Background(), sender, 3, true)
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", sub.TxID)
	assert.Equal(t, models.SubmissionSubmitted, sub.Status)

	require.Len(t, bridge.calls, 1)
	call := bridge.calls[0]
	assert.Equal(t, "vote", call.FunctionName)
	assert.Equal(t, "Stacks-Money", call.ContractName)
	assert.Equal(t, "testnet", call.Network)
	assert.Equal(t, sender, call.Sender)
	assert.Equal(t, []string{hexOf(t, clarity.UInt(3)), hexOf(t, clarity.Bool(true))}, call.FunctionArgs)

	require.Len(t, rec.records, 1)
	assert.Equal(t, sender, rec.records[0].Sender)

	submitting, lastErr := s.State(sender)
	assert.False(t, submitting)
	assert.Empty(t, lastErr)
}

func TestBatchVote(t *testing.T) {
	bridge := &fakeBridge{}
	s := New(bridge, &memRecorder{}, target)

	_, err := s.BatchVote(context.Background(), sender, []uint64{1, 2}, []bool{true, false})
	require.NoError(t, err)
	require.Len(t, bridge.calls, 1)
	assert.Equal(t, "batch-vote", bridge.calls[0].FunctionName)
	assert.Equal(t, []string{
		hexOf(t, clarity.UIntList([]uint64{1, 2})),
		hexOf(t, clarity.BoolList([]bool{true, false})),
	}, bridge.calls[0].FunctionArgs)
}

func TestBatchVoteRejectsBadInput(t *testing.T) {
	bridge := &fakeBridge{}
	s := New(bridge, &memRecorder{}, target)

	_, err := s.BatchVote(context.Background(), sender, []uint64{1, 2}, []bool{true})
	assert.True(t, errors.Is(err, ErrBatchMismatch))
	_, lastErr := s.State(sender)
	assert.Equal(t, ErrBatchMismatch.Error(), lastErr)

	_, err = s.BatchVote(context.Background(), sender, nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyBatch))
	assert.Empty(t, bridge.calls)
}

func TestDelegateVote(t *testing.T) {
	bridge := &fakeBridge{}
	s := New(bridge, &memRecorder{}, target)

	d := Delegation{
		ProposalID:  9,
		DelegateTo:  delegate,
		PublicKey:   []byte{0x02, 0x01},
		MessageHash: []byte{0xaa},
		Signature:   []byte{0xbb, 0xcc},
	}
	_, err := s.DelegateVote(context.Background(), sender, d)
	require.NoError(t, err)

	require.Len(t, bridge.calls, 1)
	assert.Equal(t, "delegate-vote-with-passkey", bridge.calls[0].FunctionName)
	assert.Equal(t, []string{
		hexOf(t, clarity.UInt(9)),
		hexOf(t, clarity.MustPrincipal(delegate)),
		"0x02000000020201",
		"0x0200000001aa",
		"0x0200000002bbcc",
	}, bridge.calls[0].FunctionArgs)

	d.DelegateTo = "nobody"
	_, err = s.DelegateVote(context.Background(), sender, d)
	assert.Error(t, err)
	assert.Len(t, bridge.calls, 1)
}

func TestCancelledSubmission(t *testing.T) {
	rec := &memRecorder{}
	s := New(&fakeBridge{err: wallet.ErrCancelled}, rec, target)

	sub, err := s.Vote(context.Background(), sender, 1, false)
	assert.True(t, errors.Is(err, wallet.ErrCancelled))
	assert.Equal(t, models.SubmissionCancelled, sub.Status)

	_, lastErr := s.State(sender)
	assert.Equal(t, "Transaction was cancelled", lastErr)
	assert.Equal(t, "Transaction was cancelled", rec.records[0].Error)
}

func TestFailedSubmissionKeepsMessage(t *testing.T) {
	s := New(&fakeBridge{err: errors.New("insufficient funds for fee")}, &memRecorder{}, target)

	sub, err := s.Vote(context.Background(), sender, 1, true)
	require.Error(t, err)
	assert.Equal(t, "insufficient funds for fee", err.Error())
	assert.Equal(t, models.SubmissionFailed, sub.Status)

	_, lastErr := s.State(sender)
	assert.Equal(t, "insufficient funds for fee", lastErr)
}

func TestOneSubmissionAtATime(t *testing.T) {
	bridge := &fakeBridge{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := New(bridge, &memRecorder{}, target)

	done := make(chan error, 1)
	go func() {
		_, err := s.Vote(context.Background(), sender, 1, true)
		done <- err
	}()

	<-bridge.entered
	submitting, _ := s.State(sender)
	assert.True(t, submitting)

	_, err := s.Vote(context.Background(), sender, 2, true)
	assert.True(t, errors.Is(err, ErrSubmitting))

	close(bridge.block)
	require.NoError(t, <-done)

	submitting, _ = s.State(sender)
	assert.False(t, submitting)
}

func TestSendersSubmitIndependently(t *testing.T) {
	bridge := &fakeBridge{block: make(chan struct{}), entered: make(chan struct{}, 2)}
	s := New(bridge, &memRecorder{}, target)

	done := make(chan error, 2)
	for _, who := range []string{sender, delegate} {
		go func(who string) {
			_, err := s.Vote(context.Background(), who, 1, true)
			done <- err
		}(who)
	}
	<-bridge.entered
	<-bridge.entered

	for _, who := range []string{sender, delegate} {
		submitting, _ := s.State(who)
		assert.True(t, submitting, who)

		_, err := s.Vote(context.Background(), who, 2, false)
		assert.True(t, errors.Is(err, ErrSubmitting), who)
	}

	close(bridge.block)
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.Len(t, bridge.calls, 2)

	_, err := s.BatchVote(context.Background(), delegate, nil, nil)
	require.Error(t, err)
	_, lastErr := s.State(delegate)
	assert.Equal(t, ErrEmptyBatch.Error(), lastErr)
	_, lastErr = s.State(sender)
	assert.Empty(t, lastErr)
}

func TestBallotConfirm(t *testing.T) {
	bridge := &fakeBridge{}
	s := New(bridge, &memRecorder{}, target)

	b := s.Prepare(sender, 5, true)
	assert.Equal(t, "Confirm your YES vote?", b.Prompt)
	assert.Empty(t, bridge.calls)

	_, err := s.Confirm(context.Background(), b.ID, delegate)
	assert.True(t, errors.Is(err, ErrNoBallot))
	assert.True(t, errors.Is(s.Cancel(b.ID, delegate), ErrNoBallot))
	assert.Empty(t, bridge.calls)

	sub, err := s.Confirm(context.Background(), b.ID, sender)
	require.NoError(t, err)
	assert.Equal(t, "vote", sub.FunctionName)
	require.Len(t, bridge.calls, 1)

	_, err = s.Confirm(context.Background(), b.ID, sender)
	assert.True(t, errors.Is(err, ErrNoBallot))
}

func TestBallotCancelAndExpiry(t *testing.T) {
	bridge := &fakeBridge{}
	s := New(bridge, &memRecorder{}, target)

	b := s.Prepare(sender, 5, false)
	assert.Equal(t, "Confirm your NO vote?", b.Prompt)
	require.NoError(t, s.Cancel(b.ID, sender))
	assert.True(t, errors.Is(s.Cancel(b.ID, sender), ErrNoBallot))

	now := time.Now()
	s.ballots.now = func() time.Time { return now }
	b = s.Prepare(sender, 6, true)
	s.ballots.now = func() time.Time { return now.Add(ballotTTL + time.Second) }

	_, err := s.Confirm(context.Background(), b.ID, sender)
	assert.True(t, errors.Is(err, ErrNoBallot))
	assert.Empty(t, bridge.calls)
}
