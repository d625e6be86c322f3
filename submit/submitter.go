package submit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/ndau/stacks-dao-gateway/wallet"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contract functions that change state
const (
	FnVote         = "vote"
	FnBatchVote    = "batch-vote"
	FnDelegateVote = "delegate-vote-with-passkey"
)

var (
	// ErrSubmitting is returned while another submission waits on the wallet
	ErrSubmitting = errors.New("a submission is already in progress")

	// ErrBatchMismatch is returned when proposal ids and votes differ in length
	ErrBatchMismatch = errors.New("proposal ids and votes must have the same length")

	// ErrEmptyBatch -
	ErrEmptyBatch = errors.New("batch vote needs at least one proposal")

	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dao",
		Subsystem: "submit",
		Name:      "submissions_total",
		Help:      "Contract calls handed to the wallet by function and outcome.",
	}, []string{"function", "status"})
)

// Recorder persists submissions
type Recorder interface {
	InsertSubmission(ctx context.Context, s *models.Submission) error
}

// Target - the contract calls are made against
type Target struct {
	Network         string
	ContractAddress string
	ContractName    string
	App             wallet.AppDetails
}

// senderState is what one member sees of their own submissions
type senderState struct {
	submitting bool
	lastError  string
}

// Submitter hands vote, batch-vote and delegation calls to the wallet.
//
// Each sender holds one submission at a time: their submitting flag is raised until
// the wallet answers, and their last failure is kept as a message for display.
type Submitter struct {
	bridge   wallet.Bridge
	recorder Recorder
	target   Target

	mu     sync.Mutex
	states map[string]*senderState

	ballots *ballots

	// Optional: logging
	Log logger.Logger
}

// New -
func New(bridge wallet.Bridge, recorder Recorder, target Target, loggers ...logger.Logger) *Submitter {
	var log logger.Logger
	if len(loggers) > 0 {
		log = loggers[0]
	} else {
		log = &logger.NoopLogger{}
	}

	return &Submitter{
		bridge:   bridge,
		recorder: recorder,
		target:   target,
		states:   map[string]*senderState{},
		ballots:  newBallots(),
		Log:      log,
	}
}

// State reports whether sender has a submission in flight and their last error message
func (s *Submitter) State(sender string) (submitting bool, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[sender]; ok {
		return st.submitting, st.lastError
	}
	return false, ""
}

// state must be called with mu held
func (s *Submitter) state(sender string) *senderState {
	st, ok := s.states[sender]
	if !ok {
		st = &senderState{}
		s.states[sender] = st
	}
	return st
}

// Vote submits vote(proposal-id, support)
func (s *Submitter) Vote(ctx context.Context, sender string, proposalID uint64, support bool) (*models.Submission, error) {
	return s.submit(ctx, sender, FnVote, "Failed to submit vote",
		clarity.UInt(proposalID), clarity.Bool(support))
}

// BatchVote submits batch-vote(proposal-ids, votes)
func (s *Submitter) BatchVote(ctx context.Context, sender string, proposalIDs []uint64, votes []bool) (*models.Submission, error) {
	if len(proposalIDs) == 0 {
		return nil, s.reject(sender, ErrEmptyBatch)
	}
	if len(proposalIDs) != len(votes) {
		return nil, s.reject(sender, ErrBatchMismatch)
	}
	return s.submit(ctx, sender, FnBatchVote, "Failed to submit batch vote",
		clarity.UIntList(proposalIDs), clarity.BoolList(votes))
}

// Delegation - arguments of delegate-vote-with-passkey
type Delegation struct {
	ProposalID  uint64
	DelegateTo  string
	PublicKey   []byte
	MessageHash []byte
	Signature   []byte
}

// DelegateVote submits delegate-vote-with-passkey. The passkey signature is produced by
// the member's authenticator; it is forwarded untouched for the contract to verify.
func (s *Submitter) DelegateVote(ctx context.Context, sender string, d Delegation) (*models.Submission, error) {
	delegate, err := clarity.Principal(d.DelegateTo)
	if err != nil {
		return nil, s.reject(sender, err)
	}
	return s.submit(ctx, sender, FnDelegateVote, "Failed to delegate vote",
		clarity.UInt(d.ProposalID),
		delegate,
		clarity.Buffer(d.PublicKey),
		clarity.Buffer(d.MessageHash),
		clarity.Buffer(d.Signature))
}

func (s *Submitter) reject(sender string, err error) error {
	s.mu.Lock()
	s.state(sender).lastError = err.Error()
	s.mu.Unlock()
	return err
}

func (s *Submitter) begin(sender string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(sender)
	if st.submitting {
		return false
	}
	st.submitting = true
	st.lastError = ""
	return true
}

func (s *Submitter) end(sender, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" {
		delete(s.states, sender)
		return
	}
	st := s.state(sender)
	st.submitting = false
	st.lastError = msg
}

func (s *Submitter) submit(ctx context.Context, sender, function, fallback string, args ...clarity.Value) (*models.Submission, error) {
	tn := models.TrackingNumber(ctx)

	encoded := make([]string, 0, len(args))
	for _, arg := range args {
		h, err := clarity.EncodeHex(arg)
		if err != nil {
			return nil, s.reject(sender, errors.Wrapf(err, "Failed encoding %s arguments", function))
		}
		encoded = append(encoded, h)
	}

	if !s.begin(sender) {
		return nil, ErrSubmitting
	}

	record := &models.Submission{
		ID:           uuid.New().String(),
		TrackingID:   tn,
		Sender:       sender,
		FunctionName: function,
		Arguments:    strings.Join(encoded, ","),
		CreatedAt:    time.Now().UTC(),
	}

	s.Log.Infof("%s | Opening %s contract call for %s", tn, function, wallet.ShortAddress(sender))
	res, err := s.bridge.OpenContractCall(ctx, wallet.ContractCall{
		Network:         s.target.Network,
		ContractAddress: s.target.ContractAddress,
		ContractName:    s.target.ContractName,
		FunctionName:    function,
		FunctionArgs:    encoded,
		Sender:          sender,
		AppDetails:      s.target.App,
	})

	var msg string
	var failure error
	switch {
	case errors.Is(err, wallet.ErrCancelled):
		msg = wallet.ErrCancelled.Error()
		failure = wallet.ErrCancelled
		record.Status = models.SubmissionCancelled
	case err != nil:
		msg = err.Error()
		if msg == "" {
			msg = fallback
		}
		failure = errors.New(msg)
		record.Status = models.SubmissionFailed
	case res == nil:
		msg = fallback
		failure = errors.New(msg)
		record.Status = models.SubmissionFailed
	default:
		record.Status = models.SubmissionSubmitted
		record.TxID = res.TxID
	}
	record.Error = msg
	s.end(sender, msg)
	submissions.WithLabelValues(function, record.Status).Inc()

	if rerr := s.recorder.InsertSubmission(ctx, record); rerr != nil {
		s.Log.Errorf("%s | Failed to record %s submission %s: %v", tn, function, record.ID, rerr)
	}

	if failure != nil {
		s.Log.Warnf("%s | %s not submitted: %s", tn, function, msg)
		return record, failure
	}

	s.Log.Infof("%s | %s submitted: %s", tn, function, res.TxID)
	return record, nil
}
