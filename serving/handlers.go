package serving

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/ndau/stacks-dao-gateway/submit"
	"github.com/ndau/stacks-dao-gateway/wallet"
	"github.com/pkg/errors"
)

const (
	maxBody     = 1 << 16
	maxProposal = 200

	maxSubmissions = 200
)

var (
	errBadRequest = errors.New("bad request")
	errPending    = errors.New("sign-in has not completed")
)

type errorResponse struct {
	Error      string             `json:"error"`
	Submission *models.Submission `json:"submission,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

func (k *KnClient) listProposals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if cached, _ := strconv.ParseBool(q.Get("cached")); cached {
		k.listSnapshots(w, r)
		return
	}

	count := k.cfg.ProposalCount
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxProposal {
			writeError(w, http.StatusBadRequest, "count must be between 0 and "+strconv.Itoa(maxProposal))
			return
		}
		count = n
	}

	proposals := k.reader.ListProposals(ctx, count)
	if proposals == nil {
		proposals = []models.Proposal{}
	}
	writeJSON(w, http.StatusOK, proposals)
}

type snapshotView struct {
	models.Proposal
	Status    string    `json:"status"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func (k *KnClient) listSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snapshots, err := k.repo.ListProposals(ctx)
	if err != nil {
		k.Log.Errorf("%s | Failed to list stored proposals: %v", models.TrackingNumber(ctx), err)
		writeError(w, http.StatusInternalServerError, "Failed to list stored proposals")
		return
	}

	views := make([]snapshotView, 0, len(snapshots))
	for _, s := range snapshots {
		views = append(views, snapshotView{Proposal: s.Proposal(), Status: s.Status, FetchedAt: s.FetchedAt})
	}
	writeJSON(w, http.StatusOK, views)
}

func (k *KnClient) getProposal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	card := k.reader.Card(r.Context(), id, r.URL.Query().Get("viewer"))
	if card == nil {
		writeError(w, http.StatusNotFound, "Proposal not found")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// byID serves one per-proposal query; a nil result is a 404
func byID[T any](w http.ResponseWriter, r *http.Request, what string, fetch func(ctx context.Context, id uint64) *T) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}

	res := fetch(r.Context(), id)
	if res == nil {
		writeError(w, http.StatusNotFound, what+" not available")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (k *KnClient) getStatus(w http.ResponseWriter, r *http.Request) {
	byID(w, r, "Proposal status", k.reader.GetProposalStatus)
}

func (k *KnClient) getDeadline(w http.ResponseWriter, r *http.Request) {
	byID(w, r, "Voting deadline", k.reader.GetVotingDeadlineInfo)
}

func (k *KnClient) getResults(w http.ResponseWriter, r *http.Request) {
	byID(w, r, "Proposal results", k.reader.GetProposalResults)
}

func (k *KnClient) getDelegation(w http.ResponseWriter, r *http.Request) {
	delegator := mux.Vars(r)["delegator"]
	byID(w, r, "Delegation", func(ctx context.Context, id uint64) *models.Delegation {
		return k.reader.GetDelegation(ctx, delegator, id)
	})
}

func (k *KnClient) getTreasury(w http.ResponseWriter, r *http.Request) {
	balance := k.reader.GetTreasuryBalance(r.Context(), r.URL.Query().Get("user"))
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (k *KnClient) getActive(w http.ResponseWriter, r *http.Request) {
	info := k.reader.GetActiveProposalsInfo(r.Context())
	if info == nil {
		writeError(w, http.StatusNotFound, "Active proposals info not available")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (k *KnClient) getMember(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, k.reader.UserData(r.Context(), mux.Vars(r)["address"]))
}

func (k *KnClient) getVoted(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid proposal id")
		return
	}
	voted := k.reader.HasVoted(r.Context(), id, mux.Vars(r)["address"])
	writeJSON(w, http.StatusOK, map[string]bool{"hasVoted": voted})
}

func (k *KnClient) connect(w http.ResponseWriter, r *http.Request) {
	session, err := k.sessions.Connect(r.Context())
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}
	code := http.StatusCreated
	if session.Pending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, session)
}

func (k *KnClient) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := k.sessions.Load(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (k *KnClient) completeSession(w http.ResponseWriter, r *http.Request) {
	var profile wallet.UserProfile
	if err := readJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := k.sessions.Complete(r.Context(), mux.Vars(r)["id"], profile)
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (k *KnClient) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := k.sessions.Disconnect(r.Context(), mux.Vars(r)["id"]); err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// caller names who signs: a signed-in session or an explicit address
type caller struct {
	Session string `json:"session,omitempty"`
	Sender  string `json:"sender,omitempty"`
}

func (k *KnClient) sender(ctx context.Context, c caller) (string, error) {
	if c.Session != "" {
		session, err := k.sessions.Load(ctx, c.Session)
		if err != nil {
			return "", err
		}
		if session.Pending {
			return "", errPending
		}
		return session.Address, nil
	}

	if _, _, err := clarity.ParseAddress(c.Sender); err != nil {
		return "", errors.Wrap(errBadRequest, err.Error())
	}
	return c.Sender, nil
}

type voteRequest struct {
	caller
	ProposalID uint64 `json:"proposalId"`
	Support    bool   `json:"support"`
}

func (k *KnClient) vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sender, err := k.sender(r.Context(), req.caller)
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}

	sub, err := k.submitter.Vote(r.Context(), sender, req.ProposalID, req.Support)
	k.writeSubmission(w, r, sub, err)
}

type batchVoteRequest struct {
	caller
	ProposalIDs []uint64 `json:"proposalIds"`
	Votes       []bool   `json:"votes"`
}

func (k *KnClient) batchVote(w http.ResponseWriter, r *http.Request) {
	var req batchVoteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sender, err := k.sender(r.Context(), req.caller)
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}

	sub, err := k.submitter.BatchVote(r.Context(), sender, req.ProposalIDs, req.Votes)
	k.writeSubmission(w, r, sub, err)
}

type delegateRequest struct {
	caller
	ProposalID  uint64 `json:"proposalId"`
	DelegateTo  string `json:"delegateTo"`
	PublicKey   string `json:"publicKey"`
	MessageHash string `json:"messageHash"`
	Signature   string `json:"signature"`
}

func decodeHex(field, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errors.Wrapf(errBadRequest, "%s is not hex", field)
	}
	return b, nil
}

func (k *KnClient) delegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sender, err := k.sender(r.Context(), req.caller)
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}

	d := submit.Delegation{ProposalID: req.ProposalID, DelegateTo: req.DelegateTo}
	if d.PublicKey, err = decodeHex("publicKey", req.PublicKey); err == nil {
		if d.MessageHash, err = decodeHex("messageHash", req.MessageHash); err == nil {
			d.Signature, err = decodeHex("signature", req.Signature)
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := k.submitter.DelegateVote(r.Context(), sender, d)
	k.writeSubmission(w, r, sub, err)
}

func (k *KnClient) prepareBallot(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sender, err := k.sender(r.Context(), req.caller)
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}

	writeJSON(w, http.StatusCreated, k.submitter.Prepare(sender, req.ProposalID, req.Support))
}

// ballotCaller reads who is acting on a ballot; only its own sender may confirm or cancel it
func (k *KnClient) ballotCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	var c caller
	if err := readJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	sender, err := k.sender(r.Context(), c)
	if err != nil {
		k.writeSubmitError(w, r, nil, err)
		return "", false
	}
	return sender, true
}

func (k *KnClient) confirmBallot(w http.ResponseWriter, r *http.Request) {
	sender, ok := k.ballotCaller(w, r)
	if !ok {
		return
	}
	sub, err := k.submitter.Confirm(r.Context(), mux.Vars(r)["id"], sender)
	k.writeSubmission(w, r, sub, err)
}

func (k *KnClient) cancelBallot(w http.ResponseWriter, r *http.Request) {
	sender, ok := k.ballotCaller(w, r)
	if !ok {
		return
	}
	if err := k.submitter.Cancel(mux.Vars(r)["id"], sender); err != nil {
		k.writeSubmitError(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (k *KnClient) listSubmissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit > maxSubmissions {
		limit = maxSubmissions
	}
	subs, err := k.repo.ListSubmissions(ctx, q.Get("sender"), limit)
	if err != nil {
		k.Log.Errorf("%s | Failed to list submissions: %v", models.TrackingNumber(ctx), err)
		writeError(w, http.StatusInternalServerError, "Failed to list submissions")
		return
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// submitterState reports the submission state of one sender
func (k *KnClient) submitterState(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")
	if _, _, err := clarity.ParseAddress(sender); err != nil {
		writeError(w, http.StatusBadRequest, "sender must be a stacks address")
		return
	}

	submitting, lastError := k.submitter.State(sender)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sender":     sender,
		"submitting": submitting,
		"lastError":  lastError,
	})
}

func (k *KnClient) writeSubmission(w http.ResponseWriter, r *http.Request, sub *models.Submission, err error) {
	if err != nil {
		k.writeSubmitError(w, r, sub, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

// writeSubmitError maps the package errors onto status codes. A submission the wallet
// refused still carries its record so the caller sees what was recorded.
func (k *KnClient) writeSubmitError(w http.ResponseWriter, r *http.Request, sub *models.Submission, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, submit.ErrBatchMismatch),
		errors.Is(err, submit.ErrEmptyBatch),
		errors.Is(err, clarity.ErrBadAddress),
		errors.Is(err, wallet.ErrNoAddress):
		code = http.StatusBadRequest
	case errors.Is(err, wallet.ErrNoSession), errors.Is(err, submit.ErrNoBallot):
		code = http.StatusNotFound
	case errors.Is(err, submit.ErrSubmitting), errors.Is(err, errPending):
		code = http.StatusConflict
	case errors.Is(err, wallet.ErrCancelled):
		code = http.StatusUnprocessableEntity
	}

	k.Log.Warnf("%s | %s %s failed: %v", models.TrackingNumber(r.Context()), r.Method, r.URL.Path, err)
	writeJSON(w, code, errorResponse{Error: err.Error(), Submission: sub})
}
