package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logger "github.com/ndau/go-logger"
	"github.com/pkg/errors"
)

const (
	defaultTimeout = 5 * time.Minute
	maxBody        = 1 << 20
)

var (
	// ErrCancelled is returned when the user dismisses the wallet prompt
	ErrCancelled = errors.New("Transaction was cancelled")

	// ErrPending is returned by Connect when sign-in completes out of band
	ErrPending = errors.New("sign-in pending")
)

// AppDetails identifies this application in the wallet prompt
type AppDetails struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// AuthRequest - what the wallet is asked to approve on connect
type AuthRequest struct {
	SessionID  string     `json:"sessionId"`
	AppDetails AppDetails `json:"appDetails"`
	Scopes     []string   `json:"scopes"`
	RedirectTo string     `json:"redirectTo"`
}

// StxAddress - the account address on each network
type StxAddress struct {
	Testnet string `json:"testnet"`
	Mainnet string `json:"mainnet"`
}

// UserProfile is the part of the wallet's user data the gateway keeps
type UserProfile struct {
	StxAddress StxAddress `json:"stxAddress"`
}

// ContractCall is an unsigned contract call for the wallet to sign and broadcast
type ContractCall struct {
	Network         string     `json:"network"`
	ContractAddress string     `json:"contractAddress"`
	ContractName    string     `json:"contractName"`
	FunctionName    string     `json:"functionName"`
	FunctionArgs    []string   `json:"functionArgs"`
	Sender          string     `json:"sender,omitempty"`
	AppDetails      AppDetails `json:"appDetails"`
}

// TxResult - returned once the wallet broadcast the transaction
type TxResult struct {
	TxID  string `json:"txId"`
	TxRaw string `json:"txRaw"`
}

// Bridge is the wallet: it owns the keys, prompts the user, signs and broadcasts
//
//go:generate mockgen -destination=./mocks/mock_bridge.go -package=mocks github.com/ndau/stacks-dao-gateway/wallet Bridge
type Bridge interface {
	Connect(ctx context.Context, req AuthRequest) (*UserProfile, error)
	OpenContractCall(ctx context.Context, call ContractCall) (*TxResult, error)
}

// Remote is a Bridge reached over HTTP
type Remote struct {
	http    *http.Client
	baseURL string

	// Optional: logging
	Log logger.Logger
}

// NewRemote -
func NewRemote(httpClient *http.Client, baseURL string, loggers ...logger.Logger) (*Remote, error) {
	var log logger.Logger
	if len(loggers) > 0 {
		log = loggers[0]
	} else {
		log = &logger.NoopLogger{}
	}

	if baseURL == "" {
		return nil, errors.New("wallet bridge url is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Remote{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		Log:     log,
	}, nil
}

type bridgeReply struct {
	Cancelled bool         `json:"cancelled"`
	Pending   bool         `json:"pending"`
	Error     string       `json:"error"`
	Profile   *UserProfile `json:"profile"`
	TxID      string       `json:"txId"`
	TxRaw     string       `json:"txRaw"`
}

// Connect asks the wallet to authenticate the user
func (r *Remote) Connect(ctx context.Context, req AuthRequest) (*UserProfile, error) {
	reply, err := r.post(ctx, "/connect", req)
	if err != nil {
		return nil, err
	}
	if reply.Pending {
		return nil, ErrPending
	}
	if reply.Profile == nil {
		return nil, errors.New("wallet returned no profile")
	}
	return reply.Profile, nil
}

// OpenContractCall asks the wallet to sign and broadcast call
func (r *Remote) OpenContractCall(ctx context.Context, call ContractCall) (*TxResult, error) {
	reply, err := r.post(ctx, "/contract-call", call)
	if err != nil {
		return nil, err
	}
	if reply.TxID == "" {
		return nil, errors.New("wallet returned no transaction id")
	}
	return &TxResult{TxID: reply.TxID, TxRaw: reply.TxRaw}, nil
}

func (r *Remote) post(ctx context.Context, path string, body interface{}) (*bridgeReply, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "Failed marshalling wallet request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "Failed building wallet request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "wallet %s", path)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(err, "Failed reading wallet response")
	}

	var reply bridgeReply
	if len(data) > 0 {
		if err := json.Unmarshal(data, &reply); err != nil && res.StatusCode/100 == 2 {
			return nil, errors.Wrap(err, "Failed unmarshalling wallet response")
		}
	}

	if reply.Cancelled {
		return nil, ErrCancelled
	}
	if res.StatusCode/100 != 2 || reply.Error != "" {
		msg := reply.Error
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = fmt.Sprintf("wallet returned status %d", res.StatusCode)
		}
		r.Log.Warnf("wallet %s failed with status %d: %s", path, res.StatusCode, msg)
		return nil, errors.New(msg)
	}
	return &reply, nil
}
