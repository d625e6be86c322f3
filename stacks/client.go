package stacks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

const (
	mainnetURL = "https://api.mainnet.hiro.so"
	testnetURL = "https://api.testnet.hiro.so"

	defaultTimeout = 15 * time.Second
	maxBody        = 4 << 20
)

var (
	// ErrCallFailed is returned when the node evaluated the call but reported okay=false
	ErrCallFailed = errors.New("read-only call failed")

	readOnlyCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dao",
		Subsystem: "stacks",
		Name:      "read_only_calls_total",
		Help:      "Read-only contract calls by function and outcome.",
	}, []string{"function", "outcome"})

	nodeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dao",
		Subsystem: "stacks",
		Name:      "node_request_seconds",
		Help:      "Latency of requests to the Stacks node.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// Config -
type Config struct {
	// Network is mainnet or testnet
	Network string
	// NodeURL overrides the public node for the network
	NodeURL string
	// RPS caps outgoing requests per second, 0 means unlimited
	RPS float64
}

// Client talks to the RPC API of a Stacks node
type Client struct {
	http    *http.Client
	baseURL string
	network string
	limiter *rate.Limiter

	// Optional: logging
	Log logger.Logger
}

// New -
func New(httpClient *http.Client, cfg Config, loggers ...logger.Logger) (*Client, error) {
	var log logger.Logger
	if len(loggers) > 0 {
		log = loggers[0]
	} else {
		log = &logger.NoopLogger{}
	}

	base := cfg.NodeURL
	switch cfg.Network {
	case "mainnet":
		if base == "" {
			base = mainnetURL
		}
	case "testnet":
		if base == "" {
			base = testnetURL
		}
	default:
		return nil, fmt.Errorf("unknown network '%s'", cfg.Network)
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.Wrapf(err, "bad node url '%s'", base)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1)
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(base, "/"),
		network: cfg.Network,
		limiter: limiter,
		Log:     log,
	}, nil
}

// Network -
func (c *Client) Network() string {
	return c.network
}

type callReadRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type callReadResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

// CallReadOnly evaluates a read-only function of contract (address.name) as sender
func (c *Client) CallReadOnly(ctx context.Context, contract, function, sender string, args ...clarity.Value) (clarity.Value, error) {
	address, name, ok := strings.Cut(contract, ".")
	if !ok || address == "" || name == "" {
		return nil, fmt.Errorf("bad contract identifier '%s'", contract)
	}

	req := callReadRequest{Sender: sender, Arguments: make([]string, 0, len(args))}
	for i, arg := range args {
		h, err := clarity.EncodeHex(arg)
		if err != nil {
			readOnlyCalls.WithLabelValues(function, "encode_error").Inc()
			return nil, errors.Wrapf(err, "Failed encoding argument %d of %s", i, function)
		}
		req.Arguments = append(req.Arguments, h)
	}

	path := fmt.Sprintf("/v2/contracts/call-read/%s/%s/%s", url.PathEscape(address), url.PathEscape(name), url.PathEscape(function))
	var resp callReadResponse
	if err := c.do(ctx, http.MethodPost, path, "call-read", req, &resp); err != nil {
		readOnlyCalls.WithLabelValues(function, "transport_error").Inc()
		return nil, err
	}

	if !resp.Okay {
		readOnlyCalls.WithLabelValues(function, "failed").Inc()
		c.Log.Warnf("%s returned okay=false: %s", function, resp.Cause)
		return nil, errors.Wrapf(ErrCallFailed, "%s: %s", function, resp.Cause)
	}

	v, err := clarity.DecodeHex(resp.Result)
	if err != nil {
		readOnlyCalls.WithLabelValues(function, "decode_error").Inc()
		return nil, errors.Wrapf(err, "Failed decoding result of %s", function)
	}

	readOnlyCalls.WithLabelValues(function, "ok").Inc()
	return v, nil
}

type accountResponse struct {
	Balance string `json:"balance"`
	Locked  string `json:"locked"`
	Nonce   uint64 `json:"nonce"`
}

// AccountBalance returns the STX balance of address in micro-STX
func (c *Client) AccountBalance(ctx context.Context, address string) (*big.Int, error) {
	var resp accountResponse
	path := fmt.Sprintf("/v2/accounts/%s?proof=0", url.PathEscape(address))
	if err := c.do(ctx, http.MethodGet, path, "accounts", nil, &resp); err != nil {
		return nil, err
	}

	balance, ok := new(big.Int).SetString(strings.TrimPrefix(resp.Balance, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("bad balance '%s' for %s", resp.Balance, address)
	}
	return balance, nil
}

// NodeInfo is the subset of /v2/info the gateway looks at
type NodeInfo struct {
	NetworkID       uint32 `json:"network_id"`
	StacksTipHeight uint64 `json:"stacks_tip_height"`
	BurnBlockHeight uint64 `json:"burn_block_height"`
	ServerVersion   string `json:"server_version"`
}

// Info reads the node status; it doubles as a readiness probe
func (c *Client) Info(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := c.do(ctx, http.MethodGet, "/v2/info", "info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "Failed marshalling request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "Failed building request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	nodeLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return errors.Wrap(err, "Failed reading response")
	}
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, res.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "Failed unmarshalling %s response", endpoint)
	}
	return nil
}
