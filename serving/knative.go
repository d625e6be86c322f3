package serving

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/dal"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/ndau/stacks-dao-gateway/submit"
	"github.com/ndau/stacks-dao-gateway/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TrackingHeader carries the caller's tracking number; a new one is issued when absent
const TrackingHeader = "X-Tracking-Number"

const shutdownTimeout = 10 * time.Second

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dao",
	Subsystem: "http",
	Name:      "request_seconds",
	Help:      "HTTP API latency by route and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method", "code"})

// Reader is the read-only side of the DAO contract
//
//go:generate mockgen -destination=./mocks/mock_reader.go -package=mocks github.com/ndau/stacks-dao-gateway/serving Reader
type Reader interface {
	ListProposals(ctx context.Context, count int) []models.Proposal
	Card(ctx context.Context, id uint64, viewer string) *models.ProposalCard
	GetProposalStatus(ctx context.Context, id uint64) *models.ProposalStatus
	GetVotingDeadlineInfo(ctx context.Context, id uint64) *models.VotingDeadlineInfo
	GetProposalResults(ctx context.Context, id uint64) *models.ProposalResults
	GetDelegation(ctx context.Context, delegator string, id uint64) *models.Delegation
	GetTreasuryBalance(ctx context.Context, user string) uint64
	GetActiveProposalsInfo(ctx context.Context) models.ActiveProposalsInfo
	UserData(ctx context.Context, address string) models.UserData
	HasVoted(ctx context.Context, id uint64, voter string) bool
}

// KnClient serves the gateway HTTP API
type KnClient struct {
	cfg       *models.Config
	reader    Reader
	sessions  *wallet.Sessions
	submitter *submit.Submitter
	repo      dal.Repo
	router    *mux.Router
	handler   http.Handler

	// Optional: logging
	Log logger.Logger
}

// NewKnClient -
func NewKnClient(cfg *models.Config, reader Reader, sessions *wallet.Sessions, submitter *submit.Submitter, repo dal.Repo, loggers ...logger.Logger) (knc *KnClient, err error) {
	// Attach an optional logger
	var log logger.Logger
	if len(loggers) > 0 {
		log = loggers[0]
	} else {
		log = &logger.NoopLogger{}
	}

	k := &KnClient{
		cfg:       cfg,
		reader:    reader,
		sessions:  sessions,
		submitter: submitter,
		repo:      repo,

		// Optional: logging
		Log: log,
	}
	k.router = k.routes()
	k.handler = enableCORS(k.router)
	return k, nil
}

// Handler exposes the router behind the CORS layer
func (k *KnClient) Handler() http.Handler {
	return k.handler
}

// Run serves until ctx is done
func (k *KnClient) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", k.cfg.ListenPort),
		Handler:           k.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			k.Log.Errorf("Failed to shut down the API server: %v", err)
		}
	}()

	k.Log.Infof("API is listening on port %d", k.cfg.ListenPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		k.Log.Errorf("Failed to listen on port %d: %v", k.cfg.ListenPort, err)
		return err
	}
	return nil
}

func (k *KnClient) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(k.track, instrument)

	r.HandleFunc("/healthz", k.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Proposals
	r.HandleFunc("/proposals", k.listProposals).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}", k.getProposal).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/status", k.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/deadline", k.getDeadline).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/results", k.getResults).Methods(http.MethodGet)
	r.HandleFunc("/proposals/{id:[0-9]+}/delegations/{delegator}", k.getDelegation).Methods(http.MethodGet)
	r.HandleFunc("/treasury", k.getTreasury).Methods(http.MethodGet)
	r.HandleFunc("/active", k.getActive).Methods(http.MethodGet)

	// Members
	r.HandleFunc("/members/{address}", k.getMember).Methods(http.MethodGet)
	r.HandleFunc("/members/{address}/voted/{id:[0-9]+}", k.getVoted).Methods(http.MethodGet)

	// Wallet sessions
	r.HandleFunc("/sessions", k.connect).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", k.getSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}/profile", k.completeSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", k.disconnect).Methods(http.MethodDelete)

	// Transactions
	r.HandleFunc("/votes", k.vote).Methods(http.MethodPost)
	r.HandleFunc("/votes/batch", k.batchVote).Methods(http.MethodPost)
	r.HandleFunc("/delegations", k.delegate).Methods(http.MethodPost)
	r.HandleFunc("/ballots", k.prepareBallot).Methods(http.MethodPost)
	r.HandleFunc("/ballots/{id}/confirm", k.confirmBallot).Methods(http.MethodPost)
	r.HandleFunc("/ballots/{id}", k.cancelBallot).Methods(http.MethodDelete)
	r.HandleFunc("/submissions", k.listSubmissions).Methods(http.MethodGet)
	r.HandleFunc("/submitter", k.submitterState).Methods(http.MethodGet)

	return r
}

// enableCORS wraps the whole router: preflight requests match no route, so they are
// answered here before routing
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TrackingHeader)
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// track puts the tracking number on the request context and echoes it back
func (k *KnClient) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trackingNumber := r.Header.Get(TrackingHeader)
		if trackingNumber == "" {
			trackingNumber = uuid.New().String()
		}
		w.Header().Set(TrackingHeader, trackingNumber)

		k.Log.Infof("%s | %s %s", trackingNumber, r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(models.WithTrackingNumber(r.Context(), trackingNumber)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (s *statusWriter) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		requestDuration.WithLabelValues(route, r.Method, strconv.Itoa(sw.code)).Observe(time.Since(start).Seconds())
	})
}

func (k *KnClient) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"contract": k.cfg.Contract(),
		"network":  k.cfg.Network,
	})
}
