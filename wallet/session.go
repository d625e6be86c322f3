package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/pkg/errors"
)

// Scopes requested on connect
var Scopes = []string{"store_write", "publish_data"}

var (
	// ErrNoSession is returned for unknown or disconnected sessions
	ErrNoSession = errors.New("no such session")

	// ErrNoAddress is returned when the wallet profile has no address for the network
	ErrNoAddress = errors.New("wallet profile carries no address")
)

// SessionStore persists wallet sessions
type SessionStore interface {
	UpsertSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Sessions drives the connect / sign-in / disconnect flow
type Sessions struct {
	bridge     Bridge
	store      SessionStore
	network    string
	app        AppDetails
	redirectTo string
	now        func() time.Time

	// Optional: logging
	Log logger.Logger
}

// NewSessions -
func NewSessions(bridge Bridge, store SessionStore, network string, app AppDetails, loggers ...logger.Logger) *Sessions {
	var log logger.Logger
	if len(loggers) > 0 {
		log = loggers[0]
	} else {
		log = &logger.NoopLogger{}
	}

	return &Sessions{
		bridge:     bridge,
		store:      store,
		network:    network,
		app:        app,
		redirectTo: "/",
		now:        time.Now,
		Log:        log,
	}
}

// Connect prompts the wallet. If the wallet finishes sign-in out of band the session
// comes back pending and is completed later with Complete.
func (s *Sessions) Connect(ctx context.Context) (*models.Session, error) {
	tn := models.TrackingNumber(ctx)
	session := &models.Session{
		ID:        uuid.New().String(),
		Network:   s.network,
		Pending:   true,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	if err := s.store.UpsertSession(ctx, session); err != nil {
		return nil, errors.Wrap(err, "Failed storing session")
	}

	profile, err := s.bridge.Connect(ctx, AuthRequest{
		SessionID:  session.ID,
		AppDetails: s.app,
		Scopes:     Scopes,
		RedirectTo: s.redirectTo,
	})
	switch {
	case errors.Is(err, ErrPending):
		s.Log.Infof("%s | Sign-in pending for session %s", tn, session.ID)
		return session, nil
	case err != nil:
		if derr := s.store.DeleteSession(ctx, session.ID); derr != nil {
			s.Log.Errorf("%s | Failed dropping session %s: %v", tn, session.ID, derr)
		}
		return nil, err
	}

	return s.signIn(ctx, session, profile)
}

// Complete finishes a pending sign-in with the profile the wallet handed back
func (s *Sessions) Complete(ctx context.Context, id string, profile UserProfile) (*models.Session, error) {
	session, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Pending {
		return session, nil
	}
	return s.signIn(ctx, session, &profile)
}

func (s *Sessions) signIn(ctx context.Context, session *models.Session, profile *UserProfile) (*models.Session, error) {
	address := SelectAddress(*profile, s.network)
	if address == "" {
		return nil, ErrNoAddress
	}

	session.Address = address
	session.TestnetAddress = profile.StxAddress.Testnet
	session.MainnetAddress = profile.StxAddress.Mainnet
	session.Pending = false
	session.UpdatedAt = s.now()
	if err := s.store.UpsertSession(ctx, session); err != nil {
		return nil, errors.Wrap(err, "Failed storing session")
	}

	s.Log.Infof("%s | Signed in %s", models.TrackingNumber(ctx), ShortAddress(address))
	return session, nil
}

// Load -
func (s *Sessions) Load(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}

// Disconnect signs the user out
func (s *Sessions) Disconnect(ctx context.Context, id string) error {
	if _, err := s.Load(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteSession(ctx, id)
}

// SelectAddress picks the profile address for network, falling back to the other one
func SelectAddress(p UserProfile, network string) string {
	if network == "mainnet" {
		if p.StxAddress.Mainnet != "" {
			return p.StxAddress.Mainnet
		}
		return p.StxAddress.Testnet
	}
	if p.StxAddress.Testnet != "" {
		return p.StxAddress.Testnet
	}
	return p.StxAddress.Mainnet
}

// ShortAddress abbreviates an address for display: first six and last four characters
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
