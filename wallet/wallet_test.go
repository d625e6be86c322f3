package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testnetAddr = "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ"
	mainnetAddr = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
)

func newRemote(t *testing.T, h http.HandlerFunc) *Remote {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	r, err := NewRemote(srv.Client(), srv.URL)
	require.NoError(t, err)
	return r
}

func TestRemoteOpenContractCall(t *testing.T) {
	var got ContractCall
	r := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/contract-call", req.URL.Path)
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		w.Write([]byte(`{"txId":"0xabc","txRaw":"0x00"}`))
	})

	res, err := r.OpenContractCall(context.Background(), ContractCall{
		Network:      "testnet",
		FunctionName: "vote",
		FunctionArgs: []string{"0x01", "0x03"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", res.TxID)
	assert.Equal(t, "vote", got.FunctionName)
	assert.Equal(t, []string{"0x01", "0x03"}, got.FunctionArgs)
}

func TestRemoteCancelled(t *testing.T) {
	r := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"cancelled":true}`))
	})

	_, err := r.OpenContractCall(context.Background(), ContractCall{FunctionName: "vote"})
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, "Transaction was cancelled", err.Error())
}

func TestRemoteErrorMessage(t *testing.T) {
	r := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"insufficient funds for fee"}`))
	})

	_, err := r.OpenContractCall(context.Background(), ContractCall{FunctionName: "vote"})
	require.Error(t, err)
	assert.Equal(t, "insufficient funds for fee", err.Error())

	r = newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err = r.OpenContractCall(context.Background(), ContractCall{FunctionName: "vote"})
	require.Error(t, err)
	assert.Equal(t, "wallet returned status 500", err.Error())
}

func TestRemoteConnect(t *testing.T) {
	var got AuthRequest
	r := newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		w.Write([]byte(`{"profile":{"stxAddress":{"testnet":"` + testnetAddr + `","mainnet":"` + mainnetAddr + `"}}}`))
	})

	p, err := r.Connect(context.Background(), AuthRequest{Scopes: Scopes, AppDetails: AppDetails{Name: "Stacks DAO"}})
	require.NoError(t, err)
	assert.Equal(t, testnetAddr, p.StxAddress.Testnet)
	assert.Equal(t, []string{"store_write", "publish_data"}, got.Scopes)

	r = newRemote(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"pending":true}`))
	})
	_, err = r.Connect(context.Background(), AuthRequest{})
	assert.True(t, errors.Is(err, ErrPending))
}

func TestNewRemoteRequiresURL(t *testing.T) {
	_, err := NewRemote(nil, "")
	assert.Error(t, err)
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]models.Session{}}
}

func (m *memStore) UpsertSession(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

type fakeBridge struct {
	profile *UserProfile
	err     error
	calls   []ContractCall
	tx      *TxResult
}

func (f *fakeBridge) Connect(ctx context.Context, req AuthRequest) (*UserProfile, error) {
	return f.profile, f.err
}

func (f *fakeBridge) OpenContractCall(ctx context.Context, call ContractCall) (*TxResult, error) {
	f.calls = append(f.calls, call)
	return f.tx, f.err
}

func TestSessionsConnectDisconnect(t *testing.T) {
	store := newMemStore()
	bridge := &fakeBridge{profile: &UserProfile{StxAddress: StxAddress{Testnet: testnetAddr, Mainnet: mainnetAddr}}}
	s := NewSessions(bridge, store, "testnet", AppDetails{Name: "Stacks DAO", Icon: "/logo.png"})
	ctx := context.Background()

	session, err := s.Connect(ctx)
	require.NoError(t, err)
	assert.False(t, session.Pending)
	assert.Equal(t, testnetAddr, session.Address)
	assert.Equal(t, mainnetAddr, session.MainnetAddress)

	loaded, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, testnetAddr, loaded.Address)

	require.NoError(t, s.Disconnect(ctx, session.ID))
	_, err = s.Load(ctx, session.ID)
	assert.True(t, errors.Is(err, ErrNoSession))
	assert.True(t, errors.Is(s.Disconnect(ctx, session.ID), ErrNoSession))
}

func TestSessionsPendingSignIn(t *testing.T) {
	store := newMemStore()
	s := NewSessions(&fakeBridge{err: ErrPending}, store, "mainnet", AppDetails{})
	ctx := context.Background()

	session, err := s.Connect(ctx)
	require.NoError(t, err)
	assert.True(t, session.Pending)
	assert.Empty(t, session.Address)

	done, err := s.Complete(ctx, session.ID, UserProfile{StxAddress: StxAddress{Testnet: testnetAddr, Mainnet: mainnetAddr}})
	require.NoError(t, err)
	assert.False(t, done.Pending)
	assert.Equal(t, mainnetAddr, done.Address)
}

func TestSessionsProfileWithoutAddress(t *testing.T) {
	store := newMemStore()
	s := NewSessions(&fakeBridge{err: ErrPending}, store, "testnet", AppDetails{})
	ctx := context.Background()

	session, err := s.Connect(ctx)
	require.NoError(t, err)

	_, err = s.Complete(ctx, session.ID, UserProfile{})
	assert.True(t, errors.Is(err, ErrNoAddress))

	loaded, err := s.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Pending)
}

func TestSessionsConnectCancelledDropsSession(t *testing.T) {
	store := newMemStore()
	s := NewSessions(&fakeBridge{err: ErrCancelled}, store, "testnet", AppDetails{})

	_, err := s.Connect(context.Background())
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Empty(t, store.sessions)
}

func TestSelectAddress(t *testing.T) {
	both := UserProfile{StxAddress: StxAddress{Testnet: testnetAddr, Mainnet: mainnetAddr}}
	assert.Equal(t, testnetAddr, SelectAddress(both, "testnet"))
	assert.Equal(t, mainnetAddr, SelectAddress(both, "mainnet"))

	onlyMainnet := UserProfile{StxAddress: StxAddress{Mainnet: mainnetAddr}}
	assert.Equal(t, mainnetAddr, SelectAddress(onlyMainnet, "testnet"))
	assert.Empty(t, SelectAddress(UserProfile{}, "testnet"))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "SP2J6Z...9EJ7", ShortAddress(mainnetAddr))
	assert.Equal(t, "SP1", ShortAddress("SP1"))
}
