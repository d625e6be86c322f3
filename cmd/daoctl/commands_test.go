package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"

	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/ndau/stacks-dao-gateway/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contractAddr = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	senderAddr   = "ST2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQYAC0RQ"
)

// fakeNode answers call-read requests by function name
func fakeNode(t *testing.T, results map[string]clarity.Value) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := results[path.Base(r.URL.Path)]
		if !ok {
			v = clarity.None()
		}
		h, err := clarity.EncodeHex(v)
		require.NoError(t, err)
		json.NewEncoder(w).Encode(map[string]interface{}{"okay": true, "result": h})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTreasury(t *testing.T) {
	node := fakeNode(t, map[string]clarity.Value{
		"get-treasury-balance": clarity.Ok(clarity.UInt(5000)),
	})

	out, err := run(t, "", "treasury", "--node", node.URL, "--contract", contractAddr+".Stacks-Money")
	require.NoError(t, err)

	var got map[string]uint64
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, uint64(5000), got["balance"])
}

func TestResults(t *testing.T) {
	node := fakeNode(t, map[string]clarity.Value{
		"get-proposal-results": clarity.Some(clarity.TupleCV{
			"yes-votes":   clarity.UInt(3),
			"no-votes":    clarity.UInt(1),
			"total-votes": clarity.UInt(4),
			"winning":     clarity.Bool(true),
		}),
	})

	out, err := run(t, "", "results", "7", "--node", node.URL, "--contract", contractAddr+".Stacks-Money")
	require.NoError(t, err)
	assert.Contains(t, out, `"yesPercent": 75`)
	assert.Contains(t, out, `"noPercent": 25`)
}

func TestMissingProposalIsAnError(t *testing.T) {
	node := fakeNode(t, nil)
	_, err := run(t, "", "proposal", "3", "--node", node.URL, "--contract", contractAddr+".Stacks-Money")
	assert.Error(t, err)
}

func TestBadContractFlag(t *testing.T) {
	_, err := run(t, "", "treasury", "--contract", "not-a-contract")
	assert.Error(t, err)

	_, err = run(t, "", "status", "x", "--contract", contractAddr+".Stacks-Money")
	assert.Error(t, err)
}

func fakeWallet(t *testing.T, calls *[]wallet.ContractCall, reply string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call wallet.ContractCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		*calls = append(*calls, call)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVoteConfirmed(t *testing.T) {
	var calls []wallet.ContractCall
	w := fakeWallet(t, &calls, `{"txId":"0xabc"}`)

	out, err := run(t, "y\n", "vote", "4", "yes",
		"--wallet", w.URL, "--sender", senderAddr, "--contract", contractAddr+".Stacks-Money")
	require.NoError(t, err)
	assert.Contains(t, out, "Confirm your YES vote? [y/N]")
	assert.Contains(t, out, "0xabc")

	require.Len(t, calls, 1)
	assert.Equal(t, "vote", calls[0].FunctionName)
	assert.Equal(t, "Stacks-Money", calls[0].ContractName)
	assert.Equal(t, senderAddr, calls[0].Sender)
}

func TestVoteDeclined(t *testing.T) {
	var calls []wallet.ContractCall
	w := fakeWallet(t, &calls, `{"txId":"0xabc"}`)

	out, err := run(t, "n\n", "vote", "4", "no",
		"--wallet", w.URL, "--sender", senderAddr, "--contract", contractAddr+".Stacks-Money")
	require.NoError(t, err)
	assert.Contains(t, out, "Vote not sent")
	assert.Empty(t, calls)
}

func TestVoteCancelledInWallet(t *testing.T) {
	var calls []wallet.ContractCall
	w := fakeWallet(t, &calls, `{"cancelled":true}`)

	_, err := run(t, "", "vote", "4", "no", "--yes",
		"--wallet", w.URL, "--sender", senderAddr, "--contract", contractAddr+".Stacks-Money")
	require.Error(t, err)
	assert.Equal(t, "Transaction was cancelled", err.Error())
}

func TestBatchVote(t *testing.T) {
	var calls []wallet.ContractCall
	w := fakeWallet(t, &calls, `{"txId":"0xdef"}`)

	_, err := run(t, "", "batch-vote", "1,2", "yes,no",
		"--wallet", w.URL, "--sender", senderAddr, "--contract", contractAddr+".Stacks-Money")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "batch-vote", calls[0].FunctionName)

	_, err = run(t, "", "batch-vote", "1,2", "yes",
		"--wallet", w.URL, "--sender", senderAddr, "--contract", contractAddr+".Stacks-Money")
	assert.Error(t, err)
	assert.Len(t, calls, 1)
}

func TestParsers(t *testing.T) {
	ids, err := parseIDs("1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	_, err = parseIDs("1,,2")
	assert.Error(t, err)

	votes, err := parseVotes("yes,NO,for,against")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false}, votes)

	_, err = parseSupport("maybe")
	assert.Error(t, err)

	b, err := parseHex("signature", "0xbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbe, 0xef}, b)
}
