package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/clarity"
	"github.com/ndau/stacks-dao-gateway/dal"
	"github.com/ndau/stacks-dao-gateway/dao"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/ndau/stacks-dao-gateway/stacks"
	"github.com/ndau/stacks-dao-gateway/submit"
	"github.com/ndau/stacks-dao-gateway/wallet"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type options struct {
	node     string
	network  string
	contract string
	wallet   string
	sender   string
	db       string
	timeout  time.Duration
	verbose  bool
	appName  string
	appIcon  string
	assumeOK bool
}

func newRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:           "daoctl",
		Short:         "Query the DAO contract and submit votes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.node, "node", "", "Stacks node URL (default: public node for the network)")
	flags.StringVar(&o.network, "network", "testnet", "mainnet or testnet")
	flags.StringVar(&o.contract, "contract", "", "DAO contract as address.name")
	flags.StringVar(&o.wallet, "wallet", "http://127.0.0.1:3999", "Wallet bridge URL")
	flags.StringVar(&o.sender, "sender", "", "Address that signs, or that queries are made as")
	flags.StringVar(&o.db, "db", "", "Record submissions into this database (sqlite:<path> or postgres://)")
	flags.DurationVar(&o.timeout, "timeout", 5*time.Minute, "Operation timeout")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Enable logging")
	flags.StringVar(&o.appName, "app-name", "Stacks DAO", "Application name shown by the wallet")
	flags.StringVar(&o.appIcon, "app-icon", "/logo.png", "Application icon shown by the wallet")

	root.AddCommand(
		o.proposalCmd(),
		o.proposalsCmd(),
		o.statusCmd(),
		o.deadlineCmd(),
		o.resultsCmd(),
		o.treasuryCmd(),
		o.memberCmd(),
		o.activeCmd(),
		o.delegationCmd(),
		o.voteCmd(),
		o.batchVoteCmd(),
		o.delegateCmd(),
	)
	return root
}

func (o *options) log() logger.Logger {
	if !o.verbose {
		return &logger.NoopLogger{}
	}
	log, err := logger.New("daoctl", "cli")
	if err != nil {
		return &logger.NoopLogger{}
	}
	return log
}

func (o *options) contractRef() (string, string, error) {
	i := strings.LastIndex(o.contract, ".")
	if i <= 0 || i == len(o.contract)-1 {
		return "", "", errors.New("--contract must be address.name")
	}
	addr, name := o.contract[:i], o.contract[i+1:]
	if _, _, err := clarity.ParseAddress(addr); err != nil {
		return "", "", err
	}
	return addr, name, nil
}

func (o *options) reader() (*dao.Contract, error) {
	addr, name, err := o.contractRef()
	if err != nil {
		return nil, err
	}
	log := o.log()
	node, err := stacks.New(nil, stacks.Config{Network: o.network, NodeURL: o.node}, log)
	if err != nil {
		return nil, err
	}
	return dao.NewContract(node, addr, name, log), nil
}

type discard struct{}

func (discard) InsertSubmission(ctx context.Context, s *models.Submission) error { return nil }

// submitter returns a submitter and the func releasing what it opened
func (o *options) submitter() (*submit.Submitter, func(), error) {
	addr, name, err := o.contractRef()
	if err != nil {
		return nil, nil, err
	}
	if _, _, err := clarity.ParseAddress(o.sender); err != nil {
		return nil, nil, errors.Wrap(err, "--sender")
	}

	log := o.log()
	bridge, err := wallet.NewRemote(nil, o.wallet, log)
	if err != nil {
		return nil, nil, err
	}

	var recorder submit.Recorder = discard{}
	release := func() {}
	if o.db != "" {
		repo, err := dal.NewDb(&models.Config{ConnectionString: o.db}, log)
		if err != nil {
			return nil, nil, err
		}
		recorder, release = repo, repo.Close
	}

	s := submit.New(bridge, recorder, submit.Target{
		Network:         o.network,
		ContractAddress: addr,
		ContractName:    name,
		App:             wallet.AppDetails{Name: o.appName, Icon: o.appIcon},
	}, log)
	return s, release, nil
}

func (o *options) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid proposal id %q", s)
	}
	return id, nil
}

func parseIDs(s string) ([]uint64, error) {
	var ids []uint64
	for _, part := range strings.Split(s, ",") {
		id, err := parseID(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseSupport(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "for":
		return true, nil
	case "no", "n", "false", "against":
		return false, nil
	}
	return false, errors.Errorf("vote must be yes or no, got %q", s)
}

func parseVotes(s string) ([]bool, error) {
	var votes []bool
	for _, part := range strings.Split(s, ",") {
		v, err := parseSupport(part)
		if err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, nil
}

func parseHex(name, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errors.Errorf("--%s is not hex", name)
	}
	return b, nil
}

// byIDCmd builds a query command taking a proposal id; a nil result is reported as an error
func (o *options) byIDCmd(use, short string, query func(ctx context.Context, c *dao.Contract, id uint64) interface{}) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <proposal-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := o.reader()
			if err != nil {
				return err
			}
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			res := query(ctx, c, id)
			if res == nil {
				return errors.Errorf("%s: nothing found for proposal %d", use, id)
			}
			return printJSON(cmd, res)
		},
	}
}

func (o *options) proposalCmd() *cobra.Command {
	return o.byIDCmd("proposal", "Show a proposal card", func(ctx context.Context, c *dao.Contract, id uint64) interface{} {
		if card := c.Card(ctx, id, o.sender); card != nil {
			return card
		}
		return nil
	})
}

func (o *options) statusCmd() *cobra.Command {
	return o.byIDCmd("status", "Show the status of a proposal", func(ctx context.Context, c *dao.Contract, id uint64) interface{} {
		if s := c.GetProposalStatus(ctx, id); s != nil {
			return s
		}
		return nil
	})
}

func (o *options) deadlineCmd() *cobra.Command {
	return o.byIDCmd("deadline", "Show the voting deadline of a proposal", func(ctx context.Context, c *dao.Contract, id uint64) interface{} {
		if d := c.GetVotingDeadlineInfo(ctx, id); d != nil {
			return d
		}
		return nil
	})
}

func (o *options) resultsCmd() *cobra.Command {
	return o.byIDCmd("results", "Show the tally of a proposal", func(ctx context.Context, c *dao.Contract, id uint64) interface{} {
		r := c.GetProposalResults(ctx, id)
		if r == nil {
			return nil
		}
		return struct {
			*models.ProposalResults
			YesPercent float64 `json:"yesPercent"`
			NoPercent  float64 `json:"noPercent"`
		}{r, r.YesPercent(), r.NoPercent()}
	})
}

func (o *options) proposalsCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List proposals 1..count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.reader()
			if err != nil {
				return err
			}
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			proposals := c.ListProposals(ctx, count)
			if proposals == nil {
				proposals = []models.Proposal{}
			}
			return printJSON(cmd, proposals)
		},
	}
	cmd.Flags().IntVar(&count, "count", 10, "Number of proposal ids to scan")
	return cmd
}

func (o *options) treasuryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "treasury",
		Short: "Show the treasury balance in uSTX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.reader()
			if err != nil {
				return err
			}
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			return printJSON(cmd, map[string]uint64{"balance": c.GetTreasuryBalance(ctx, o.sender)})
		},
	}
}

func (o *options) memberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "member <address>",
		Short: "Show membership, passkey and balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.reader()
			if err != nil {
				return err
			}
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			return printJSON(cmd, c.UserData(ctx, args[0]))
		},
	}
}

func (o *options) activeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show get-active-proposals-info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.reader()
			if err != nil {
				return err
			}
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			info := c.GetActiveProposalsInfo(ctx)
			if info == nil {
				return errors.New("active proposals info not available")
			}
			return printJSON(cmd, info)
		},
	}
}

func (o *options) delegationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delegation <delegator> <proposal-id>",
		Short: "Show who a member delegated a vote to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			c, err := o.reader()
			if err != nil {
				return err
			}
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			d := c.GetDelegation(ctx, args[0], id)
			if d == nil {
				return errors.Errorf("no delegation for %s on proposal %d", args[0], id)
			}
			return printJSON(cmd, d)
		},
	}
}

func (o *options) voteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote <proposal-id> <yes|no>",
		Short: "Vote on a proposal through the wallet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			support, err := parseSupport(args[1])
			if err != nil {
				return err
			}
			s, release, err := o.submitter()
			if err != nil {
				return err
			}
			defer release()
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			ballot := s.Prepare(o.sender, id, support)
			if !o.assumeOK && !confirm(cmd, ballot.Prompt) {
				_ = s.Cancel(ballot.ID, o.sender)
				fmt.Fprintln(cmd.OutOrStdout(), "Vote not sent")
				return nil
			}

			sub, err := s.Confirm(ctx, ballot.ID, o.sender)
			if err != nil {
				return err
			}
			return printJSON(cmd, sub)
		},
	}
	cmd.Flags().BoolVarP(&o.assumeOK, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt+" [y/N] ")
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	ok, err := parseSupport(line)
	return err == nil && ok
}

func (o *options) batchVoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-vote <ids> <votes>",
		Short: "Vote on several proposals in one transaction, e.g. batch-vote 1,2,3 yes,no,yes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[0])
			if err != nil {
				return err
			}
			votes, err := parseVotes(args[1])
			if err != nil {
				return err
			}
			s, release, err := o.submitter()
			if err != nil {
				return err
			}
			defer release()
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			sub, err := s.BatchVote(ctx, o.sender, ids, votes)
			if err != nil {
				return err
			}
			return printJSON(cmd, sub)
		},
	}
}

func (o *options) delegateCmd() *cobra.Command {
	var publicKey, messageHash, signature string
	cmd := &cobra.Command{
		Use:   "delegate <proposal-id> <delegate-to>",
		Short: "Delegate a vote with a passkey signature",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d := submit.Delegation{ProposalID: id, DelegateTo: args[1]}
			if d.PublicKey, err = parseHex("public-key", publicKey); err != nil {
				return err
			}
			if d.MessageHash, err = parseHex("message-hash", messageHash); err != nil {
				return err
			}
			if d.Signature, err = parseHex("signature", signature); err != nil {
				return err
			}

			s, release, err := o.submitter()
			if err != nil {
				return err
			}
			defer release()
			ctx, cancel := o.withTimeout(cmd)
			defer cancel()

			sub, err := s.DelegateVote(ctx, o.sender, d)
			if err != nil {
				return err
			}
			return printJSON(cmd, sub)
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "Passkey public key, hex")
	cmd.Flags().StringVar(&messageHash, "message-hash", "", "Signed message hash, hex")
	cmd.Flags().StringVar(&signature, "signature", "", "Passkey signature, hex")
	return cmd
}
