package eventing

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/dal"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/pkg/errors"
	uuid "github.com/satori/uuid"
)

// ProposalSource reads proposals off the contract
type ProposalSource interface {
	ListProposals(ctx context.Context, count int) []models.Proposal
	GetProposalStatus(ctx context.Context, id uint64) *models.ProposalStatus
}

// Voter submits a vote
type Voter interface {
	Vote(ctx context.Context, sender string, proposalID uint64, support bool) (*models.Submission, error)
}

// KnClient -
type KnClient struct {
	client cloudevents.Client
	source ProposalSource
	voter  Voter
	repo   dal.Repo
	cfg    *models.Config
	now    func() time.Time

	// Optional: logging
	Log logger.Logger
}

// NewKnClient -
func NewKnClient(cfg *models.Config, source ProposalSource, voter Voter, repo dal.Repo, loggers ...logger.Logger) (knc *KnClient, err error) {
	client, err := cloudevents.NewDefaultClient()
	if err != nil {
		return nil, err
	}

	// Attach an optional logger
	var log logger.Logger
	if len(loggers) > 0 {
		log = loggers[0]
	} else {
		log = &logger.NoopLogger{}
	}

	return &KnClient{
		client: client,
		source: source,
		voter:  voter,
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,

		// Optional: logging
		Log: log,
	}, nil
}

// Run knative function
func (k *KnClient) Run(ctx context.Context) error {
	k.Log.Info("Starting knative run...")
	return k.Listen(ctx)
}

// Listen blocks receiving events until ctx is done
func (k *KnClient) Listen(ctx context.Context) error {
	receive := func(ctx context.Context, event cloudevents.Event) {
		// Let's create traceable context
		evtExt := event.Extensions()
		trackingNumber, ok := evtExt["trackingnumber"].(string)
		if !ok {
			trackingNumber = uuid.NewV4().String()
		}

		thisContext := models.WithTrackingNumber(ctx, trackingNumber)

		k.Log.Infof("%s | Start processing knative event %s of type %s", trackingNumber, event.ID(), event.Type())
		if err := k.ProcessEvent(thisContext, event); err != nil {
			k.Log.Errorf("%s | Process event failed: %v", trackingNumber, err)
		} else {
			k.Log.Infof("%s | Processed event: %s", trackingNumber, event.ID())
		}
	}

	k.Log.Infof("knative is listening on port %d", 8080)

	if err := k.client.StartReceiver(ctx, receive); err != nil {
		k.Log.Errorf("Failed to start a Receiver: %v", err)
		return err
	}
	return nil
}

// ProcessEvent dispatches on the event type
func (k *KnClient) ProcessEvent(ctx context.Context, event cloudevents.Event) error {
	switch event.Type() {
	case models.EventProposalsSync:
		var data models.SyncData
		if err := event.DataAs(&data); err != nil {
			return errors.Wrap(err, "Failed to unmarshal sync data")
		}
		return k.syncProposals(ctx, &data)

	case models.EventVoteSubmit:
		var data models.VoteData
		if err := event.DataAs(&data); err != nil {
			return errors.Wrap(err, "Failed to unmarshal vote data")
		}
		return k.submitVote(ctx, &data)
	}
	return errors.Errorf("unsupported event type %q", event.Type())
}

// syncProposals snapshots proposals 1..Count together with their status
func (k *KnClient) syncProposals(ctx context.Context, data *models.SyncData) error {
	trackingNumber := models.TrackingNumber(ctx)

	count := data.Count
	if count <= 0 {
		count = k.cfg.ProposalCount
	}

	k.Log.Infof("%s | Fetching up to %d proposals from %s", trackingNumber, count, k.cfg.Contract())
	proposals := k.source.ListProposals(ctx, count)
	if len(proposals) == 0 {
		k.Log.Warnf("%s | No proposals found", trackingNumber)
		return nil
	}

	at := k.now().UTC()
	snapshots := make([]models.ProposalSnapshot, 0, len(proposals))
	for _, p := range proposals {
		status := models.StatusNotFound
		if s := k.source.GetProposalStatus(ctx, p.ID); s != nil {
			status = s.Status
		}
		snapshots = append(snapshots, models.NewSnapshot(p, status, at))
	}

	if err := k.repo.UpsertProposals(ctx, snapshots); err != nil {
		k.Log.Errorf("%s | Failed to upsert proposals. Error: %v", trackingNumber, err)
		return err
	}

	k.Log.Infof("%s | Stored %d proposals", trackingNumber, len(snapshots))
	return nil
}

func (k *KnClient) submitVote(ctx context.Context, data *models.VoteData) error {
	if data.Sender == "" {
		return errors.New("vote event carries no sender")
	}

	sub, err := k.voter.Vote(ctx, data.Sender, data.ProposalID, data.Support)
	if err != nil {
		return err
	}

	k.Log.Infof("%s | Vote on proposal %d submitted as %s", models.TrackingNumber(ctx), data.ProposalID, sub.TxID)
	return nil
}
