package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	configure "github.com/ndau/go-config"
	logger "github.com/ndau/go-logger"
	config "github.com/ndau/stacks-dao-gateway/configuration"
	"github.com/ndau/stacks-dao-gateway/dal"
	"github.com/ndau/stacks-dao-gateway/dao"
	"github.com/ndau/stacks-dao-gateway/eventing"
	"github.com/ndau/stacks-dao-gateway/serving"
	"github.com/ndau/stacks-dao-gateway/stacks"
	"github.com/ndau/stacks-dao-gateway/submit"
	"github.com/ndau/stacks-dao-gateway/wallet"
	"golang.org/x/sync/errgroup"
)

const maxProbeTime = 2 * time.Minute

// main runs the gateway: the HTTP API and the cloudevents receiver share one repo and one node client.
// if we panic here upon upgrade knative will not upgrade the pod and will use that last successful version of the container
func main() {
	// Load logger and configurator
	log, err := logger.New("main", "main")
	if err != nil {
		fmt.Println("failed to create logger ", err)
		return
	}

	log.Infof("Initializing config...")
	cfg, err := configure.New()
	if err != nil {
		log.Error(err)
		return
	}

	log.Infof("Loading config...")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cf, err := config.LoadConfig(ctx, cfg, log)
	if err != nil {
		log.Error(err)
		return
	}

	var repo dal.Repo
	err = backoff.Retry(func() error {
		repo, err = dal.NewDb(cf, log)
		if err != nil {
			log.Errorf("Failed to initialize db client: %v", err)
		}

		return err
	}, backoff.NewConstantBackOff(4*time.Second))

	if err != nil {
		return
	}
	defer repo.Close()

	node, err := stacks.New(nil, stacks.Config{
		Network: cf.Network,
		NodeURL: cf.NodeURL,
		RPS:     cf.NodeRPS,
	}, log)
	if err != nil {
		log.Errorf("Failed to initialize the stacks node client: %v", err)
		return
	}

	// The node is only probed; queries degrade to fallbacks if it goes away later
	probe := backoff.NewExponentialBackOff()
	probe.MaxElapsedTime = maxProbeTime
	err = backoff.Retry(func() error {
		info, err := node.Info(ctx)
		if err != nil {
			log.Errorf("Stacks node not ready: %v", err)
			return err
		}
		log.Infof("Stacks node ready at burn height %d", info.BurnBlockHeight)
		return nil
	}, backoff.WithContext(probe, ctx))
	if err != nil {
		log.Warnf("Starting without a reachable stacks node: %v", err)
	}

	bridge, err := wallet.NewRemote(nil, cf.WalletURL, log)
	if err != nil {
		log.Errorf("Failed to initialize the wallet bridge: %v", err)
		return
	}

	app := wallet.AppDetails{Name: cf.AppName, Icon: cf.AppIcon}
	contract := dao.NewContract(node, cf.ContractAddress, cf.ContractName, log)
	sessions := wallet.NewSessions(bridge, repo, cf.Network, app, log)
	submitter := submit.New(bridge, repo, submit.Target{
		Network:         cf.Network,
		ContractAddress: cf.ContractAddress,
		ContractName:    cf.ContractName,
		App:             app,
	}, log)

	api, err := serving.NewKnClient(cf, contract, sessions, submitter, repo, log)
	if err != nil {
		log.Errorf("Failed to initialize the API: %v", err)
		return
	}

	kn, err := eventing.NewKnClient(cf, contract, submitter, repo, log)
	if err != nil {
		log.Errorf("Failed to initialize knative client: %v", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Run(gctx) })
	g.Go(func() error { return kn.Run(gctx) })

	log.Info("waiting on context Done channel ...")
	if err := g.Wait(); err != nil {
		log.Errorf("Stopped: %v", err)
		return
	}
	log.Info("cancelled context...")
}
