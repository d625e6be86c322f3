package configuration

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	logger "github.com/ndau/go-logger"
	"github.com/ndau/stacks-dao-gateway/models"
	"github.com/pkg/errors"
)

const (
	dbURL           = "DAO_CONNECTION_STRING"
	contractAddress = "CONTRACT_ADDRESS"

	defaultNetwork       = "testnet"
	defaultContractName  = "Stacks-Money"
	defaultAppName       = "Stacks DAO"
	defaultAppIcon       = "/logo.png"
	defaultWalletURL     = "http://127.0.0.1:3999"
	defaultListenPort    = 8081
	defaultProposalCount = 10
	defaultNodeRPS       = 5
)

// Getter is the part of go-config the loader needs
type Getter interface {
	GetStringMap(key string) map[string]interface{}
}

// LoadConfig ...
func LoadConfig(ctx context.Context, cfg Getter, log logger.Logger) (*models.Config, error) {
	log.Info("Get config from local file")
	envCfg := cfg.GetStringMap("env")

	ret, err := Decode(envCfg)
	if err != nil {
		return nil, err
	}

	if err := loadEnvConfig(envCfg, ret); err != nil {
		return nil, err
	}

	log.Infof("Contract %s on %s", ret.Contract(), ret.Network)
	return ret, nil
}

// Decode maps an env map onto the config and fills the defaults
func Decode(env map[string]interface{}) (*models.Config, error) {
	var ret models.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &ret,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed creating config decoder")
	}
	if err := decoder.Decode(env); err != nil {
		return nil, errors.Wrap(err, "Failed decoding env config")
	}

	applyDefaults(&ret)

	switch ret.Network {
	case "mainnet", "testnet":
	default:
		return nil, fmt.Errorf("unknown network '%s'", ret.Network)
	}
	return &ret, nil
}

func applyDefaults(cfg *models.Config) {
	cfg.Network = strings.ToLower(cfg.Network)
	if cfg.Network == "" {
		cfg.Network = defaultNetwork
	}
	if cfg.ContractName == "" {
		cfg.ContractName = defaultContractName
	}
	if cfg.AppName == "" {
		cfg.AppName = defaultAppName
	}
	if cfg.AppIcon == "" {
		cfg.AppIcon = defaultAppIcon
	}
	if cfg.WalletURL == "" {
		cfg.WalletURL = defaultWalletURL
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = defaultListenPort
	}
	if cfg.ProposalCount <= 0 {
		cfg.ProposalCount = defaultProposalCount
	}
	if cfg.NodeRPS <= 0 {
		cfg.NodeRPS = defaultNodeRPS
	}
}

func loadEnvConfig(dm map[string]interface{}, cfg *models.Config) error {
	//DB access
	db, err := requiredString(dm, dbURL)
	if err != nil {
		return err
	}
	cfg.ConnectionString = db

	addr, err := requiredString(dm, contractAddress)
	if err != nil {
		return err
	}
	cfg.ContractAddress = addr

	return nil
}

func requiredString(dm map[string]interface{}, key string) (string, error) {
	val, ok := dm[key]
	if !ok {
		val, ok = dm[strings.ToLower(key)]
		if !ok {
			return "", fmt.Errorf("no field '%s' in the secret", key)
		}
	}

	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("field '%s' in the secret is not a string but a '%T'", key, val)
	}
	if s == "" {
		return "", fmt.Errorf("field '%s' in the secret is empty", key)
	}
	return s, nil
}
