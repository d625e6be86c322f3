package models

// Config - service configuration decoded from the env map
type Config struct {
	ConnectionString string  `mapstructure:"dao_connection_string"`
	Network          string  `mapstructure:"stacks_network"`
	NodeURL          string  `mapstructure:"stacks_node_url"`
	ContractAddress  string  `mapstructure:"contract_address"`
	ContractName     string  `mapstructure:"contract_name"`
	WalletURL        string  `mapstructure:"wallet_url"`
	AppName          string  `mapstructure:"app_name"`
	AppIcon          string  `mapstructure:"app_icon"`
	ListenPort       int     `mapstructure:"listen_port"`
	ProposalCount    int     `mapstructure:"proposal_count"`
	NodeRPS          float64 `mapstructure:"node_rps"`
}

// Contract returns the contract identifier, address.name
func (c Config) Contract() string {
	return c.ContractAddress + "." + c.ContractName
}
