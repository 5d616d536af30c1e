package domain

// Currency is a catalog entry. IAddress is the stable network identity.
type Currency struct {
	SystemName    string `json:"systemName" yaml:"system_name"`
	TradingSymbol string `json:"tradingSymbol" yaml:"trading_symbol"`
	IAddress      string `json:"iAddress" yaml:"i_address"`
	IsConverter   bool   `json:"isConverter" yaml:"is_converter"`
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Decimals      int    `json:"decimals" yaml:"decimals"`
}

// FrequentPair is a preconfigured from/to shortcut, by system name.
type FrequentPair struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Catalog is the static currency configuration injected into the registry.
type Catalog struct {
	Currencies    []Currency     `yaml:"currencies"`
	FrequentPairs []FrequentPair `yaml:"frequent_pairs"`
	// DefaultFrom is the source currency a new session starts with.
	DefaultFrom string `yaml:"default_from"`
}
