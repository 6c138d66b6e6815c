package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	GrpcHost   string            `yaml:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port"`
	Storage    MStorageConfig    `yaml:"storage"`
	Network    MNetworkConfig    `yaml:"network"`
	DataSource MDataSourceConfig `yaml:"data_source"`
	Quotes     MQuotesConfig     `yaml:"quotes"`
	Broadcast  MBroadcastConfig  `yaml:"broadcast"`
	Market     MMarketConfig     `yaml:"market"`
	Accounts   MAccountsConfig   `yaml:"accounts"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	Schema             string `yaml:"schema"`
}

type MNetworkConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Proxies            []string `yaml:"proxies"`
	RequestTimeout     int      `yaml:"timeout"`
	MaxRetries         int      `yaml:"retries"`
	ConcurrentRequests int      `yaml:"concurrent_requests"`
	UserAgent          string   `yaml:"user_agent"`
}

type MDataSourceConfig struct {
	Sources []MSourceConfig `yaml:"sources"`
}

// MSourceConfig describes one upstream quote provider. Sources are tried in order.
type MSourceConfig struct {
	Name         string `yaml:"name"`
	BaseURL      string `yaml:"base_url"`
	SymbolSuffix string `yaml:"symbol_suffix"` // e.g. ".NS" for yahoo
}

type MQuotesConfig struct {
	CacheTTLSeconds     int `yaml:"cache_ttl_seconds"`
	CacheSize           int `yaml:"cache_size"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

type MBroadcastConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	RetryBackoffMs  int `yaml:"retry_backoff_ms"`
	SendBuffer      int `yaml:"send_buffer"`
}

type MMarketConfig struct {
	MIC          string `yaml:"mic"`
	Timezone     string `yaml:"timezone"`
	OpenTime     string `yaml:"open_time"`  // fallback session, "HH:MM"
	CloseTime    string `yaml:"close_time"` // fallback session, "HH:MM"
	EnforceHours bool   `yaml:"enforce_hours"`
}

type MAccountsConfig struct {
	DefaultBalance string `yaml:"default_balance"`
}
