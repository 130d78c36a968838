package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/walletexport/service/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read when present; a missing default file is not an error.
const DefaultEnvFile = ".env"

// Config holds all application configuration loaded from the environment and
// an optional dotenv file. Required fields depend on the export scope and are
// validated at startup to ensure fail-fast behavior.
type Config struct {
	Scope ledger.Scope

	// Wallets
	EVMWallet    string
	SolanaWallet string

	// Block explorer
	EtherscanAPIKey    string
	EtherscanAPIURL    string
	EtherscanRateLimit float64 // requests per second, 0 disables limiting
	EVMChains          []ledger.Chain

	// Pricing
	CoinGeckoAPIKey string // optional
	CoinGeckoAPIURL string

	// Solana
	SolanaRPCURL         string
	SolanaSignatureLimit int

	// Runtime
	FetchConcurrency int
	HTTPTimeout      time.Duration
	LogLevel         string

	// Optional sinks
	NATSURL     string
	MetricsFile string
}

// Load reads configuration for scope and validates all required fields.
// envFile names a dotenv file; the empty string selects DefaultEnvFile, which
// may be absent. Returns an error listing every missing or invalid value.
func Load(scope ledger.Scope, envFile string) (*Config, error) {
	v, err := newViper(envFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Scope: scope}
	var errs []error

	cfg.EVMWallet = firstOf(v, "wallet_address", "eth_address")
	cfg.SolanaWallet = firstOf(v, "solana_address", "sol_address")

	cfg.EtherscanAPIKey = v.GetString("etherscan_api_key")
	cfg.EtherscanAPIURL = v.GetString("etherscan_api_url")
	cfg.CoinGeckoAPIKey = v.GetString("coingecko_api_key")
	cfg.CoinGeckoAPIURL = v.GetString("coingecko_api_url")
	cfg.SolanaRPCURL = v.GetString("solana_rpc_url")
	cfg.LogLevel = v.GetString("log_level")
	cfg.NATSURL = v.GetString("nats_url")
	cfg.MetricsFile = v.GetString("metrics_file")

	if cfg.EVMChains, err = parseChains(v, "evm_chains"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SolanaSignatureLimit, err = parseInt(v, "solana_signature_limit"); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchConcurrency, err = parseInt(v, "fetch_concurrency"); err != nil {
		errs = append(errs, err)
	}
	if cfg.EtherscanRateLimit, err = parseFloat(v, "etherscan_rate_limit"); err != nil {
		errs = append(errs, err)
	}
	if cfg.HTTPTimeout, err = parseDuration(v, "http_timeout"); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	errs = append(errs, cfg.problems()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad(scope ledger.Scope, envFile string) *Config {
	cfg, err := Load(scope, envFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid for its scope.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	if errs := c.problems(); len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) problems() []error {
	var errs []error

	switch c.Scope {
	case ledger.ScopeAll, ledger.ScopeEVM, ledger.ScopeSolana:
	default:
		errs = append(errs, fmt.Errorf("unsupported scope %q", c.Scope))
	}

	if c.Scope.IncludesEVM() {
		switch {
		case c.EVMWallet == "":
			errs = append(errs, fmt.Errorf("WALLET_ADDRESS is required"))
		case !common.IsHexAddress(c.EVMWallet):
			errs = append(errs, fmt.Errorf("WALLET_ADDRESS %q is not a hex address", c.EVMWallet))
		}
		if c.EtherscanAPIKey == "" {
			errs = append(errs, fmt.Errorf("ETHERSCAN_API_KEY is required"))
		}
		if len(c.EVMChains) == 0 {
			errs = append(errs, fmt.Errorf("EVM_CHAINS must name at least one chain"))
		}
	}

	if c.Scope.IncludesSolana() {
		switch {
		case c.SolanaWallet == "":
			errs = append(errs, fmt.Errorf("SOLANA_ADDRESS is required"))
		default:
			if _, err := solana.PublicKeyFromBase58(c.SolanaWallet); err != nil {
				errs = append(errs, fmt.Errorf("SOLANA_ADDRESS %q is not a valid public key: %w", c.SolanaWallet, err))
			}
		}
		if c.SolanaSignatureLimit < 1 || c.SolanaSignatureLimit > 1000 {
			errs = append(errs, fmt.Errorf("SOLANA_SIGNATURE_LIMIT must be between 1 and 1000"))
		}
	}

	if c.FetchConcurrency < 1 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be at least 1"))
	}
	if c.EtherscanRateLimit < 0 {
		errs = append(errs, fmt.Errorf("ETHERSCAN_RATE_LIMIT cannot be negative"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive"))
	}
	return errs
}

// newViper builds a viper instance reading the environment, the dotenv file
// and the defaults, in that order of precedence.
func newViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("etherscan_api_url", "https://api.etherscan.io/v2/api")
	v.SetDefault("etherscan_rate_limit", "4")
	v.SetDefault("evm_chains", "ethereum,arbitrum,polygon,bsc,avalanche")
	v.SetDefault("coingecko_api_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("solana_rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana_signature_limit", "100")
	v.SetDefault("fetch_concurrency", "1")
	v.SetDefault("http_timeout", "30s")
	v.SetDefault("log_level", "info")

	explicit := envFile != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("env file %s: %w", envFile, err)
		}
		return v, nil
	}

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}
	return v, nil
}

// firstOf returns the first non-empty value among keys, which lets older
// variable names keep working.
func firstOf(v *viper.Viper, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(v.GetString(key)); value != "" {
			return value
		}
	}
	return ""
}

func envName(key string) string {
	return strings.ToUpper(key)
}

// parseDuration parses a duration setting.
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := v.GetString(key)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", envName(key), value, err)
	}
	return duration, nil
}

// parseInt parses an integer setting.
func parseInt(v *viper.Viper, key string) (int, error) {
	value := v.GetString(key)
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", envName(key), value, err)
	}
	return result, nil
}

func parseFloat(v *viper.Viper, key string) (float64, error) {
	value := v.GetString(key)
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", envName(key), value, err)
	}
	return result, nil
}

// parseChains parses a comma-separated list of EVM chain names.
func parseChains(v *viper.Viper, key string) ([]ledger.Chain, error) {
	var chains []ledger.Chain
	seen := make(map[ledger.Chain]bool)
	for _, name := range strings.Split(v.GetString(key), ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		c, err := ledger.ParseChain(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envName(key), err)
		}
		if !c.IsEVM() {
			return nil, fmt.Errorf("%s: %s is not an EVM chain", envName(key), c)
		}
		if !seen[c] {
			seen[c] = true
			chains = append(chains, c)
		}
	}
	return chains, nil
}
