// Package config loads CLI settings: defaults, then the yaml config file,
// then environment variables, then flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	JSON       bool
	Plain      bool
	Caller     string
	LogLevel   string
	LogFormat  string
}

// TokenGrant seeds a balance in the genesis fixture. Account and Token are
// either 0x addresses or fixture labels resolved to derived addresses.
type TokenGrant struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// PairSeed seeds a constant-product pool.
type PairSeed struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	ReserveA string `yaml:"reserve_a"`
	ReserveB string `yaml:"reserve_b"`
}

// TierPoolSeed seeds a fee-tier pool.
type TierPoolSeed struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	Fee      uint32 `yaml:"fee"`
	ReserveA string `yaml:"reserve_a"`
	ReserveB string `yaml:"reserve_b"`
}

// Genesis describes the deterministic environment the CLI builds before
// running a command. Empty sections fall back to the built-in fixture.
type Genesis struct {
	GasPrice         string         `yaml:"gas_price"`
	Tokens           []string       `yaml:"tokens"`
	Balances         []TokenGrant   `yaml:"balances"`
	LenderLiquidity  []TokenGrant   `yaml:"lender_liquidity"`
	Pairs            []PairSeed     `yaml:"pairs"`
	TierPools        []TierPoolSeed `yaml:"tier_pools"`
	LendingLiquidity []TokenGrant   `yaml:"lending_liquidity"`
}

type Settings struct {
	OutputMode     string
	LogLevel       string
	LogFormat      string
	Admin          string
	Caller         string
	PremiumRateBPS uint32
	MaxSlippageBPS uint32
	MinProfitBPS   uint32
	MaxGasPrice    string
	StorePath      string
	StoreLockPath  string
	Genesis        Genesis
}

type fileConfig struct {
	Output string `yaml:"output"`
	Log    struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Admin  string `yaml:"admin"`
	Caller string `yaml:"caller"`
	Lender struct {
		PremiumRateBPS *uint32 `yaml:"premium_rate_bps"`
	} `yaml:"lender"`
	Safety struct {
		MaxSlippageBPS *uint32 `yaml:"max_slippage_bps"`
		MinProfitBPS   *uint32 `yaml:"min_profit_bps"`
		MaxGasPrice    string  `yaml:"max_gas_price"`
	} `yaml:"safety"`
	Store struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	Genesis Genesis `yaml:"genesis"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Caller == "" {
		settings.Caller = settings.Admin
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:     "json",
		LogLevel:       "info",
		LogFormat:      "console",
		Admin:          "admin",
		PremiumRateBPS: 9,
		MaxSlippageBPS: 100,
		MaxGasPrice:    "0",
		StorePath:      storePath,
		StoreLockPath:  lockPath,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "flashexec", "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "flashexec")
	return filepath.Join(dir, "flashexec.db"), filepath.Join(dir, "flashexec.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = strings.ToLower(cfg.Log.Level)
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = strings.ToLower(cfg.Log.Format)
	}
	if cfg.Admin != "" {
		settings.Admin = cfg.Admin
	}
	if cfg.Caller != "" {
		settings.Caller = cfg.Caller
	}
	if cfg.Lender.PremiumRateBPS != nil {
		settings.PremiumRateBPS = *cfg.Lender.PremiumRateBPS
	}
	if cfg.Safety.MaxSlippageBPS != nil {
		settings.MaxSlippageBPS = *cfg.Safety.MaxSlippageBPS
	}
	if cfg.Safety.MinProfitBPS != nil {
		settings.MinProfitBPS = *cfg.Safety.MinProfitBPS
	}
	if cfg.Safety.MaxGasPrice != "" {
		settings.MaxGasPrice = cfg.Safety.MaxGasPrice
	}
	if cfg.Store.Path != "" {
		settings.StorePath = cfg.Store.Path
	}
	if cfg.Store.LockPath != "" {
		settings.StoreLockPath = cfg.Store.LockPath
	}
	mergeGenesis(&settings.Genesis, cfg.Genesis)
	return nil
}

func mergeGenesis(dst *Genesis, src Genesis) {
	if src.GasPrice != "" {
		dst.GasPrice = src.GasPrice
	}
	if len(src.Tokens) > 0 {
		dst.Tokens = src.Tokens
	}
	if len(src.Balances) > 0 {
		dst.Balances = src.Balances
	}
	if len(src.LenderLiquidity) > 0 {
		dst.LenderLiquidity = src.LenderLiquidity
	}
	if len(src.Pairs) > 0 {
		dst.Pairs = src.Pairs
	}
	if len(src.TierPools) > 0 {
		dst.TierPools = src.TierPools
	}
	if len(src.LendingLiquidity) > 0 {
		dst.LendingLiquidity = src.LendingLiquidity
	}
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("FLASHEXEC_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("FLASHEXEC_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("FLASHEXEC_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv("FLASHEXEC_ADMIN"); v != "" {
		settings.Admin = v
	}
	if v := os.Getenv("FLASHEXEC_CALLER"); v != "" {
		settings.Caller = v
	}
	if v := os.Getenv("FLASHEXEC_PREMIUM_RATE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			settings.PremiumRateBPS = uint32(n)
		}
	}
	if v := os.Getenv("FLASHEXEC_STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv("FLASHEXEC_STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Caller) != "" {
		settings.Caller = flags.Caller
	}
	if strings.TrimSpace(flags.LogLevel) != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if strings.TrimSpace(flags.LogFormat) != "" {
		settings.LogFormat = strings.ToLower(flags.LogFormat)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	if settings.LogFormat != "console" && settings.LogFormat != "json" {
		return fmt.Errorf("log format must be console or json")
	}
	return nil
}
