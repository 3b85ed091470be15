package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmp)

	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(tmp, "missing.yaml")})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "json" || settings.LogLevel != "info" || settings.LogFormat != "console" {
		t.Fatalf("unexpected defaults: %+v", settings)
	}
	if settings.Admin != "admin" || settings.Caller != "admin" {
		t.Fatalf("caller must default to the admin: %+v", settings)
	}
	if settings.PremiumRateBPS != 9 || settings.MaxSlippageBPS != 100 || settings.MaxGasPrice != "0" {
		t.Fatalf("unexpected threshold defaults: %+v", settings)
	}
	if settings.StorePath != filepath.Join(tmp, "flashexec", "flashexec.db") {
		t.Fatalf("unexpected store path: %s", settings.StorePath)
	}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	body := "output: plain\ncaller: filecaller\nlender:\n  premium_rate_bps: 25\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FLASHEXEC_OUTPUT", "json")
	t.Setenv("FLASHEXEC_PREMIUM_RATE_BPS", "30")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Plain: true, Caller: "flagcaller"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win over env and file, got output=%s", settings.OutputMode)
	}
	if settings.Caller != "flagcaller" {
		t.Fatalf("expected caller from flags, got %s", settings.Caller)
	}
	if settings.PremiumRateBPS != 30 {
		t.Fatalf("expected env to win over file, got %d", settings.PremiumRateBPS)
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	body := `admin: "0x00000000000000000000000000000000000000aa"
safety:
  max_slippage_bps: 200
  min_profit_bps: 10
  max_gas_price: "75"
genesis:
  gas_price: "45"
  tokens: [weth, usdc]
  pairs:
    - token_a: weth
      token_b: usdc
      reserve_a: "1000"
      reserve_b: "2000"
`
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	settings, err := Load(GlobalFlags{ConfigPath: configPath})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Admin != "0x00000000000000000000000000000000000000aa" {
		t.Fatalf("admin not applied: %s", settings.Admin)
	}
	if settings.MaxSlippageBPS != 200 || settings.MinProfitBPS != 10 || settings.MaxGasPrice != "75" {
		t.Fatalf("safety section not applied: %+v", settings)
	}
	if settings.Genesis.GasPrice != "45" || len(settings.Genesis.Tokens) != 2 {
		t.Fatalf("genesis not applied: %+v", settings.Genesis)
	}
	if len(settings.Genesis.Pairs) != 1 || settings.Genesis.Pairs[0].ReserveB != "2000" {
		t.Fatalf("pair seed not applied: %+v", settings.Genesis.Pairs)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	if _, err := Load(GlobalFlags{JSON: true, Plain: true}); err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadRejectsBadOutputAndLogFormat(t *testing.T) {
	tmp := t.TempDir()
	configPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(configPath, []byte("output: xml\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(GlobalFlags{ConfigPath: configPath}); err == nil {
		t.Fatal("expected error for unknown output mode")
	}

	if _, err := Load(GlobalFlags{ConfigPath: filepath.Join(tmp, "none.yaml"), LogFormat: "xml"}); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}
