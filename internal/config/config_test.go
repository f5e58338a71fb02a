package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_DefaultExternalTransferLimit(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "EXTERNAL_TRANSFER_LIMIT")
	unsetEnvWithCleanup(t, "EXTERNAL_TRANSFER_LIMIT_CENTS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ExternalTransferLimitCents != 500000 {
		t.Fatalf("expected default limit of 500000 cents, got %d", cfg.ExternalTransferLimitCents)
	}
}

func TestLoadConfig_ExternalTransferLimitInWholeUnits(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "EXTERNAL_TRANSFER_LIMIT", "2500.50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ExternalTransferLimitCents != 250050 {
		t.Fatalf("expected limit of 250050 cents, got %d", cfg.ExternalTransferLimitCents)
	}
}

func TestLoadConfig_InvalidLimitFallsBackToDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "EXTERNAL_TRANSFER_LIMIT_CENTS", "-100")
	unsetEnvWithCleanup(t, "EXTERNAL_TRANSFER_LIMIT")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ExternalTransferLimitCents != 500000 {
		t.Fatalf("expected negative limit to be replaced by default, got %d", cfg.ExternalTransferLimitCents)
	}
}

func TestLoadConfig_RedisPrefixDefault(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "REDIS_KEY_PREFIX", "   ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RedisKeyPrefix != "ledger:idempotency" {
		t.Fatalf("expected blank prefix to fall back to default, got %q", cfg.RedisKeyPrefix)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
