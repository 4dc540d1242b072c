package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Security.MaxInputLength != 2000 {
		t.Errorf("MaxInputLength = %d, want 2000", cfg.Security.MaxInputLength)
	}
	if cfg.RateLimit.PerIPPerMinute != 10 {
		t.Errorf("PerIPPerMinute = %d, want 10", cfg.RateLimit.PerIPPerMinute)
	}
}

func TestFloorsCannotBeUndercut(t *testing.T) {
	os.Setenv("SENTRYCHAT_SECURITY_MAX_INPUT_LENGTH", "10")
	os.Setenv("SENTRYCHAT_RATE_LIMIT_PER_IP_PER_MINUTE", "0")
	os.Setenv("SENTRYCHAT_SECURITY_MAX_REQUEST_BYTES", "1")
	defer os.Unsetenv("SENTRYCHAT_SECURITY_MAX_INPUT_LENGTH")
	defer os.Unsetenv("SENTRYCHAT_RATE_LIMIT_PER_IP_PER_MINUTE")
	defer os.Unsetenv("SENTRYCHAT_SECURITY_MAX_REQUEST_BYTES")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Security.MaxInputLength != floorMaxInputLength {
		t.Errorf("MaxInputLength = %d, want floor %d", cfg.Security.MaxInputLength, floorMaxInputLength)
	}
	if cfg.RateLimit.PerIPPerMinute != floorPerIPPerMinute {
		t.Errorf("PerIPPerMinute = %d, want floor %d", cfg.RateLimit.PerIPPerMinute, floorPerIPPerMinute)
	}
	if cfg.Security.MaxRequestBytes != floorMaxRequestBytes {
		t.Errorf("MaxRequestBytes = %d, want floor %d", cfg.Security.MaxRequestBytes, floorMaxRequestBytes)
	}
}

func TestFloorsAllowRaisingCeiling(t *testing.T) {
	os.Setenv("SENTRYCHAT_SECURITY_MAX_INPUT_LENGTH", "5000")
	defer os.Unsetenv("SENTRYCHAT_SECURITY_MAX_INPUT_LENGTH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Security.MaxInputLength != 5000 {
		t.Errorf("MaxInputLength = %d, want 5000", cfg.Security.MaxInputLength)
	}
}

func TestConversationIdleTTLFloor(t *testing.T) {
	os.Setenv("SENTRYCHAT_CONVERSATION_IDLE_TTL", "1s")
	defer os.Unsetenv("SENTRYCHAT_CONVERSATION_IDLE_TTL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Conversation.IdleTTL != floorIdleTTL {
		t.Errorf("IdleTTL = %v, want floor %v", cfg.Conversation.IdleTTL, floorIdleTTL)
	}
	_ = time.Second
}
