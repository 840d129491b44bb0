package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := baseTestConfig()

	os.Setenv("ZL_SERVER_PORT", "9999")
	os.Setenv("ZL_SERVER_USE_CPU_AFFINITY", "true")
	os.Setenv("ZL_SERVER_CONFIDENCE_THRESHOLD", "0.7")
	os.Setenv("ZL_SERVER_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("ZL_SERVER_PORT")
		os.Unsetenv("ZL_SERVER_USE_CPU_AFFINITY")
		os.Unsetenv("ZL_SERVER_CONFIDENCE_THRESHOLD")
		os.Unsetenv("ZL_SERVER_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.port != 9999 {
		t.Fatalf("expected port override, got %d", base.port)
	}
	if !base.useCPUAffinity {
		t.Fatalf("expected useCPUAffinity true")
	}
	if base.confidenceThreshold != 0.7 {
		t.Fatalf("expected confidenceThreshold 0.7 got %v", base.confidenceThreshold)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{port: 7788}
	os.Setenv("ZL_SERVER_PORT", "1234")
	t.Cleanup(func() { os.Unsetenv("ZL_SERVER_PORT") })
	if err := applyEnvOverrides(base, map[string]struct{}{"port": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.port != 7788 {
		t.Fatalf("expected port unchanged 7788 got %d", base.port)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{maxQueueSize: 8}
	os.Setenv("ZL_SERVER_MAX_QUEUE_SIZE", "notint")
	t.Cleanup(func() { os.Unsetenv("ZL_SERVER_MAX_QUEUE_SIZE") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
