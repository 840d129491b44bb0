package main

import "testing"

func baseTestConfig() *appConfig {
	return &appConfig{
		serverIP:                    "127.0.0.1",
		serverPort:                  7788,
		targetFPS:                   30,
		screenWidth:                 1920,
		screenHeight:                1080,
		compressionQuality:          75,
		compressionKeyframeInterval: 30,
		predictionMaxPredictionMS:   200,
		logFormat:                   "text",
		logLevel:                    "info",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseTestConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"emptyServerIP", func(c *appConfig) { c.serverIP = "" }},
		{"badPort", func(c *appConfig) { c.serverPort = 0 }},
		{"portTooLarge", func(c *appConfig) { c.serverPort = 70000 }},
		{"badTargetFPS", func(c *appConfig) { c.targetFPS = 0 }},
		{"badScreenWidth", func(c *appConfig) { c.screenWidth = 0 }},
		{"badScreenHeight", func(c *appConfig) { c.screenHeight = 0 }},
		{"unknownGame", func(c *appConfig) { c.gameName = "nope" }},
		{"badCompressionQuality", func(c *appConfig) { c.compressionQuality = 0 }},
		{"compressionQualityTooLarge", func(c *appConfig) { c.compressionQuality = 200 }},
		{"badKeyframeInterval", func(c *appConfig) { c.compressionKeyframeInterval = 0 }},
		{"badROIPadding", func(c *appConfig) { c.compressionROIPadding = -1 }},
		{"badMaxPrediction", func(c *appConfig) { c.predictionMaxPredictionMS = 0 }},
		{"badMinConfidence", func(c *appConfig) { c.predictionMinConfidenceGate = 1.5 }},
		{"badCPUCoreID", func(c *appConfig) { c.cpuCoreID = -1 }},
	}
	for _, tc := range tests {
		base := baseTestConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConfigValidate_KnownGameIsAccepted(t *testing.T) {
	base := baseTestConfig()
	base.gameName = "cs16"
	if err := base.validate(); err != nil {
		t.Fatalf("expected known game to validate, got %v", err)
	}
}
