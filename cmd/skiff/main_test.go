package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/jhalstead/skiff/pkg/config"
)

func TestSetupLoggingFallsBackToInfo(t *testing.T) {
	setupLogging(config.LoggingConfig{Level: "not-a-level", Format: "json"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	setupLogging(config.LoggingConfig{Level: "debug", Format: "json"})
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLogging(config.LoggingConfig{Level: "info", Format: "json"})
}

func TestRandomTokenSecret(t *testing.T) {
	a := randomTokenSecret()
	b := randomTokenSecret()

	assert.Len(t, a, 64)
	assert.Len(t, b, 64)
	assert.NotEqual(t, a, b)
}
