package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/statement-ledger/config"
)

func testConfig(port int) *config.Config {
	cfg := config.Defaults()
	cfg.Server.Port = port
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Database.Driver = config.DriverMemory
	cfg.JWT.Secret = "test-secret"
	cfg.Audit.Interval = 0
	return &cfg
}

func TestRun_ReturnsListenError(t *testing.T) {
	// GIVEN: The port is already taken
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	// THEN: run reports the failure instead of exiting
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), testConfig(port), zerolog.Nop()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after the listener failed")
	}
}

func TestRun_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(0), zerolog.Nop()) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not shut down")
	}
}
