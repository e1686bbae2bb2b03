package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/tendant/simple-ocr-gateway/internal/config"
	"github.com/tendant/simple-ocr-gateway/internal/validate"
	"github.com/tendant/simple-ocr-gateway/internal/worker/workertest"
)

func testConfig(t *testing.T, addr string) config.Config {
	t.Helper()
	srv := workertest.NewServer(t, workertest.New())
	return config.Config{
		Addr:            addr,
		WorkerURL:       srv.URL,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: time.Second,
		Limits:          validate.DefaultLimits(),
	}
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig(t, "127.0.0.1:0"), quiet()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	done := make(chan error, 1)
	go func() { done <- run(context.Background(), testConfig(t, ln.Addr().String()), quiet()) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for an address in use")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return on listen failure")
	}
}

func TestRunReturnsNATSConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(t, "127.0.0.1:0")
	cfg.NATSURL = "nats://" + addr
	if err := run(context.Background(), cfg, quiet()); err == nil {
		t.Fatal("expected an error when NATS is unreachable")
	}
}

func TestRunRejectsBadWorkerURL(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:0")
	cfg.WorkerURL = "worker:8000"
	if err := run(context.Background(), cfg, quiet()); err == nil {
		t.Fatal("expected an error for a relative worker URL")
	}
}
