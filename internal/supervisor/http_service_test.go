// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// fakeHTTPServer stands in for *http.Server. listenErr makes ListenAndServe
// fail immediately; otherwise it blocks until Shutdown.
type fakeHTTPServer struct {
	listenErr   error
	shutdownErr error
	listens     atomic.Int32
	shutdowns   atomic.Int32
	started     chan struct{}
	stop        chan struct{}
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{
		started: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	f.listens.Add(1)
	select {
	case f.started <- struct{}{}:
	default:
	}

	if f.listenErr != nil {
		return f.listenErr
	}

	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	close(f.stop)
	return f.shutdownErr
}

func (f *fakeHTTPServer) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
}

func TestHTTPServiceImplementsService(t *testing.T) {
	var _ suture.Service = (*HTTPService)(nil)
}

func TestNewHTTPServiceDefaultTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"zero falls back", 0, 10 * time.Second},
		{"negative falls back", -5 * time.Second, 10 * time.Second},
		{"explicit kept", 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHTTPService(newFakeHTTPServer(), tt.timeout)
			if svc.shutdownTimeout != tt.want {
				t.Errorf("shutdownTimeout = %v, want %v", svc.shutdownTimeout, tt.want)
			}
		})
	}
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newFakeHTTPServer()
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	server.waitStarted(t)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if got := server.listens.Load(); got != 1 {
		t.Errorf("ListenAndServe called %d times, want 1", got)
	}
	if got := server.shutdowns.Load(); got != 1 {
		t.Errorf("Shutdown called %d times, want 1", got)
	}
}

func TestHTTPServiceStartupFailure(t *testing.T) {
	bindErr := errors.New("listen tcp 127.0.0.1:8090: bind: address already in use")
	server := newFakeHTTPServer()
	server.listenErr = bindErr
	svc := NewHTTPService(server, time.Second)

	err := svc.Serve(context.Background())
	if !errors.Is(err, bindErr) {
		t.Errorf("Serve returned %v, want wrapped bind error", err)
	}
	if got := server.shutdowns.Load(); got != 0 {
		t.Errorf("Shutdown called %d times on startup failure, want 0", got)
	}
}

func TestHTTPServiceShutdownFailure(t *testing.T) {
	shutdownErr := errors.New("shutdown deadline exceeded")
	server := newFakeHTTPServer()
	server.shutdownErr = shutdownErr
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Serve(ctx)
	}()

	server.waitStarted(t)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, shutdownErr) {
			t.Errorf("Serve returned %v, want shutdown error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestHTTPServiceString(t *testing.T) {
	svc := NewHTTPService(newFakeHTTPServer(), time.Second)
	if svc.String() != "http-server" {
		t.Errorf("String() = %q, want http-server", svc.String())
	}
}

func TestHTTPServiceUnderTree(t *testing.T) {
	server := newFakeHTTPServer()
	svc := NewHTTPService(server, time.Second)

	tree, err := NewTree(testSlog(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	tree.AddAPIService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	server.waitStarted(t)
	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}

	if got := server.shutdowns.Load(); got < 1 {
		t.Error("Shutdown was not called during tree stop")
	}
}
