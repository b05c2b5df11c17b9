package cli

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

var (
	gatewayTestSignalMu sync.Mutex
	gatewayTestSignalCh chan<- os.Signal
)

func stubGatewaySignals(t *testing.T) {
	t.Helper()
	origNotify := gatewaySignalNotify
	origStop := gatewaySignalStop
	gatewaySignalNotify = func(c chan<- os.Signal, _ ...os.Signal) {
		gatewayTestSignalMu.Lock()
		gatewayTestSignalCh = c
		gatewayTestSignalMu.Unlock()
	}
	gatewaySignalStop = func(c chan<- os.Signal) {
		gatewayTestSignalMu.Lock()
		if gatewayTestSignalCh == c {
			gatewayTestSignalCh = nil
		}
		gatewayTestSignalMu.Unlock()
	}
	t.Cleanup(func() {
		gatewaySignalNotify = origNotify
		gatewaySignalStop = origStop
		gatewayTestSignalMu.Lock()
		gatewayTestSignalCh = nil
		gatewayTestSignalMu.Unlock()
	})
}

func sendGatewaySignal(t *testing.T, sig os.Signal) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		gatewayTestSignalMu.Lock()
		ch := gatewayTestSignalCh
		gatewayTestSignalMu.Unlock()
		if ch != nil {
			ch <- sig
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for gateway signal channel")
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate free port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port %q: %v", addr, err)
	}
	return port
}

func waitForHTTP(t *testing.T, url string) {
	t.Helper()
	client := &http.Client{Timeout: 500 * time.Millisecond}
	deadline := time.Now().Add(6 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", url)
}

func TestRunGatewayBootAndShutdown(t *testing.T) {
	stubGatewaySignals(t)
	setTestHome(t)
	setFakeProviderKey(t)

	port := freePort(t)
	for k, v := range map[string]string{
		"PULSELOOM_GATEWAY_HOST": "127.0.0.1",
		"PULSELOOM_GATEWAY_PORT": port,
	} {
		orig, had := os.LookupEnv(k)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, orig)
			} else {
				_ = os.Unsetenv(k)
			}
		})
		_ = os.Setenv(k, v)
	}

	done := make(chan struct{})
	go func() {
		runGateway(nil, nil)
		close(done)
	}()

	base := "http://127.0.0.1:" + port
	waitForHTTP(t, base+"/api/v1/status")

	resp, err := http.Get(base + "/api/v1/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatalf("unmarshal status: %v\nbody=%s", err, body)
	}
	if status.Version != version {
		t.Fatalf("expected version %s, got %s", version, status.Version)
	}

	sendGatewaySignal(t, syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("gateway did not shut down after SIGTERM")
	}
}
