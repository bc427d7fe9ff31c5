package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

// startServer starts a callback server on an ephemeral port and returns the
// server plus its callback URL.
func startServer(t *testing.T, ctx context.Context) (*CallbackServer, string) {
	t.Helper()

	server := NewCallbackServer(0)
	if err := server.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(server.Stop)

	return server, fmt.Sprintf("http://127.0.0.1:%d/callback", server.Port())
}

func TestCallbackServer_Success(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, callbackURL := startServer(t, ctx)

	go func() {
		resp, err := http.Get(callbackURL + "?code=test-code&state=test-state")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "successful") {
			t.Errorf("expected success page, got: %s", body)
		}
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		t.Fatalf("WaitForCallback() error = %v", err)
	}

	if result.Code != "test-code" {
		t.Errorf("Code = %q, want test-code", result.Code)
	}
	if result.State != "test-state" {
		t.Errorf("State = %q, want test-state", result.State)
	}
	if result.IsError() || result.IsMalformed() {
		t.Error("expected a clean success result")
	}
}

func TestCallbackServer_RemoteError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, callbackURL := startServer(t, ctx)

	// The error page must escape remote-controlled text
	go func() {
		resp, err := http.Get(callbackURL + `?error=access_denied&error_description=` + "%3Cscript%3Ealert(1)%3C/script%3E")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if strings.Contains(string(body), "<script>") {
			t.Error("error page embeds unescaped HTML")
		}
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		t.Fatalf("WaitForCallback() error = %v", err)
	}

	if !result.IsError() {
		t.Fatal("expected error result")
	}
	if result.Error != "access_denied" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestCallbackServer_MalformedRedirect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, callbackURL := startServer(t, ctx)

	go func() {
		resp, err := http.Get(callbackURL)
		if err == nil {
			resp.Body.Close()
		}
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		t.Fatalf("WaitForCallback() error = %v", err)
	}

	if !result.IsMalformed() {
		t.Errorf("expected malformed result, got %+v", result)
	}
}

func TestCallbackServer_OtherPathsDoNotResolve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, callbackURL := startServer(t, ctx)
	baseURL := strings.TrimSuffix(callbackURL, "/callback")

	// A request to a wrong path gets a 404 and the listener keeps waiting
	resp, err := http.Get(baseURL + "/favicon.ico")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer waitCancel()

	if _, err := server.WaitForCallback(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("listener resolved on a non-callback path: %v", err)
	}

	// The correct path still resolves afterwards
	go func() {
		resp, err := http.Get(callbackURL + "?code=late-code&state=s")
		if err == nil {
			resp.Body.Close()
		}
	}()

	waitCtx2, waitCancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel2()

	result, err := server.WaitForCallback(waitCtx2)
	if err != nil {
		t.Fatalf("WaitForCallback() error = %v", err)
	}
	if result.Code != "late-code" {
		t.Errorf("Code = %q", result.Code)
	}
}

func TestCallbackServer_ResolvesAtMostOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, callbackURL := startServer(t, ctx)

	// First qualifying request resolves the outcome
	resp, err := http.Get(callbackURL + "?code=first&state=s1")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	resp.Body.Close()

	// A stray duplicate either fails to connect (socket closed) or is
	// rejected without producing a second outcome
	resp2, err := http.Get(callbackURL + "?code=second&state=s2")
	if err == nil {
		if resp2.StatusCode == http.StatusOK {
			t.Error("duplicate callback was accepted")
		}
		resp2.Body.Close()
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()

	result, err := server.WaitForCallback(waitCtx)
	if err != nil {
		t.Fatalf("WaitForCallback() error = %v", err)
	}
	if result.Code != "first" {
		t.Errorf("Code = %q, want first", result.Code)
	}

	// No second outcome is buffered
	drainCtx, drainCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer drainCancel()
	if extra, err := server.WaitForCallback(drainCtx); err == nil {
		t.Errorf("unexpected second outcome: %+v", extra)
	}
}

func TestCallbackServer_PortInUse(t *testing.T) {
	// Occupy a port, then try to bind the callback server to it
	occupier, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer occupier.Close()

	port := occupier.Addr().(*net.TCPAddr).Port

	server := NewCallbackServer(port)
	err = server.Start(context.Background())
	if err == nil {
		server.Stop()
		t.Fatal("expected bind failure on occupied port")
	}

	var listenerErr *ListenerError
	if !errors.As(err, &listenerErr) {
		t.Fatalf("expected *ListenerError, got %T: %v", err, err)
	}
	if !listenerErr.PortInUse {
		t.Error("expected PortInUse to be set")
	}
	if listenerErr.Port != port {
		t.Errorf("Port = %d, want %d", listenerErr.Port, port)
	}
}

func TestCallbackServer_StopReleasesPort(t *testing.T) {
	server := NewCallbackServer(0)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	port := server.Port()
	server.Stop()

	// The port must be immediately rebindable after teardown
	rebind, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("port %d not released after Stop(): %v", port, err)
	}
	rebind.Close()
}

func TestCallbackServer_ContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	server, _ := startServer(t, ctx)
	port := server.Port()

	cancel()
	time.Sleep(100 * time.Millisecond)

	rebind, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("port %d not released after context cancellation: %v", port, err)
	}
	rebind.Close()
}
