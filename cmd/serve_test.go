package cmd

import (
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/handlers"
	"github.com/example/ecovision/internal/repository"
	"github.com/example/ecovision/internal/usecase"
)

type blockingService struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingService) ClassifyImage(_ context.Context, _ []byte) (string, *classification.Result, error) {
	select {
	case <-s.started:
	default:
		close(s.started)
	}
	<-s.release
	return "req-1", &classification.Result{
		Category:   classification.CategoryCompost,
		Confidence: 88,
		Details:    "Banana peel.",
		Tips:       []string{"Compost it"},
		BudsReward: 16,
	}, nil
}

func (s *blockingService) GetResult(context.Context, string) (*repository.ClassificationLog, error) {
	return nil, repository.ErrNotFound
}

func (s *blockingService) ListHistory(context.Context, int) ([]*repository.ClassificationLog, error) {
	return nil, nil
}

func (s *blockingService) GetMetricsSummary(context.Context) (*usecase.MetricsSummary, error) {
	return &usecase.MetricsSummary{}, nil
}

func TestServerDrainsInFlightClassificationOnShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	svc := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	defer func() {
		select {
		case <-svc.release:
		default:
			close(svc.release)
		}
	}()

	router := handlers.NewRouter(svc, logger, handlers.Options{AllowedOrigins: []string{"*"}})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	addr := listener.Addr().String()
	waitForServer(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		body := `{"image":"` + base64.StdEncoding.EncodeToString([]byte("img")) + `"}`
		resp, err := client.Post("http://"+addr+"/api/classify-trash", "application/json", strings.NewReader(body))
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("classification did not start in time")
	}

	signalCh <- syscall.SIGTERM

	time.Sleep(50 * time.Millisecond)
	close(svc.release)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
		if !strings.Contains(string(body), `"category":"compost"`) {
			t.Fatalf("unexpected body: %s", string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}
}

func TestServerReturnsListenError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	server := &http.Server{Addr: listener.Addr().String(), Handler: http.NewServeMux()}
	err = serveHTTPServerWithOptions(server, time.Second, zap.NewNop(), nil, make(chan os.Signal))
	if err == nil {
		t.Fatal("expected address-in-use error")
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
