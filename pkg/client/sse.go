package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quarrydata/quarry/internal/logging"
	"github.com/quarrydata/quarry/pkg/protocol"
	"github.com/quarrydata/quarry/pkg/retry"

	"go.uber.org/zap"
)

// NotificationStream subscribes to server-sent notifications on
// GET /api/v1/notification/stream.
type NotificationStream struct {
	baseURL    string
	httpClient *http.Client
	backoff    retry.Config

	mu        sync.RWMutex
	authToken string
}

// NewNotificationStream creates a stream client for the given server.
func NewNotificationStream(baseURL string) *NotificationStream {
	return &NotificationStream{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // long-lived stream
		},
		backoff: retry.Config{
			MaxAttempts: 0,
			InitialWait: retry.DefaultConfig().InitialWait,
			MaxWait:     retry.DefaultConfig().MaxWait,
			Multiplier:  2.0,
		},
	}
}

// SetAuthToken sets the bearer token for stream requests.
func (s *NotificationStream) SetAuthToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authToken = token
}

// Subscribe connects and returns a channel of notifications. The channel
// closes when ctx is cancelled. Dropped connections reconnect with
// backoff.
func (s *NotificationStream) Subscribe(ctx context.Context) <-chan protocol.Notification {
	events := make(chan protocol.Notification, 100)
	go s.subscribeLoop(ctx, events)
	return events
}

func (s *NotificationStream) subscribeLoop(ctx context.Context, events chan<- protocol.Notification) {
	defer close(events)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connect(ctx, events)
		if err == nil || ctx.Err() != nil {
			return
		}

		attempt++
		delay := s.backoff.Wait(attempt)
		logging.Warn("notification stream disconnected",
			zap.Error(err), zap.Duration("reconnect_in", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *NotificationStream) connect(ctx context.Context, events chan<- protocol.Notification) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/api/v1/notification/stream", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	s.mu.RLock()
	token := s.authToken
	s.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	logging.Debug("notification stream connected", zap.String("url", s.baseURL))

	scanner := bufio.NewScanner(resp.Body)
	var data string

	for scanner.Scan() {
		line := scanner.Text()

		if ctx.Err() != nil {
			return nil
		}

		if line == "" {
			if data != "" {
				var n protocol.Notification
				if json.Unmarshal([]byte(data), &n) == nil {
					select {
					case events <- n:
					default:
						logging.Debug("notification dropped (channel full)")
					}
				}
			}
			data = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return fmt.Errorf("connection closed")
}
