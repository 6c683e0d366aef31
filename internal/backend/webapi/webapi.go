// Package webapi is the remote backend: a token-authenticated player
// controlled over an HTTP Web API in the style of the Spotify Web API
// (/me/player, /me/player/next, ...).
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/micro-nova/flick-go/internal/backend"
)

const (
	// DefaultBaseURL is the Spotify Web API.
	DefaultBaseURL = "https://api.spotify.com/v1"

	defaultPollInterval = 5 * time.Second
	requestTimeout      = 5 * time.Second
	maxPollFailures     = 3
	maxRequestsPerSec   = 5
)

// Options configures a Session.
type Options struct {
	BaseURL      string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// Session talks to the Web API with a bearer token.
type Session struct {
	base    string
	poll    time.Duration
	client  *http.Client
	limiter *rate.Limiter
	events  chan backend.Event

	mu     sync.Mutex
	token  string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a disconnected Session.
func New(opts Options) *Session {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: requestTimeout}
	}
	return &Session{
		base:    strings.TrimRight(opts.BaseURL, "/"),
		poll:    opts.PollInterval,
		client:  opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(maxRequestsPerSec), 5),
		events:  make(chan backend.Event, 16),
	}
}

// Events returns the session's event channel.
func (s *Session) Events() <-chan backend.Event { return s.events }

// Connect validates credential against the API in the background and
// reports the outcome for attempt.
func (s *Session) Connect(attempt uint64, credential string) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.token = credential
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		slog.Info("webapi: connecting", "attempt", attempt)
		_, err := s.playerState(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.emit(ctx, backend.ConnectFailed{Attempt: attempt, Err: err})
			return
		}
		s.emit(ctx, backend.Connected{Attempt: attempt})
	}()
}

// Disconnect stops polling and abandons any connection attempt.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.token = ""
	s.mu.Unlock()
	s.wg.Wait()
}

// Subscribe starts polling the player state.
func (s *Session) Subscribe() {
	s.mu.Lock()
	ctx := s.ctx
	if ctx == nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go s.pollState(ctx)
}

func (s *Session) pollState(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	known, last := false, false
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st, err := s.playerState(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			slog.Debug("webapi: player poll failed", "failures", failures, "err", err)
			if errors.Is(err, backend.ErrUnauthorized) || failures >= maxPollFailures {
				s.emit(ctx, backend.Disconnected{Err: err})
				return
			}
			continue
		}
		failures = 0
		if !known || st.IsPlaying != last {
			known, last = true, st.IsPlaying
			slog.Debug("webapi: player state updated", "playing", st.IsPlaying, "track", st.Item.Name)
			s.emit(ctx, backend.PlayerStateChanged{Playing: st.IsPlaying})
		}
	}
}

func (s *Session) emit(ctx context.Context, ev backend.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) SkipNext(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/me/player/next", nil)
}

func (s *Session) SkipPrevious(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "/me/player/previous", nil)
}

func (s *Session) Pause(ctx context.Context) error {
	return s.do(ctx, http.MethodPut, "/me/player/pause", nil)
}

func (s *Session) Resume(ctx context.Context) error {
	return s.do(ctx, http.MethodPut, "/me/player/play", nil)
}

func (s *Session) IsPlaying(ctx context.Context) (bool, error) {
	st, err := s.playerState(ctx)
	if err != nil {
		return false, err
	}
	return st.IsPlaying, nil
}

// playerState is the subset of GET /me/player we use.
type playerState struct {
	IsPlaying bool `json:"is_playing"`
	Device    struct {
		Name string `json:"name"`
	} `json:"device"`
	Item struct {
		Name string `json:"name"`
	} `json:"item"`
}

// playerState fetches GET /me/player. 204 means no active device, which
// counts as not playing.
func (s *Session) playerState(ctx context.Context) (playerState, error) {
	var st playerState
	err := s.do(ctx, http.MethodGet, "/me/player", func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&st)
	})
	return st, err
}

func (s *Session) do(ctx context.Context, method, path string, decode func(io.Reader) error) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token == "" {
		return fmt.Errorf("webapi: %s %s: %w", method, path, backend.ErrUnauthorized)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("webapi: %s %s: %w", method, path, backend.ErrUnauthorized)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webapi: %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	case resp.StatusCode == http.StatusNoContent || decode == nil:
		return nil
	}
	if err := decode(resp.Body); err != nil {
		return fmt.Errorf("webapi: decode %s: %w", path, err)
	}
	return nil
}

var _ backend.Session = (*Session)(nil)
