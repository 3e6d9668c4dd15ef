package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/momento/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source hands out bearer tokens from a credentials file and refreshes them
// against the server when asked to.
type Source struct {
	path       string
	refreshURL string
	http       *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	creds *Credentials
	group singleflight.Group
}

func NewSource(path, serverURL string, client *http.Client, logger *zap.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger = logging.OrNop(logger)
	return &Source{
		path:       path,
		refreshURL: strings.TrimRight(serverURL, "/") + "/auth/refresh",
		http:       client,
		logger:     logger,
		now:        time.Now,
	}
}

// AuthHeader returns "Bearer <token>". An expired token, or refresh=true,
// triggers one refresh; concurrent callers share it.
func (s *Source) AuthHeader(ctx context.Context, refresh bool) (string, error) {
	creds, err := s.current()
	if err != nil {
		return "", err
	}
	if refresh || creds.Expired(s.now()) {
		v, err, _ := s.group.Do("refresh", func() (any, error) {
			return s.refresh(ctx, creds.AccessToken)
		})
		if err != nil {
			return "", err
		}
		creds = v.(*Credentials)
	}
	return "Bearer " + creds.AccessToken, nil
}

// CurrentUserID returns the signed-in user id, or "" when signed out.
func (s *Source) CurrentUserID() string {
	creds, err := s.current()
	if err != nil {
		return ""
	}
	return creds.UserID
}

// SignOut forgets the credentials, in memory and on disk.
func (s *Source) SignOut() error {
	s.mu.Lock()
	s.creds = nil
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}

func (s *Source) current() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds != nil {
		c := *s.creds
		return &c, nil
	}
	c, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	s.creds = c
	cp := *c
	return &cp, nil
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// refresh prefers a token rotated on disk by another process; otherwise it
// exchanges the refresh token with the server.
func (s *Source) refresh(ctx context.Context, rejected string) (*Credentials, error) {
	disk, err := Load(s.path)
	if err != nil {
		return nil, err
	}
	if disk.AccessToken != "" && disk.AccessToken != rejected && !disk.Expired(s.now()) {
		s.store(disk)
		return disk, nil
	}
	if disk.RefreshToken == "" {
		return nil, ErrNoCredentials
	}

	body, _ := json.Marshal(map[string]string{"refreshToken": disk.RefreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh token: status %d", resp.StatusCode)
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("refresh token: decode: %w", err)
	}
	if rr.AccessToken == "" {
		return nil, errors.New("refresh token: empty access token")
	}

	next := *disk
	next.AccessToken = rr.AccessToken
	if rr.RefreshToken != "" {
		next.RefreshToken = rr.RefreshToken
	}
	next.ExpiresAt = time.Time{}
	if rr.ExpiresIn > 0 {
		next.ExpiresAt = s.now().Add(time.Duration(rr.ExpiresIn) * time.Second).UTC()
	}
	if err := Save(s.path, &next); err != nil {
		s.logger.Warn("failed to persist refreshed credentials", zap.Error(err))
	}
	s.store(&next)
	s.logger.Info("access token refreshed")
	return &next, nil
}

func (s *Source) store(c *Credentials) {
	s.mu.Lock()
	cp := *c
	s.creds = &cp
	s.mu.Unlock()
}
