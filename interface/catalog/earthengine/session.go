package earthengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/airbusgeo/geocube-s2chips/service/log"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Scopes required to read Earth Engine assets
var Scopes = []string{
	"https://www.googleapis.com/auth/earthengine.readonly",
	"https://www.googleapis.com/auth/cloud-platform",
}

// ErrSessionClosed is returned when a closed session is used
var ErrSessionClosed = errors.New("earthengine session is closed")

// Session holds the credentials to access Earth Engine, acquired once per run.
// Close must be called to release it.
type Session struct {
	credentials  *google.Credentials
	quotaProject string
	mu           sync.Mutex
	closed       bool
}

// NewSession acquires the credentials: application default credentials first,
// then the service account (or user) key file if provided
func NewSession(ctx context.Context, keyFile, quotaProject string) (*Session, error) {
	creds, err := google.FindDefaultCredentials(ctx, Scopes...)
	if err != nil {
		if keyFile == "" {
			return nil, fmt.Errorf("NewSession.FindDefaultCredentials: %w", err)
		}
		log.Logger(ctx).Info("default credentials not found, using key file", zap.String("keyfile", keyFile), zap.Error(err))
		data, rerr := os.ReadFile(keyFile)
		if rerr != nil {
			return nil, fmt.Errorf("NewSession.ReadFile: %w", rerr)
		}
		if creds, err = google.CredentialsFromJSON(ctx, data, Scopes...); err != nil {
			return nil, fmt.Errorf("NewSession.CredentialsFromJSON: %w", err)
		}
	}
	return &Session{credentials: creds, quotaProject: quotaProject}, nil
}

// ClientOptions returns the options to create Earth Engine clients with the session
func (s *Session) ClientOptions() ([]option.ClientOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	opts := []option.ClientOption{option.WithCredentials(s.credentials)}
	if s.quotaProject != "" {
		opts = append(opts, option.WithQuotaProject(s.quotaProject))
	}
	return opts, nil
}

// Close releases the session. Safe to call more than once
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
