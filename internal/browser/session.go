package browser

import (
	"context"
	"sync"

	"github.com/go-rod/rod"

	"browserstealth/internal/profile"
	"browserstealth/internal/serviceworker"
	"browserstealth/internal/stealth"
	"browserstealth/pkg/logger"
)

// Session is one assembled browser context with its control page.
type Session struct {
	ID          string
	ExecutionID string
	BaseURL     string
	Context     *Context
	Page        *rod.Page
	Workers     *serviceworker.Controller
	Human       *stealth.Human
	Profile     profile.Resolved

	recorder Recorder
	log      logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// StorageState captures the context's current cookies.
func (s *Session) StorageState(ctx context.Context) (*StorageState, error) {
	cookies, err := s.Context.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	return &StorageState{Cookies: cookies}, nil
}

func (s *Session) SaveStorageState(ctx context.Context, path string) error {
	state, err := s.StorageState(ctx)
	if err != nil {
		return err
	}
	return SaveStorageState(path, state)
}

// Close detaches the service worker controller and disposes the context.
// Later calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Context.Close(ctx)

		if s.recorder != nil {
			if err := s.recorder.SessionClosed(ctx, s.ID); err != nil {
				s.log.Warn("failed to record session close", "error", err)
			}
		}
		s.log.Info("session closed")
	})
	return s.closeErr
}
