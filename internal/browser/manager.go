package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"browserstealth/internal/config"
	"browserstealth/pkg/logger"
)

// Manager owns one browser process, or a connection to a remote one, and
// opens isolated contexts in it.
type Manager struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cleanup  bool
	log      logger.Logger
}

func NewManager(cfg *config.BrowserConfig, log logger.Logger) (*Manager, error) {
	m := &Manager{log: log}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			Leakless(cfg.Leakless).
			Set(flags.Flag("disable-blink-features"), "AutomationControlled")

		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.UserDataDir != "" {
			l = l.UserDataDir(cfg.UserDataDir)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
		m.launcher = l
		m.cleanup = cfg.UserDataDir == ""
	}

	browser := rod.New().ControlURL(controlURL)
	if cfg.SlowMotion > 0 {
		browser = browser.SlowMotion(time.Duration(cfg.SlowMotion) * time.Millisecond)
	}
	if err := browser.Connect(); err != nil {
		if m.launcher != nil {
			m.launcher.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	m.browser = browser

	log.Info("browser connected", "control_url", controlURL, "headless", cfg.Headless)
	return m, nil
}

func (m *Manager) NewContext(ctx context.Context, opts ContextOptions) (*Context, error) {
	return newContext(ctx, m.browser, opts, m.log)
}

func (m *Manager) Close() error {
	err := m.browser.Close()
	if m.launcher != nil {
		if m.cleanup {
			m.launcher.Cleanup()
		} else {
			m.launcher.Kill()
		}
	}
	return err
}
