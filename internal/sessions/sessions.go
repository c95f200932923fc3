package sessions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mediaq/internal/downloader"
	"github.com/desertthunder/mediaq/internal/events"
	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

// lockMarkers are lowercase stderr fragments the downloader prints when a running browser holds its cookie
// database open.
var lockMarkers = []string{
	"permission denied",
	"device or resource busy",
	"database is locked",
	"could not copy",
}

// Opener launches an external browser at a URL.
type Opener interface {
	Open(browser, url string) error
}

// OpenerFunc adapts a function to [Opener].
type OpenerFunc func(browser, url string) error

func (f OpenerFunc) Open(browser, url string) error { return f(browser, url) }

// Config holds the session settings taken from [shared.SessionsConfig].
type Config struct {
	LoginBrowser string
	TTL          time.Duration
}

// ConfigFromSessions builds a [Config] from the loaded configuration.
func ConfigFromSessions(c shared.SessionsConfig) Config {
	return Config{LoginBrowser: c.LoginBrowser, TTL: c.SessionTTL.Duration}
}

// Store owns the per-platform sessions and the flows that acquire them.
type Store struct {
	repo   models.SessionRepository
	sealer *shared.Sealer
	runner downloader.Runner
	bus    events.Publisher
	opener Opener
	lookup *Lookup
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a [Store].
type Option func(*Store)

// WithOpener replaces the browser launcher.
func WithOpener(o Opener) Option {
	return func(s *Store) { s.opener = o }
}

// WithLookup resolves handles over HTTP for platforms whose cookies only carry an id.
func WithLookup(l *Lookup) Option {
	return func(s *Store) { s.lookup = l }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a [Store]. runner is used for browser cookie import.
func New(repo models.SessionRepository, sealer *shared.Sealer, runner downloader.Runner, bus events.Publisher, cfg Config, logger *log.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	s := &Store{
		repo:   repo,
		sealer: sealer,
		runner: runner,
		bus:    bus,
		opener: OpenerFunc(shared.OpenBrowserWith),
		cfg:    cfg,
		logger: shared.WithLogger(logger, "component", "sessions"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetStatus returns one session per known platform, in platform order. Platforms without a stored session
// are reported as NONE. Sessions past their expiry are marked EXPIRED first.
func (s *Store) GetStatus() ([]*models.PlatformSession, error) {
	if err := s.Refresh(); err != nil {
		return nil, err
	}

	stored, err := s.repo.List()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.PlatformSession, len(stored))
	for _, sess := range stored {
		byID[sess.PlatformID] = sess
	}

	platforms := models.Platforms()
	out := make([]*models.PlatformSession, 0, len(platforms))
	for _, p := range platforms {
		if sess, ok := byID[p.ID]; ok {
			out = append(out, sess)
			continue
		}
		out = append(out, models.EmptySession(p.ID))
	}
	return out, nil
}

// Update stores cookie text for a platform. The method may be a bare name or the stored
// "browser_import:<browser>" form.
func (s *Store) Update(ctx context.Context, platformID, text, method string) (*models.PlatformSession, error) {
	p, err := models.LookupPlatform(platformID)
	if err != nil {
		return nil, err
	}
	m, err := models.ParseCookieMethod(method)
	if err != nil {
		return nil, err
	}
	cookies, err := ParseCookies(text)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, p, cookies, m)
}

// ImportManual stores pasted Netscape or JSON cookie text.
func (s *Store) ImportManual(ctx context.Context, platformID, text string) (*models.PlatformSession, error) {
	return s.Update(ctx, platformID, text, string(models.MethodManual))
}

// ImportCurl stores the cookie header of a browser "Copy as cURL" command. The header carries no expiry so
// every cookie gets the session TTL.
func (s *Store) ImportCurl(ctx context.Context, platformID, curl string) (*models.PlatformSession, error) {
	p, err := models.LookupPlatform(platformID)
	if err != nil {
		return nil, err
	}
	parsed, err := shared.ParseCurlCommand([]byte(curl))
	if err != nil {
		return nil, err
	}
	cookies, err := parsed.Cookies(p.PrimaryDomain(), s.now().Add(s.cfg.TTL).Unix())
	if err != nil {
		return nil, err
	}
	return s.save(ctx, p, cookies, models.MethodManual)
}

// Delete disconnects a platform. Deleting a platform with no session is not an error.
func (s *Store) Delete(platformID string) error {
	p, err := models.LookupPlatform(platformID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Delete(p.ID); err != nil {
		return err
	}
	s.logger.Info("session deleted", "platform", p.ID)
	s.publish(p.ID)
	return nil
}

// OpenLoginWindow opens the platform's login page in the configured login browser. Once the user has signed
// in, [Store.CheckLogin] reads the cookies back out of that browser.
func (s *Store) OpenLoginWindow(platformID string) error {
	p, err := models.LookupPlatform(platformID)
	if err != nil {
		return err
	}
	if err := s.opener.Open(s.cfg.LoginBrowser, p.LoginURL); err != nil {
		return fmt.Errorf("failed to open login window for %s: %w", p.Name, err)
	}
	s.logger.Info("login window opened", "platform", p.ID, "browser", s.cfg.LoginBrowser)
	return nil
}

// CheckLogin imports cookies from the login browser after [Store.OpenLoginWindow].
func (s *Store) CheckLogin(ctx context.Context, platformID string) (*models.PlatformSession, error) {
	p, err := models.LookupPlatform(platformID)
	if err != nil {
		return nil, err
	}
	browser, err := models.ParseBrowser(s.cfg.LoginBrowser)
	if err != nil {
		return nil, fmt.Errorf("%w: sessions.login_browser: %v", shared.ErrInvalidConfig, err)
	}
	return s.importBrowser(ctx, p, browser, models.MethodWebview)
}

// ImportFromBrowser reads the named local browser's cookie store. The browser must be fully closed; while it
// holds the store open the import fails with [shared.ErrBrowserLocked] and the stored session is untouched.
func (s *Store) ImportFromBrowser(ctx context.Context, platformID, browser string) (*models.PlatformSession, error) {
	p, err := models.LookupPlatform(platformID)
	if err != nil {
		return nil, err
	}
	b, err := models.ParseBrowser(browser)
	if err != nil {
		return nil, err
	}
	return s.importBrowser(ctx, p, b, b)
}

func (s *Store) importBrowser(ctx context.Context, p models.Platform, browser, method models.CookieMethod) (*models.PlatformSession, error) {
	logger := shared.WithLogger(s.logger, "platform", p.ID, "browser", browser)
	path := filepath.Join(os.TempDir(), "mediaq-import-"+shared.GenerateID()+".txt")
	defer os.Remove(path)

	args := []string{"--cookies-from-browser", string(browser), "--cookies", path, "--skip-download", p.BaseURL}
	logger.Debug("importing browser cookies")
	_, stderr, err := s.runner.Output(ctx, args)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		lower := strings.ToLower(msg)
		for _, marker := range lockMarkers {
			if strings.Contains(lower, marker) {
				logger.Warn("browser cookie store is locked")
				return nil, fmt.Errorf("%w: close %s completely and try again", shared.ErrBrowserLocked, browser)
			}
		}
		if msg == "" {
			return nil, fmt.Errorf("failed to import cookies: %w", err)
		}
		return nil, fmt.Errorf("failed to import cookies: %s: %w", msg, err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s produced no cookie file", shared.ErrParse, browser)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read imported cookies: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: %s cookie store is empty", shared.ErrParse, browser)
	}

	cookies, err := shared.ParseNetscapeCookies(string(data))
	if err != nil {
		return nil, err
	}
	return s.save(ctx, p, cookies, method)
}

// save keeps the platform's live cookies, seals them and marks the session ACTIVE.
func (s *Store) save(ctx context.Context, p models.Platform, cookies []shared.Cookie, method models.CookieMethod) (*models.PlatformSession, error) {
	now := s.now().UTC()
	kept, err := forPlatform(p, cookies, now)
	if err != nil {
		return nil, err
	}

	username := Username(p.ID, kept)
	if s.lookup != nil {
		name, err := s.lookup.Username(ctx, p.ID, kept)
		switch {
		case err != nil:
			s.logger.Debug("username lookup failed", "platform", p.ID, "error", err)
		case name != "":
			username = name
		}
	}

	sealed, err := s.sealer.Seal(shared.FormatNetscapeCookies(kept))
	if err != nil {
		return nil, fmt.Errorf("failed to seal cookies: %w", err)
	}

	expires := expiry(p.ID, kept, now, s.cfg.TTL)
	stored := method.Stored()
	session := &models.PlatformSession{
		PlatformID:   p.ID,
		Status:       models.SessionActive,
		CookieMethod: &stored,
		ExpiresAt:    &expires,
		LastVerified: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if username != "" {
		session.Username = &username
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, err := s.repo.Get(p.ID); err == nil {
		session.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if err := s.repo.Upsert(session, sealed); err != nil {
		return nil, err
	}

	s.logger.Info("session connected", "platform", p.ID, "method", stored, "cookies", len(kept), "expires_at", expires)
	s.publish(p.ID)
	return session, nil
}

// Refresh marks ACTIVE sessions whose expiry has passed as EXPIRED.
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.repo.List()
	if err != nil {
		return err
	}
	now := s.now()
	for _, sess := range stored {
		if sess.Status != models.SessionActive || !sess.Expired(now) {
			continue
		}
		if err := s.repo.MarkExpired(sess.PlatformID, now); err != nil {
			return err
		}
		s.logger.Info("session expired", "platform", sess.PlatformID)
		s.publish(sess.PlatformID)
	}
	return nil
}

// ReportAuthFailure marks an ACTIVE session EXPIRED after a download using its cookies was refused.
func (s *Store) ReportAuthFailure(platformID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.repo.Get(platformID)
	if err != nil || sess.Status != models.SessionActive {
		return
	}
	if err := s.repo.MarkExpired(platformID, s.now()); err != nil {
		s.logger.Error("failed to expire session", "platform", platformID, "error", err)
		return
	}
	s.logger.Warn("session rejected by platform", "platform", platformID)
	s.publish(platformID)
}

// CookiesFor returns the Netscape cookie text of the ACTIVE, unexpired session covering rawURL.
func (s *Store) CookiesFor(rawURL string) (models.Platform, string, bool) {
	p, ok := models.PlatformForURL(rawURL)
	if !ok {
		return models.Platform{}, "", false
	}

	sess, err := s.repo.Get(p.ID)
	if err != nil || sess.Status != models.SessionActive || sess.Expired(s.now()) {
		return p, "", false
	}
	sealed, err := s.repo.Cookies(p.ID)
	if err != nil {
		s.logger.Error("failed to load cookies", "platform", p.ID, "error", err)
		return p, "", false
	}
	text, err := s.sealer.Open(sealed)
	if err != nil || text == "" {
		s.logger.Error("failed to unseal cookies", "platform", p.ID, "error", err)
		return p, "", false
	}
	return p, text, true
}

func (s *Store) publish(platformID string) {
	if s.bus != nil {
		s.bus.Publish(events.Event{Topic: events.TopicSession, PlatformID: platformID})
	}
}
