package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
	"citystories/pkg/pacing"
)

// Authenticator attaches credentials to an outgoing metadata request
type Authenticator interface {
	Name() string
	Authorize(ctx context.Context, req *http.Request) error
}

// Preparer is implemented by authenticators that need a round trip of their
// own before the first request
type Preparer interface {
	Prepare(ctx context.Context) error
}

// SessionTokenAuth sends an externally obtained session cookie. The token
// is opaque and never validated or refreshed.
type SessionTokenAuth struct {
	SessionID string
	CSRFToken string
}

// NewSessionTokenAuth creates a SessionTokenAuth
func NewSessionTokenAuth(sessionID, csrfToken string) *SessionTokenAuth {
	return &SessionTokenAuth{SessionID: sessionID, CSRFToken: csrfToken}
}

func (a *SessionTokenAuth) Name() string { return "session" }

func (a *SessionTokenAuth) Authorize(_ context.Context, req *http.Request) error {
	if a.SessionID == "" {
		return errs.New(errs.ErrorTypeAuth, 0, "no session id configured")
	}
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: a.SessionID})
	if a.CSRFToken != "" {
		req.AddCookie(&http.Cookie{Name: "csrftoken", Value: a.CSRFToken})
		req.Header.Set("X-CSRFToken", a.CSRFToken)
	}
	return nil
}

// LoginOptions configures a LoginSessionAuth
type LoginOptions struct {
	Username   string
	Password   string
	BaseURL    string
	UserAgent  string
	AppID      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Pacer      pacing.Pacer
	Logger     logger.Logger
}

// LoginSessionAuth logs in with a username and password once per run and
// reuses the resulting session cookie. A failed login is remembered too.
type LoginSessionAuth struct {
	opts LoginOptions

	once    sync.Once
	session *SessionTokenAuth
	err     error
}

// NewLoginSessionAuth creates a LoginSessionAuth
func NewLoginSessionAuth(opts LoginOptions) *LoginSessionAuth {
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	if opts.AppID == "" {
		opts.AppID = DefaultAppID
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Pacer == nil {
		opts.Pacer = pacing.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &LoginSessionAuth{opts: opts}
}

func (a *LoginSessionAuth) Name() string { return "login" }

// Prepare performs the login exchange on first use
func (a *LoginSessionAuth) Prepare(ctx context.Context) error {
	a.once.Do(func() {
		a.session, a.err = a.login(ctx)
	})
	return a.err
}

func (a *LoginSessionAuth) Authorize(ctx context.Context, req *http.Request) error {
	if err := a.Prepare(ctx); err != nil {
		return err
	}
	return a.session.Authorize(ctx, req)
}

func (a *LoginSessionAuth) login(ctx context.Context) (*SessionTokenAuth, error) {
	log := a.opts.Logger.WithField("username", a.opts.Username)
	if a.opts.Username == "" || a.opts.Password == "" {
		return nil, errs.New(errs.ErrorTypeAuth, 0, "username and password are required")
	}

	csrf, err := a.fetchCSRFToken(ctx)
	if err != nil {
		log.WithError(err).Error("failed to bootstrap login")
		return nil, err
	}

	if err := a.opts.Pacer.Wait(ctx, pacing.Metadata); err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "%v", err)
	}
	defer a.opts.Pacer.Done(pacing.Metadata)

	form := url.Values{}
	form.Set("username", a.opts.Username)
	form.Set("enc_password", fmt.Sprintf("#PWD_INSTAGRAM_BROWSER:0:%d:%s", time.Now().Unix(), a.opts.Password))
	form.Set("queryParams", "{}")
	form.Set("optIntoOneTap", "false")

	reqCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, LoginURL(a.opts.BaseURL), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", a.opts.UserAgent)
	req.Header.Set("X-IG-App-ID", a.opts.AppID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-CSRFToken", csrf)
	req.Header.Set("Referer", strings.TrimRight(a.opts.BaseURL, "/")+"/accounts/login/")
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: csrf})

	start := time.Now()
	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "login request failed: %v", err)
	}
	defer resp.Body.Close()
	logger.LogRequest(log, req.Method, req.URL.Path, resp.StatusCode, time.Since(start))

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var result loginResponse
	_ = json.Unmarshal(body, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errType := errs.FromStatusCode(resp.StatusCode)
		if resp.StatusCode == http.StatusBadRequest {
			// wrong password, checkpoint and two-factor all come back as 400
			errType = errs.ErrorTypeAuth
		}
		return nil, errs.New(errType, resp.StatusCode, "login rejected: %s", loginReason(result))
	}
	if !result.Authenticated {
		return nil, errs.New(errs.ErrorTypeAuth, resp.StatusCode, "login rejected: %s", loginReason(result))
	}

	session := &SessionTokenAuth{CSRFToken: csrf}
	for _, c := range resp.Cookies() {
		switch c.Name {
		case "sessionid":
			session.SessionID = c.Value
		case "csrftoken":
			session.CSRFToken = c.Value
		}
	}
	if session.SessionID == "" {
		return nil, errs.New(errs.ErrorTypeAuth, resp.StatusCode, "login succeeded but no session cookie was set")
	}

	log.Info("logged in")
	return session, nil
}

// fetchCSRFToken loads the login page to obtain the csrftoken cookie
func (a *LoginSessionAuth) fetchCSRFToken(ctx context.Context) (string, error) {
	if err := a.opts.Pacer.Wait(ctx, pacing.Metadata); err != nil {
		return "", errs.New(errs.ErrorTypeNetwork, 0, "%v", err)
	}
	defer a.opts.Pacer.Done(pacing.Metadata)

	reqCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, strings.TrimRight(a.opts.BaseURL, "/")+"/accounts/login/", nil)
	if err != nil {
		return "", errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", a.opts.UserAgent)

	resp, err := a.opts.HTTPClient.Do(req)
	if err != nil {
		return "", errs.New(errs.ErrorTypeNetwork, 0, "login page request failed: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	for _, c := range resp.Cookies() {
		if c.Name == "csrftoken" && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", errs.New(errs.ErrorTypeAuth, resp.StatusCode, "login page did not set a csrf token (status %d)", resp.StatusCode)
}

func loginReason(r loginResponse) string {
	switch {
	case r.TwoFactor:
		return "two-factor authentication required"
	case r.Checkpoint != "":
		return "account checkpoint required"
	case r.Message != "":
		return r.Message
	case r.User && !r.Authenticated:
		return "wrong password"
	default:
		return "not authenticated"
	}
}
