package instagram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
	"citystories/pkg/models"
	"citystories/pkg/pacing"
)

// maxBodySize bounds how much of a profile response is read
const maxBodySize = 16 << 20

// Options configures a Client
type Options struct {
	BaseURL   string
	AppID     string
	UserAgent string
	// Timeout applies to each request separately
	Timeout    time.Duration
	HTTPClient *http.Client
	Auth       Authenticator
	Pacer      pacing.Pacer
	Logger     logger.Logger
}

// Client retrieves recent timeline items of public accounts
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	userAgent  string
	timeout    time.Duration
	auth       Authenticator
	pacer      pacing.Pacer
	logger     logger.Logger
}

// NewClient creates a new Instagram API client
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		baseURL:    opts.BaseURL,
		appID:      opts.AppID,
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		auth:       opts.Auth,
		pacer:      opts.Pacer,
		logger:     opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.baseURL == "" {
		c.baseURL = BaseURL
	}
	if c.appID == "" {
		c.appID = DefaultAppID
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.pacer == nil {
		c.pacer = pacing.Nop()
	}
	if c.logger == nil {
		c.logger = logger.GetLogger()
	}
	return c
}

// AuthName names the configured authentication strategy
func (c *Client) AuthName() string {
	if c.auth == nil {
		return "none"
	}
	return c.auth.Name()
}

// Prepare runs the authenticator's own round trip, if it has one. The
// pipeline calls it once before the first account.
func (c *Client) Prepare(ctx context.Context) error {
	if p, ok := c.auth.(Preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}

// FetchRecentPosts returns up to count of the handle's most recent items,
// newest first. Failures are returned as *errors.MetadataFetchError.
func (c *Client) FetchRecentPosts(ctx context.Context, handle string, count int) ([]models.PostRecord, error) {
	fail := func(err error) ([]models.PostRecord, error) {
		return nil, &errs.MetadataFetchError{Handle: handle, Err: err}
	}

	if !IsValidUsername(handle) {
		return fail(errs.New(errs.ErrorTypeConfig, 0, "invalid handle %q", handle))
	}
	count = clampCount(count)

	if err := c.pacer.Wait(ctx, pacing.Metadata); err != nil {
		return fail(errs.New(errs.ErrorTypeNetwork, 0, "%v", err))
	}

	body, err := c.getProfile(ctx, handle)
	c.pacer.Done(pacing.Metadata)
	if err != nil {
		return fail(err)
	}

	records, err := extractPosts(body, handle, count, c.logger)
	if err != nil {
		c.logger.WarnWithFields("failed to read profile response", map[string]interface{}{
			"handle": handle,
			"error":  err.Error(),
		})
		return fail(err)
	}

	c.logger.DebugWithFields("fetched timeline", map[string]interface{}{
		"handle":  handle,
		"records": len(records),
	})
	return records, nil
}

func (c *Client) getProfile(ctx context.Context, handle string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ProfileURL(c.baseURL, handle), nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-IG-App-ID", c.appID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", fmt.Sprintf("%s/%s/", c.baseURL, handle))

	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			if errs.TypeOf(err) == errs.ErrorTypeUnknown {
				err = errs.New(errs.ErrorTypeAuth, 0, "%v", err)
			}
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errs.New(errs.ErrorTypeNetwork, 0, "request timed out after %s", c.timeout)
		}
		return nil, errs.New(errs.ErrorTypeNetwork, 0, "%v", err)
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, errs.New(errs.FromStatusCode(resp.StatusCode), resp.StatusCode, "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}
	return body, nil
}
