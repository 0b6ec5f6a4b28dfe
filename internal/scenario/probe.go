package scenario

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrSiteUnreachable is returned when the site does not answer the probe.
var ErrSiteUnreachable = errors.New("site unreachable")

// Prober checks that siteURL answers.
type Prober func(ctx context.Context, siteURL string) error

// HTTPProber dials the site and sends a GET with the basic-auth credentials.
// Any answer below 500 passes except 401, which means the credentials are
// wrong. A nil client uses http.DefaultClient.
func HTTPProber(client *http.Client, user, password string) Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, siteURL string) error {
		u, err := url.Parse(siteURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: invalid url %q", ErrSiteUnreachable, siteURL)
		}
		host := u.Host
		if u.Port() == "" {
			port := "80"
			if u.Scheme == "https" {
				port = "443"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSiteUnreachable, host, err)
		}
		_ = conn.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
		if err != nil {
			return err
		}
		if user != "" {
			req.SetBasicAuth(user, password)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSiteUnreachable, err)
		}
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s rejected the basic auth credentials", ErrSiteUnreachable, siteURL)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %s answered %s", ErrSiteUnreachable, siteURL, resp.Status)
		}
		return nil
	}
}
