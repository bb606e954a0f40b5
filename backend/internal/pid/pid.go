/*

Package `pid` registers persistent identifiers for vault packages with an
external handle service.  Registration is idempotent: a reference that
already has a handle returns the existing one, so the secure workflow can
safely re-run after a partial failure.

*/
package pid

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"
)

type Config struct {
	// `BaseURL` is the handle service endpoint, like
	// `https://pid.example.org/api`.
	BaseURL string

	// `Prefix` is the handle prefix assigned to this deployment.
	Prefix string

	// `Client` may override the HTTP client, for example to set TLS
	// options.  Nil selects a client with a default timeout.
	Client *http.Client
}

type Client struct {
	baseURL string
	prefix  string
	httpc   *http.Client
}

func New(cfg *Config) *Client {
	httpc := cfg.Client
	if httpc == nil {
		httpc = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		prefix:  cfg.Prefix,
		httpc:   httpc,
	}
}

type handle struct {
	Pid string `json:"pid"`
	Ref string `json:"ref"`
	URL string `json:"url,omitempty"`
}

// `Register()` returns the handle for `ref`, creating it if the service
// does not know it yet.  `target` is the resolve URL stored with a new
// handle.
func (c *Client) Register(ref, target string) (string, error) {
	if pid, ok, err := c.lookup(ref); err != nil {
		return "", err
	} else if ok {
		return pid, nil
	}
	return c.create(ref, target)
}

func (c *Client) lookup(ref string) (string, bool, error) {
	u := c.baseURL + "/handles/" + url.PathEscape(ref)
	resp, err := c.httpc.Get(u)
	if err != nil {
		return "", false, &ServiceError{Op: OpLookup, Err: err}
	}
	defer drain(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil
	case resp.StatusCode != http.StatusOK:
		return "", false, &ServiceError{
			Op: OpLookup, StatusCode: resp.StatusCode,
		}
	}
	var h handle
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return "", false, &ServiceError{Op: OpLookup, Err: err}
	}
	return h.Pid, true, nil
}

func (c *Client) create(ref, target string) (string, error) {
	body, err := json.Marshal(handle{
		Pid: c.prefix + "/" + ref,
		Ref: ref,
		URL: target,
	})
	if err != nil {
		return "", &ServiceError{Op: OpCreate, Err: err}
	}
	resp, err := c.httpc.Post(
		c.baseURL+"/handles", "application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", &ServiceError{Op: OpCreate, Err: err}
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusOK {
		return "", &ServiceError{
			Op: OpCreate, StatusCode: resp.StatusCode,
		}
	}
	var h handle
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return "", &ServiceError{Op: OpCreate, Err: err}
	}
	return h.Pid, nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(ioutil.Discard, body)
	_ = body.Close()
}
