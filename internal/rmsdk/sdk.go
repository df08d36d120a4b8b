// Package rmsdk is a thin client for the tablet's USB web interface.
//
// The interface is a tiny unauthenticated HTTP server embedded in the
// device firmware: it can list collections, accept document uploads, and
// nothing else. Every call here is a single attempt with a short deadline;
// retry policy belongs to callers.
package rmsdk

import (
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

const (
	// DefaultAddress is where the device shows up over the USB cable.
	DefaultAddress = "10.11.99.1"

	defaultProbeTimeout  = 2 * time.Second
	defaultListTimeout   = 10 * time.Second
	defaultUploadTimeout = 120 * time.Second
)

// Client talks to one device.
type Client struct {
	client  *req.Client
	baseURL string

	probeTimeout  time.Duration
	listTimeout   time.Duration
	uploadTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithProbeTimeout overrides the reachability probe deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeTimeout = d }
}

// WithListTimeout overrides the folder listing deadline.
func WithListTimeout(d time.Duration) Option {
	return func(c *Client) { c.listTimeout = d }
}

// WithUploadTimeout overrides the per-document upload deadline.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) { c.uploadTimeout = d }
}

// New creates a client for the device at address. The address may carry an
// explicit scheme and port; bare hosts get plain http, which is all the
// device speaks.
func New(address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, ErrNoAddress
	}

	baseURL := address
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	// The firmware's web server expects browser-shaped requests; Origin and
	// Referer must point back at the interface itself. Retries stay off:
	// one request, one verdict.
	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(deviceUserAgent).
		SetCommonHeader("Accept", "*/*").
		SetCommonHeader("Connection", "keep-alive").
		SetCommonHeader("Origin", baseURL).
		SetCommonHeader("Referer", baseURL+"/").
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	c := &Client{
		client:        client,
		baseURL:       baseURL,
		probeTimeout:  defaultProbeTimeout,
		listTimeout:   defaultListTimeout,
		uploadTimeout: defaultUploadTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BaseURL returns the resolved device base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
