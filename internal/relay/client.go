package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paircrypt/internal/domain"
)

// ErrNotFound is returned when the directory has no bundle for an address.
var ErrNotFound = errors.New("relay: not found")

// Client is an HTTP client for the relay.
type Client struct {
	Base string
	HTTP *http.Client
}

// NewClient returns a Client for the relay at base.
func NewClient(base string) *Client {
	return &Client{
		Base: strings.TrimRight(base, "/"),
		HTTP: &http.Client{Timeout: 30 * time.Second},
	}
}

type sendRequest struct {
	From     domain.Address `json:"from"`
	Envelope []byte         `json:"envelope"`
}

type ackRequest struct {
	Count int `json:"count"`
}

// PublishBundle stores bundle under addr, replacing any previous one.
func (c *Client) PublishBundle(ctx context.Context, addr domain.Address, bundle domain.KeyBundle) error {
	return c.do(ctx, http.MethodPut, bundlePath(addr), bundle, nil)
}

// FetchBundle returns the bundle published for addr.
func (c *Client) FetchBundle(ctx context.Context, addr domain.Address) (domain.KeyBundle, error) {
	var out domain.KeyBundle
	if err := c.do(ctx, http.MethodGet, bundlePath(addr), nil, &out); err != nil {
		return domain.KeyBundle{}, err
	}
	return out, nil
}

// SendMessage queues an encoded envelope for to.
func (c *Client) SendMessage(ctx context.Context, from, to domain.Address, envelope []byte) error {
	return c.do(ctx, http.MethodPost, mailboxPath(to), sendRequest{From: from, Envelope: envelope}, nil)
}

// FetchMessages returns up to limit queued items for addr without removing them.
func (c *Client) FetchMessages(ctx context.Context, addr domain.Address, limit int) ([]domain.MailboxItem, error) {
	path := mailboxPath(addr)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.MailboxItem
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AckMessages removes the oldest count items from the mailbox of addr.
func (c *Client) AckMessages(ctx context.Context, addr domain.Address, count int) error {
	return c.do(ctx, http.MethodPost, mailboxPath(addr)+"/ack", ackRequest{Count: count}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("relay %s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func bundlePath(addr domain.Address) string  { return "/v1/bundles/" + url.PathEscape(addr.String()) }
func mailboxPath(addr domain.Address) string { return "/v1/messages/" + url.PathEscape(addr.String()) }

// Compile-time assertion that Client implements domain.RelayClient.
var _ domain.RelayClient = (*Client)(nil)
