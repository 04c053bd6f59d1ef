package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Client speaks JSON-RPC 2.0 to the backend query API at
// http://<host>:<port>/<app>/api_jsonrpc.php.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
	nextID     atomic.Int64
}

func NewClient(host string, port int, app string, timeout time.Duration, logger *slog.Logger) *Client {
	app = strings.Trim(app, "/")
	if app == "" {
		app = "zabbix"
	}
	base := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
	return NewClientForURL(base+"/"+app+"/api_jsonrpc.php", &http.Client{Timeout: timeout}, logger)
}

// NewClientForURL builds a Client against a full endpoint URL. Tests use it
// to point at an httptest.Server.
func NewClientForURL(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, url: url, logger: logger}
}

func (c *Client) URL() string {
	return c.url
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Auth    string `json:"auth,omitempty"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error"`
	ID      int64           `json:"id"`
}

// Call invokes method with params and decodes the result member into out.
// An "error" member in the response is returned as *APIError; HTTP and
// network failures are returned wrapped.
func (c *Client) Call(ctx context.Context, method string, params any, auth string, out any) error {
	encoded, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		Auth:    auth,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("%s: HTTP %d: %s", method, response.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded rpcResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if decoded.Error != nil {
		decoded.Error.Method = method
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
