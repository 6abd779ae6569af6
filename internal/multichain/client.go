package multichain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

const (
	DefaultURL      = "http://t2.coblo.net:9718"
	DefaultUser     = "public"
	DefaultPassword = "public"
	DefaultStream   = "iscc"
)

// StreamItem is a verbose liststreamitems entry. BlockHash is empty while the
// item is unconfirmed.
type StreamItem struct {
	Publishers    []string        `json:"publishers"`
	Keys          []string        `json:"keys"`
	Data          json.RawMessage `json:"data"`
	Confirmations uint64          `json:"confirmations"`
	BlockHash     string          `json:"blockhash"`
	TxID          string          `json:"txid"`
	Vout          uint32          `json:"vout"`
	Time          int64           `json:"time"`
}

// Payload is the structured part of a stream item published as {"json": {...}}.
type Payload struct {
	Tophash string          `json:"tophash"`
	Title   string          `json:"title"`
	Extra   string          `json:"extra"`
	Meta    json.RawMessage `json:"meta"`
}

// JSONPayload extracts the structured payload. Items carrying raw hex data or
// no data report false.
func (i StreamItem) JSONPayload() (Payload, bool) {
	if len(i.Data) == 0 || i.Data[0] != '{' {
		return Payload{}, false
	}
	var wrapper struct {
		JSON *Payload `json:"json"`
	}
	if err := json.Unmarshal(i.Data, &wrapper); err != nil || wrapper.JSON == nil {
		return Payload{}, false
	}
	return *wrapper.JSON, true
}

type streamInfo struct {
	Name  string `json:"name"`
	Items uint64 `json:"items"`
}

// Client talks to a MultiChain node over JSON-RPC with basic auth.
type Client struct {
	rpcClient *rpc.Client
	limiter   *rate.Limiter
}

// NewClient dials rpcURL. A positive requestsPerSecond paces every call.
func NewClient(ctx context.Context, rpcURL, user, password string, requestsPerSecond float64) (*Client, error) {
	credentials := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	rpcClient, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHeader("Authorization", "Basic "+credentials))
	if err != nil {
		return nil, fmt.Errorf("dial multichain: %w", err)
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Client{rpcClient: rpcClient, limiter: limiter}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := c.rpcClient.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// ListStreamItems returns up to count items of stream starting at offset start,
// in global ledger order.
func (c *Client) ListStreamItems(ctx context.Context, stream string, start, count uint64) ([]StreamItem, error) {
	var items []StreamItem
	if err := c.call(ctx, &items, "liststreamitems", stream, true, count, start, false); err != nil {
		return nil, err
	}
	return items, nil
}

// StreamLength returns the number of items published to stream.
func (c *Client) StreamLength(ctx context.Context, stream string) (uint64, error) {
	var streams []streamInfo
	if err := c.call(ctx, &streams, "liststreams", stream); err != nil {
		return 0, err
	}
	for _, info := range streams {
		if info.Name == stream {
			return info.Items, nil
		}
	}
	return 0, fmt.Errorf("stream %s not found", stream)
}
