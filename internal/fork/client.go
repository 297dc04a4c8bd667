// Copyright 2025 The Katana Authors
// This file is part of Katana.
//
// Katana is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Katana is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Katana. If not, see <http://www.gnu.org/licenses/>.

// Package fork is the read-through backend: state at
// or below the fork point resolves against a remote Starknet JSON-RPC
// endpoint, is cached append-only in the ForkCache table, and everything
// above the fork point stays local.
package fork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/katana-sequencer/katana/internal/felt"
)

// Remote is the slice of the remote Starknet RPC surface the fork
// backend needs. Implementations must be safe for concurrent use.
type Remote interface {
	StorageAt(ctx context.Context, addr, key felt.Felt, blockNumber uint64) (felt.Felt, error)
	NonceAt(ctx context.Context, addr felt.Felt, blockNumber uint64) (felt.Felt, error)
	ClassHashAt(ctx context.Context, addr felt.Felt, blockNumber uint64) (felt.Felt, error)
	BlockHashByNumber(ctx context.Context, blockNumber uint64) (felt.Felt, error)
}

// RemoteError wraps any remote-call failure that survived the retry
// policy, retryable at the caller).
type RemoteError struct {
	Err error
}

func (e *RemoteError) Error() string { return "fork: remote error: " + e.Err.Error() }
func (e *RemoteError) Unwrap() error { return e.Err }

// ErrRemoteTimeout marks a deadline exceeded talking to the remote.
var ErrRemoteTimeout = errors.New("fork: remote timeout")

// Client is the JSON-RPC 2.0 HTTP implementation of Remote with a
// bounded exponential-backoff retry policy.
type Client struct {
	url        string
	httpClient *http.Client
	maxRetries uint64
}

// NewClient builds a Client against url. maxRetries bounds the retry
// attempts per call (0 means the default of 3).
func NewClient(url string, maxRetries uint64) *Client {
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: maxRetries,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type blockID struct {
	BlockNumber uint64 `json:"block_number"`
}

// call performs one JSON-RPC method call with retries. A context
// deadline that expires surfaces as Remote(Timeout).
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	op := func() error {
		body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http status %d", resp.StatusCode)
		}
		var out rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		if out.Error != nil {
			// RPC-level errors are not transport flakes; don't retry.
			return backoff.Permanent(fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message))
		}
		return json.Unmarshal(out.Result, result)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &RemoteError{Err: ErrRemoteTimeout}
		}
		return &RemoteError{Err: err}
	}
	return nil
}

func (c *Client) callFelt(ctx context.Context, method string, params any) (felt.Felt, error) {
	var hex string
	if err := c.call(ctx, method, params, &hex); err != nil {
		return felt.Felt{}, err
	}
	f, err := felt.FromHex(hex)
	if err != nil {
		return felt.Felt{}, &RemoteError{Err: err}
	}
	return f, nil
}

func (c *Client) StorageAt(ctx context.Context, addr, key felt.Felt, blockNumber uint64) (felt.Felt, error) {
	return c.callFelt(ctx, "starknet_getStorageAt", []any{addr.Hex(), key.Hex(), blockID{BlockNumber: blockNumber}})
}

func (c *Client) NonceAt(ctx context.Context, addr felt.Felt, blockNumber uint64) (felt.Felt, error) {
	return c.callFelt(ctx, "starknet_getNonce", []any{blockID{BlockNumber: blockNumber}, addr.Hex()})
}

func (c *Client) ClassHashAt(ctx context.Context, addr felt.Felt, blockNumber uint64) (felt.Felt, error) {
	return c.callFelt(ctx, "starknet_getClassHashAt", []any{blockID{BlockNumber: blockNumber}, addr.Hex()})
}

func (c *Client) BlockHashByNumber(ctx context.Context, blockNumber uint64) (felt.Felt, error) {
	var out struct {
		BlockHash string `json:"block_hash"`
	}
	if err := c.call(ctx, "starknet_getBlockWithTxHashes", []any{blockID{BlockNumber: blockNumber}}, &out); err != nil {
		return felt.Felt{}, err
	}
	f, err := felt.FromHex(out.BlockHash)
	if err != nil {
		return felt.Felt{}, &RemoteError{Err: err}
	}
	return f, nil
}
