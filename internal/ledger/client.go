// Package ledger talks to the external value-transfer ledger over JSON-RPC.
package ledger

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"datalabel-backend/internal/metrics"

	"github.com/ethereum/go-ethereum/rpc"
)

// ConfirmationStatus outcome of a confirmation check
type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "Confirmed"
	StatusFailed    ConfirmationStatus = "Failed"
	StatusPending   ConfirmationStatus = "Pending"
)

// Client external ledger operations used by settlement
type Client interface {
	LatestBlockhash(ctx context.Context) (Blockhash, uint64, error)
	BlockHeight(ctx context.Context) (uint64, error)
	Submit(ctx context.Context, tx *Transaction) (string, error)
	Confirm(ctx context.Context, signature string) (ConfirmationStatus, error)
	Balance(ctx context.Context, address string) (uint64, error)
}

// RPCClient JSON-RPC 2.0 ledger client
type RPCClient struct {
	rpc        *rpc.Client
	commitment string
}

// DialRPC connects to a ledger node
func DialRPC(ctx context.Context, url string, timeout time.Duration, commitment string) (*RPCClient, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if commitment == "" {
		commitment = "confirmed"
	}
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc %s: %w", url, err)
	}
	return &RPCClient{rpc: c, commitment: commitment}, nil
}

// Close releases the underlying connection
func (c *RPCClient) Close() {
	c.rpc.Close()
}

type commitmentConfig struct {
	Commitment string `json:"commitment"`
}

func (c *RPCClient) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, method, args...)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.LedgerRPCDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// LatestBlockhash blockhash and the last block height it stays valid for
func (c *RPCClient) LatestBlockhash(ctx context.Context) (Blockhash, uint64, error) {
	var resp struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := c.call(ctx, &resp, "getLatestBlockhash", commitmentConfig{c.commitment}); err != nil {
		return Blockhash{}, 0, err
	}
	h, err := ParseBlockhash(resp.Value.Blockhash)
	if err != nil {
		return Blockhash{}, 0, err
	}
	return h, resp.Value.LastValidBlockHeight, nil
}

// BlockHeight current block height
func (c *RPCClient) BlockHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := c.call(ctx, &height, "getBlockHeight", commitmentConfig{c.commitment}); err != nil {
		return 0, err
	}
	return height, nil
}

// Submit sends a signed transaction and returns its signature
func (c *RPCClient) Submit(ctx context.Context, tx *Transaction) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(tx.Serialize())
	opts := map[string]interface{}{
		"encoding":            "base64",
		"preflightCommitment": c.commitment,
	}
	var sig string
	if err := c.call(ctx, &sig, "sendTransaction", encoded, opts); err != nil {
		return "", err
	}
	return sig, nil
}

// Confirm maps the node's signature status onto Confirmed, Failed or Pending
func (c *RPCClient) Confirm(ctx context.Context, signature string) (ConfirmationStatus, error) {
	var resp struct {
		Value []*struct {
			Err                interface{} `json:"err"`
			ConfirmationStatus string      `json:"confirmationStatus"`
		} `json:"value"`
	}
	opts := map[string]bool{"searchTransactionHistory": true}
	if err := c.call(ctx, &resp, "getSignatureStatuses", []string{signature}, opts); err != nil {
		return "", err
	}
	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return StatusPending, nil
	}
	st := resp.Value[0]
	if st.Err != nil {
		return StatusFailed, nil
	}
	switch st.ConfirmationStatus {
	case "confirmed", "finalized":
		if c.commitment == "finalized" && st.ConfirmationStatus != "finalized" {
			return StatusPending, nil
		}
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

// Balance lamports held by an address
func (c *RPCClient) Balance(ctx context.Context, address string) (uint64, error) {
	if _, err := ParsePublicKey(address); err != nil {
		return 0, err
	}
	var resp struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, &resp, "getBalance", address, commitmentConfig{c.commitment}); err != nil {
		return 0, err
	}
	return resp.Value, nil
}
