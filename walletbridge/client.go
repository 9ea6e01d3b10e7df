// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletbridge talks to a local CIP-30 wallet bridge over HTTP. The
// bridge owns the browser wallet and a transaction builder, so the Client
// serves both as the custody Wallet and as its Composer.
package walletbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spendingapp/custody/chain"
	"github.com/spendingapp/custody/custody"
)

const (
	// DefaultURL is where the bridge listens by default.
	DefaultURL = "http://127.0.0.1:8090"

	// DefaultTimeout bounds a single request. Signing waits on the user,
	// so it is generous.
	DefaultTimeout = 2 * time.Minute

	// maxBodySize bounds the response bodies read from the bridge.
	maxBodySize = 4 << 20
)

// Error codes reported by the bridge.
const (
	CodeUserDeclined      = "UserDeclined"
	CodeInsufficientFunds = "InsufficientFunds"
	CodeScriptEvaluation  = "ScriptEvaluation"
	CodeNotConnected      = "NotConnected"
)

var (
	// ErrBridgeUnavailable is returned when the bridge cannot be reached
	// or answers with something other than its documented responses.
	ErrBridgeUnavailable = errors.New("wallet bridge unavailable")

	// ErrBridge is returned for bridge errors without a known code.
	ErrBridge = errors.New("wallet bridge error")

	// json mirrors encoding/json on top of json-iterator.
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// codeErrors maps bridge error codes onto custody errors.
var codeErrors = map[string]error{
	CodeUserDeclined:      custody.ErrSignDeclined,
	CodeInsufficientFunds: custody.ErrInsufficientFunds,
	CodeScriptEvaluation:  custody.ErrScriptValidationFailed,
	CodeNotConnected:      custody.ErrWalletDisconnected,
}

// Config holds the settings of a Client.
type Config struct {
	// URL is the root of the bridge API. DefaultURL is used when empty.
	URL string

	// Timeout bounds a single request when HTTPClient is not set.
	Timeout time.Duration

	// HTTPClient overrides the HTTP client used to reach the bridge.
	HTTPClient *http.Client
}

// Client is a custody Wallet and Composer backed by the bridge.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// A compile time check to ensure that Client implements the Wallet and
// Composer interfaces.
var (
	_ custody.Wallet   = (*Client)(nil)
	_ custody.Composer = (*Client)(nil)
)

// New returns a bridge client for the given configuration.
func New(cfg Config) (*Client, error) {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = DefaultURL
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid bridge url %q: %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// Connected reports whether the bridge has an enabled wallet. An unreachable
// bridge counts as disconnected.
func (c *Client) Connected(ctx context.Context) bool {
	var resp statusResponse
	if err := c.call(ctx, http.MethodGet, "/wallet/status", nil,
		&resp); err != nil {

		log.Debugf("Wallet status unavailable: %v", err)
		return false
	}

	return resp.Connected
}

// ChangeAddress returns the wallet's change address.
func (c *Client) ChangeAddress(ctx context.Context) (string, error) {
	var resp addressResponse
	err := c.call(ctx, http.MethodGet, "/wallet/change-address", nil, &resp)
	if err != nil {
		return "", err
	}

	if resp.Address == "" {
		return "", fmt.Errorf("%w: empty change address",
			ErrBridgeUnavailable)
	}

	return resp.Address, nil
}

// Collateral returns the outputs the wallet sets aside as collateral.
func (c *Client) Collateral(ctx context.Context) ([]chain.Fund, error) {
	var resp collateralResponse
	err := c.call(ctx, http.MethodGet, "/wallet/collateral", nil, &resp)
	if err != nil {
		return nil, err
	}

	funds := make([]chain.Fund, 0, len(resp.UTxOs))
	for _, u := range resp.UTxOs {
		fund, err := fundFromJSON(u)
		if err != nil {
			return nil, fmt.Errorf("%w: collateral: %w",
				ErrBridgeUnavailable, err)
		}

		funds = append(funds, fund)
	}

	return funds, nil
}

// SignTx asks the wallet to sign the transaction.
func (c *Client) SignTx(ctx context.Context, unsignedTx string,
	partial bool) (string, error) {

	req := &signRequest{Tx: unsignedTx, Partial: partial}

	var resp txResponse
	if err := c.call(ctx, http.MethodPost, "/wallet/sign", req,
		&resp); err != nil {

		return "", err
	}

	if resp.Tx == "" {
		return "", fmt.Errorf("%w: empty signed transaction",
			ErrBridgeUnavailable)
	}

	return resp.Tx, nil
}

// Compose asks the bridge to balance the intent into an unsigned
// transaction.
func (c *Client) Compose(ctx context.Context,
	intent *custody.TxIntent) (string, error) {

	if intent == nil {
		return "", custody.ErrNilTxIntent
	}

	var resp txResponse
	err := c.call(
		ctx, http.MethodPost, "/tx/compose", newComposeRequest(intent),
		&resp,
	)
	if err != nil {
		return "", err
	}

	if resp.Tx == "" {
		return "", fmt.Errorf("%w: empty composed transaction",
			ErrBridgeUnavailable)
	}

	log.Debugf("Composed transaction of %d bytes", len(resp.Tx)/2)

	return resp.Tx, nil
}

// call sends a JSON request and decodes a 2xx JSON response into out. Error
// responses are mapped through codeErrors.
func (c *Client) call(ctx context.Context, method, path string, in,
	out any) error {

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBridgeUnavailable, err)
	}

	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBridgeUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrBridgeUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w",
			ErrBridgeUnavailable, path, err)
	}

	return nil
}

// parseError turns an error response into a custody error when its code is
// known.
func parseError(status int, raw []byte) error {
	var resp errorResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Code == "" {
		msg := strings.TrimSpace(string(raw))
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d %s", ErrBridgeUnavailable,
				status, msg)
		}

		return fmt.Errorf("%w: %d %s", ErrBridge, status, msg)
	}

	if mapped, ok := codeErrors[resp.Code]; ok {
		return fmt.Errorf("%w: %s", mapped, resp.Message)
	}

	return fmt.Errorf("%w: %s: %s", ErrBridge, resp.Code, resp.Message)
}
