// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spendingapp/custody/metrics"
	"github.com/spendingapp/custody/pkg/lovelace"
	"go.uber.org/ratelimit"
)

const (
	// DefaultBlockfrostURL is the Blockfrost endpoint of the preprod test
	// network.
	DefaultBlockfrostURL = "https://cardano-preprod.blockfrost.io/api/v0"

	// DefaultRequestsPerSecond is the default request budget. Blockfrost
	// allows a sustained 10 requests per second per project.
	DefaultRequestsPerSecond = 10

	// DefaultRequestTimeout bounds a single HTTP round trip.
	DefaultRequestTimeout = 30 * time.Second

	// projectIDHeader carries the Blockfrost project id.
	projectIDHeader = "project_id"

	// cborContentType is the content type of a raw transaction submission.
	cborContentType = "application/cbor"

	// utxoPageSize is the largest page Blockfrost returns.
	utxoPageSize = 100

	// maxBodySize bounds the response bodies read from the provider.
	maxBodySize = 8 << 20
)

var (
	// ErrMissingProjectID is returned when no Blockfrost project id is
	// configured.
	ErrMissingProjectID = errors.New("blockfrost project id is required")

	// ErrUnknownBlockfrostNetwork is returned for a network Blockfrost
	// does not serve.
	ErrUnknownBlockfrostNetwork = errors.New("no blockfrost endpoint for " +
		"network")

	// blockfrostURLs maps network names onto their Blockfrost endpoint.
	// The generic testnet name selects preprod.
	blockfrostURLs = map[string]string{
		"mainnet": "https://cardano-mainnet.blockfrost.io/api/v0",
		"preprod": DefaultBlockfrostURL,
		"preview": "https://cardano-preview.blockfrost.io/api/v0",
		"testnet": DefaultBlockfrostURL,
	}

	// json mirrors encoding/json on top of json-iterator.
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// BlockfrostURL returns the Blockfrost endpoint serving the named network.
func BlockfrostURL(network string) (string, error) {
	u, ok := blockfrostURLs[strings.ToLower(strings.TrimSpace(network))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBlockfrostNetwork,
			network)
	}

	return u, nil
}

// BlockfrostConfig holds the settings of a BlockfrostClient.
type BlockfrostConfig struct {
	// BaseURL is the API root including the version, e.g.
	// DefaultBlockfrostURL.
	BaseURL string

	// ProjectID authenticates the requests.
	ProjectID string

	// Network labels the metrics of the client.
	Network string

	// RequestsPerSecond limits the request rate. Zero selects the default
	// and a negative value disables the limit.
	RequestsPerSecond int

	// Timeout bounds a single request when HTTPClient is not set.
	Timeout time.Duration

	// HTTPClient overrides the HTTP client used to reach the API.
	HTTPClient *http.Client
}

// BlockfrostClient is a Provider backed by the Blockfrost REST API.
type BlockfrostClient struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
	limiter    ratelimit.Limiter
	metrics    *metrics.Provider
}

// A compile time check to ensure that BlockfrostClient implements the
// Provider interface.
var _ Provider = (*BlockfrostClient)(nil)

// NewBlockfrostClient returns a client for the given configuration.
func NewBlockfrostClient(cfg BlockfrostConfig) (*BlockfrostClient, error) {
	if cfg.ProjectID == "" {
		return nil, ErrMissingProjectID
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBlockfrostURL
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid blockfrost url %q: %w", baseURL,
			err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultRequestTimeout
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter ratelimit.Limiter
	switch {
	case cfg.RequestsPerSecond < 0:
		limiter = ratelimit.NewUnlimited()

	case cfg.RequestsPerSecond == 0:
		limiter = ratelimit.New(DefaultRequestsPerSecond)

	default:
		limiter = ratelimit.New(cfg.RequestsPerSecond)
	}

	return &BlockfrostClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  cfg.ProjectID,
		httpClient: httpClient,
		limiter:    limiter,
		metrics:    metrics.NewProvider(cfg.Network),
	}, nil
}

// amountResponse is a single entry of the amount array of an output.
type amountResponse struct {
	Unit     string `json:"unit"`
	Quantity string `json:"quantity"`
}

// utxoResponse is a single output as returned by /addresses/{a}/utxos.
type utxoResponse struct {
	Address     string           `json:"address"`
	TxHash      string           `json:"tx_hash"`
	OutputIndex uint32           `json:"output_index"`
	Amount      []amountResponse `json:"amount"`
	DataHash    *string          `json:"data_hash"`
	InlineDatum *string          `json:"inline_datum"`
}

// apiError is the error body Blockfrost returns with non-2xx responses.
type apiError struct {
	StatusCode int    `json:"status_code"`
	Kind       string `json:"error"`
	Message    string `json:"message"`
}

// Error returns the status line and message of the API error.
func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// FetchAddressUTxOs returns every unspent output at the address, walking all
// result pages. An address the provider has never seen yields no funds.
func (c *BlockfrostClient) FetchAddressUTxOs(ctx context.Context,
	address string) ([]Fund, error) {

	start := time.Now()
	funds, err := c.fetchAddressUTxOs(ctx, address)
	c.metrics.Observe("fetch_utxos", err, start)

	if err != nil {
		log.Warnf("Unable to fetch utxos of %v: %v", address, err)
		return nil, err
	}

	log.Debugf("Fetched %d utxos of %v", len(funds), address)

	return funds, nil
}

func (c *BlockfrostClient) fetchAddressUTxOs(ctx context.Context,
	address string) ([]Fund, error) {

	var funds []Fund
	for page := 1; ; page++ {
		batch, err := c.fetchUTxOPage(ctx, address, page)
		if err != nil {
			return nil, err
		}

		for _, u := range batch {
			fund, err := u.toFund(address)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable,
					err)
			}

			funds = append(funds, fund)
		}

		if len(batch) < utxoPageSize {
			return funds, nil
		}
	}
}

// fetchUTxOPage fetches a single page of outputs. A 404 means the address
// has no history and is reported as an empty page.
func (c *BlockfrostClient) fetchUTxOPage(ctx context.Context, address string,
	page int) ([]utxoResponse, error) {

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("count", strconv.Itoa(utxoPageSize))

	endpoint := c.baseURL + "/addresses/" + url.PathEscape(address) +
		"/utxos?" + query.Encode()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, endpoint, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var batch []utxoResponse
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("%w: decode utxos: %w",
				ErrProviderUnavailable, err)
		}

		return batch, nil

	case http.StatusNotFound:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable,
			parseAPIError(status, body))
	}
}

// SubmitTx posts the signed transaction and returns its hash.
func (c *BlockfrostClient) SubmitTx(ctx context.Context,
	signedTx string) (string, error) {

	start := time.Now()
	hash, err := c.submitTx(ctx, signedTx)
	c.metrics.Observe("submit_tx", err, start)

	if err != nil {
		log.Warnf("Transaction submission failed: %v", err)
		return "", err
	}

	log.Infof("Submitted transaction %v", hash)

	return hash, nil
}

func (c *BlockfrostClient) submitTx(ctx context.Context,
	signedTx string) (string, error) {

	raw, err := hex.DecodeString(strings.TrimSpace(signedTx))
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("%w: signed transaction is not hex",
			ErrSubmitRejected)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/tx/submit",
		bytes.NewReader(raw),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", cborContentType)

	status, body, err := c.do(req)
	if err != nil {
		return "", err
	}

	switch {
	case status == http.StatusOK:
		var hash string
		if err := json.Unmarshal(body, &hash); err != nil {
			return "", fmt.Errorf("%w: decode tx hash: %w",
				ErrProviderUnavailable, err)
		}

		return hash, nil

	case status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError:

		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable,
			parseAPIError(status, body))

	default:
		return "", MapSubmitErr(parseAPIError(status, body).Message)
	}
}

// do sends the request within the rate limit and returns the status code and
// body of the response. Transport failures wrap ErrProviderUnavailable.
func (c *BlockfrostClient) do(req *http.Request) (int, []byte, error) {
	c.limiter.Take()

	req.Header.Set(projectIDHeader, c.projectID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %w",
			ErrProviderUnavailable, err)
	}

	return resp.StatusCode, body, nil
}

// parseAPIError decodes an error body, falling back to the raw text when the
// body is not the documented JSON shape.
func parseAPIError(status int, body []byte) *apiError {
	apiErr := &apiError{}
	if err := json.Unmarshal(body, apiErr); err != nil ||
		apiErr.Message == "" {

		apiErr.Message = strings.TrimSpace(string(body))
	}

	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = status
	}

	if apiErr.Kind == "" {
		apiErr.Kind = http.StatusText(status)
	}

	return apiErr
}

// toFund validates the response entry and converts it into a Fund. The
// queried address is used when the entry omits its own.
func (u utxoResponse) toFund(address string) (Fund, error) {
	ref, err := ParseOutRef(u.TxHash + outRefSeparator +
		strconv.FormatUint(uint64(u.OutputIndex), 10))
	if err != nil {
		return Fund{}, err
	}

	assets := make([]Asset, 0, len(u.Amount))
	for _, a := range u.Amount {
		if _, err := lovelace.ParseAmount(a.Quantity); err != nil {
			return Fund{}, fmt.Errorf("utxo %v: quantity of %s: %w",
				ref, a.Unit, err)
		}

		assets = append(assets, Asset{Unit: a.Unit, Quantity: a.Quantity})
	}

	fund := Fund{
		Ref:         ref,
		Address:     u.Address,
		Assets:      assets,
		InlineDatum: fn.None[[]byte](),
	}
	if fund.Address == "" {
		fund.Address = address
	}

	if u.DataHash != nil {
		fund.DatumHash = *u.DataHash
	}

	if u.InlineDatum != nil {
		datum, err := hex.DecodeString(*u.InlineDatum)
		if err != nil {
			return Fund{}, fmt.Errorf("utxo %v: inline datum: %w", ref,
				err)
		}

		fund.InlineDatum = fn.Some(datum)
	}

	return fund, nil
}
