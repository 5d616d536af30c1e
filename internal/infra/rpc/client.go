package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"convert_invoices/internal/domain"
	"convert_invoices/internal/infra"

	"github.com/google/uuid"
)

const (
	MethodGetCurrencyConverters = "getcurrencyconverters"
	MethodEstimateConversion    = "estimateconversion"

	maxResponseBytes = 16 << 20
)

// Client talks JSON-RPC 2.0 to the pricing service over a single POST endpoint.
// Every failure is returned as a domain ExternalServiceError. The client never retries.
type Client struct {
	url        string
	httpClient *http.Client
	breaker    *infra.CircuitBreaker
	limiter    *infra.RateLimiter
	user       string
	password   string
	newID      func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(cb *infra.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithLimiter throttles outgoing calls.
func WithLimiter(rl *infra.RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithCredentials sends HTTP basic auth, as a private daemon expects.
func WithCredentials(user, password string) Option {
	return func(c *Client) {
		c.user = user
		c.password = password
	}
}

// NewClient creates a client for the given endpoint.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig wires timeout, breaker, limiter and optional credentials.
func NewClientFromConfig(cfg *infra.Config, secrets *infra.SecretConfig) *Client {
	opts := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.RPCTimeout()}),
		WithBreaker(infra.NewCircuitBreaker(cfg.BreakerConfig())),
		WithLimiter(infra.NewRateLimiter(cfg.RPC.RateLimit.Burst, cfg.RPC.RateLimit.PerSecond)),
	}
	if secrets.HasCredentials() {
		opts = append(opts, WithCredentials(secrets.RPC.User, secrets.RPC.Password))
	}
	return NewClient(cfg.RPC.URL, opts...)
}

// GetConverters returns every converter involving from, narrowed to those
// also involving to when it is non-empty.
func (c *Client) GetConverters(ctx context.Context, from, to string) ([]domain.ConverterCurrency, error) {
	params := []any{from}
	if to != "" {
		params = append(params, to)
	}

	var wire []converterWire
	if err := c.call(ctx, MethodGetCurrencyConverters, params, &wire); err != nil {
		return nil, err
	}

	converters := make([]domain.ConverterCurrency, 0, len(wire))
	for i, w := range wire {
		conv, err := w.toDomain()
		if err != nil {
			return nil, domain.ExternalServiceError(MethodGetCurrencyConverters,
				fmt.Errorf("converter %d: %w", i, err))
		}
		converters = append(converters, conv)
	}
	return converters, nil
}

// EstimateConversion prices req. The returned Fee is left zero; callers own
// the fee derivation because only they know the requested amount semantics.
func (c *Client) EstimateConversion(ctx context.Context, req domain.ConversionRequest) (domain.EstimateResult, error) {
	var wire estimateWire
	if err := c.call(ctx, MethodEstimateConversion, []any{newConversionParams(req)}, &wire); err != nil {
		return domain.EstimateResult{}, err
	}

	res, err := wire.toDomain()
	if err != nil {
		return domain.EstimateResult{}, domain.ExternalServiceError(MethodEstimateConversion, err)
	}
	return res, nil
}

// BreakerState reports the circuit breaker state, or "DISABLED" without one.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "DISABLED"
	}
	return c.breaker.GetState().String()
}

// call performs one request and decodes result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.ExternalServiceError(method, err)
		}
	}

	do := func(ctx context.Context) error { return c.doCall(ctx, method, params, out) }

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, do)
	} else {
		err = do(ctx)
	}
	if err != nil {
		slog.Warn("RPC call failed", slog.String("method", method), slog.Any("error", err))
		return domain.ExternalServiceError(method, err)
	}
	return nil
}

func (c *Client) doCall(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.newID(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", infra.GetUserAgent())
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	slog.Debug("RPC request", slog.String("method", method), slog.Any("params", params))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	// Daemons report method errors with a non-2xx status and an error body.
	if decodeErr == nil && env.Error != nil {
		return fmt.Errorf("service error %d: %s", env.Error.Code, env.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return errors.New("response has no result")
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (w converterWire) toDomain() (domain.ConverterCurrency, error) {
	if w.FullyQualifiedName == "" {
		return domain.ConverterCurrency{}, errors.New("missing fullyqualifiedname")
	}

	conv := domain.ConverterCurrency{
		FullyQualifiedName: w.FullyQualifiedName,
		Height:             w.Height,
		Currencies:         map[string]domain.CurrencyState{},
	}
	if w.LastNotarization == nil || w.LastNotarization.CurrencyState == nil {
		// No notarized state yet: the converter holds nothing we can price against.
		return conv, nil
	}

	state := w.LastNotarization.CurrencyState
	for id, cs := range state.Currencies {
		conv.Currencies[id] = domain.CurrencyState{
			LastConversionPrice: cs.LastConversionPrice,
			ViaConversionPrice:  cs.ViaConversionPrice,
			ReserveIn:           cs.ReserveIn,
			ReserveOut:          cs.ReserveOut,
			ConversionFees:      cs.ConversionFees,
			Fees:                cs.Fees,
		}
	}

	conv.Reserves = make([]domain.ReserveCurrency, 0, len(state.ReserveCurrencies))
	for _, r := range state.ReserveCurrencies {
		if r.CurrencyID == "" {
			return domain.ConverterCurrency{}, fmt.Errorf("%s: reserve without currencyid", w.FullyQualifiedName)
		}
		if !r.Reserves.Valid || r.Reserves.Decimal.IsNegative() {
			return domain.ConverterCurrency{}, fmt.Errorf("%s: invalid reserves for %s", w.FullyQualifiedName, r.CurrencyID)
		}
		conv.Reserves = append(conv.Reserves, domain.ReserveCurrency{
			CurrencyID:     r.CurrencyID,
			Reserves:       r.Reserves.Decimal,
			Weight:         r.Weight,
			PriceInReserve: r.PriceInReserve,
		})
	}
	return conv, nil
}

func (w estimateWire) toDomain() (domain.EstimateResult, error) {
	if !w.EstimatedCurrencyOut.Valid {
		return domain.EstimateResult{}, errors.New("missing estimatedcurrencyout")
	}
	if !w.NetInputAmount.Valid {
		return domain.EstimateResult{}, errors.New("missing netinputamount")
	}
	if w.EstimatedCurrencyOut.Decimal.IsNegative() || w.NetInputAmount.Decimal.IsNegative() {
		return domain.EstimateResult{}, errors.New("negative amounts in estimate")
	}
	return domain.EstimateResult{
		EstimatedOut:     w.EstimatedCurrencyOut.Decimal,
		NetInput:         w.NetInputAmount.Decimal,
		InputCurrencyID:  w.InputCurrencyID,
		OutputCurrencyID: w.OutputCurrencyID,
	}, nil
}
