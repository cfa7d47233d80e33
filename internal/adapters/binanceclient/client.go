package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"skisTrader/internal/domain"
	"skisTrader/internal/ports"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// maxKlinesLimit is the largest page the klines endpoint serves.
	maxKlinesLimit = 1500
)

// klineLister fetches one page of historical klines. Times are unix milliseconds, both inclusive.
type klineLister func(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*futures.Kline, error)

// wsKlineServer opens one kline WebSocket connection.
type wsKlineServer func(symbol, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	listKlines           klineLister
	wsServe              wsKlineServer
	reconnectDelay       time.Duration
	maxReconnectDelay    time.Duration
	maxReconnectAttempts int
	maxFetchRetries      int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Initial backoff, 1s if zero
	MaxReconnectDelay    time.Duration // Backoff cap, 1m if zero
	MaxReconnectAttempts int           // Max consecutive failed stream connections, 10 if zero
	MaxFetchRetries      int           // Retries per klines page, 5 if zero
}

var _ ports.ExchangeClient = (*Client)(nil)

// New creates a new Binance client adapter. Keys are optional since only
// public market data endpoints are used.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance client", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = time.Minute
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.MaxFetchRetries <= 0 {
		cfg.MaxFetchRetries = 5
	}

	c := &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		wsServe:              futures.WsKlineServe,
		reconnectDelay:       cfg.ReconnectDelay,
		maxReconnectDelay:    cfg.MaxReconnectDelay,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		maxFetchRetries:      cfg.MaxFetchRetries,
	}
	c.listKlines = func(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*futures.Kline, error) {
		return client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startMs).
			EndTime(endMs).
			Limit(limit).
			Do(ctx)
	}
	return c, nil
}

func (c *Client) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    c.reconnectDelay,
		Max:    c.maxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1001, -1007: // Disconnected, backend timeout
			mappedErr = ports.ErrExchangeUnavailable
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015: // API-key format invalid, or invalid key, IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "EOF") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// retryable reports whether a translated error is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrExchangeUnavailable) ||
		errors.Is(err, ports.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded)
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs).UTC(), nil
}

// FetchCandles fetches all klines of pair with open time in [start, end),
// paging through the endpoint and retrying transient failures with backoff.
func (c *Client) FetchCandles(ctx context.Context, pair, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "FetchCandles"
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", ports.ErrInvalidRange, start, end)
	}

	var all []*domain.Kline
	fromMs, endMs := start.UnixMilli(), end.UnixMilli()-1
	for fromMs <= endMs {
		page, err := c.fetchPage(ctx, pair, interval, fromMs, endMs)
		if err != nil {
			return nil, err
		}
		for _, bk := range page {
			dk, err := translateBinanceKline(bk, pair, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
			}
			if dk.OpenTime.Before(end) {
				all = append(all, dk)
			}
		}
		if len(page) < maxKlinesLimit {
			break
		}
		fromMs = page[len(page)-1].OpenTime + 1
	}

	c.logger.Debug(ctx, op+" finished", map[string]interface{}{"pair": pair, "interval": interval, "count": len(all)})
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, pair, interval string, fromMs, endMs int64) ([]*futures.Kline, error) {
	op := "FetchCandles"
	b := c.newBackoff()
	for {
		page, err := c.listKlines(ctx, pair, interval, fromMs, endMs, maxKlinesLimit)
		if err == nil {
			return page, nil
		}
		translated := c.handleError(ctx, err, op)
		if !retryable(translated) || int(b.Attempt()) >= c.maxFetchRetries {
			return nil, translated
		}

		delay := b.Duration()
		c.logger.Warn(ctx, op+": retrying page", map[string]interface{}{"pair": pair, "from": fromMs, "attempt": int(b.Attempt()), "delay": delay.String()})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%s canceled: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		}
	}
}

// StreamKlines starts a WebSocket stream for K-line/candlestick data and
// reconnects with exponential backoff until ctx is done or stopCh is signalled.
func (c *Client) StreamKlines(ctx context.Context, symbol, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamKlines"
	wsCtx, cancelWs := context.WithCancel(ctx)
	fields := map[string]interface{}{"symbol": symbol, "interval": interval}

	binanceHandler := func(event *futures.WsKlineEvent) {
		domainKline, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket kline event", fields)
			return
		}
		handler(domainKline)
	}

	binanceErrHandler := func(err error) {
		errHandler(c.handleError(wsCtx, err, op+" WebSocket"))
	}

	go func() {
		defer cancelWs()

		b := c.newBackoff()
		for {
			if wsCtx.Err() != nil {
				return
			}

			innerDoneCh, innerStopCh, connectErr := c.wsServe(symbol, interval, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				translated := c.handleError(wsCtx, connectErr, op+" connection attempt")
				if int(b.Attempt())+1 >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", fields)
					errHandler(translated)
					return
				}
				delay := b.Duration()
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"symbol": symbol, "attempt": int(b.Attempt()), "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established.", fields)
			b.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", fields)
			case <-wsCtx.Done():
				close(innerStopCh)
				<-innerDoneCh
				c.logger.Info(wsCtx, op+": WebSocket stopped.", fields)
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

func parseDecimals(names []string, values ...string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parsing %s '%s': %w", names[i], v, err)
		}
		out[i] = d
	}
	return out, nil
}

var klineFields = []string{"open price", "high price", "low price", "close price", "volume", "taker buy volume"}

func translateWsKline(event *futures.WsKlineEvent) (*domain.Kline, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline
	v, err := parseDecimals(klineFields, k.Open, k.High, k.Low, k.Close, k.Volume, orZero(k.ActiveBuyVolume))
	if err != nil {
		return nil, err
	}
	return &domain.Kline{
		OpenTime:   time.UnixMilli(k.StartTime).UTC(),
		CloseTime:  time.UnixMilli(k.EndTime).UTC(),
		Symbol:     k.Symbol,
		Interval:   k.Interval,
		Open:       v[0],
		High:       v[1],
		Low:        v[2],
		Close:      v[3],
		Volume:     v[4],
		BuyVolume:  v[5],
		TradeCount: k.TradeNum,
		IsFinal:    k.IsFinal,
	}, nil
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	v, err := parseDecimals(klineFields, bk.Open, bk.High, bk.Low, bk.Close, bk.Volume, orZero(bk.TakerBuyBaseAssetVolume))
	if err != nil {
		return nil, err
	}
	return &domain.Kline{
		OpenTime:   time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime:  time.UnixMilli(bk.CloseTime).UTC(),
		Symbol:     symbol, // Not part of futures.Kline
		Interval:   interval,
		Open:       v[0],
		High:       v[1],
		Low:        v[2],
		Close:      v[3],
		Volume:     v[4],
		BuyVolume:  v[5],
		TradeCount: bk.TradeNum,
		IsFinal:    true, // Historical klines are always final
	}, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
