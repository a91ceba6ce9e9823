// Package debt предоставляет клиент для внешнего сервиса задолженности клиентов.
package debt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrCustomerNotFound возвращается, если сервис задолженности не знает клиента.
var ErrCustomerNotFound = errors.New("customer not found")

// Status описывает ответ сервиса задолженности по одному клиенту.
type Status struct {
	DebtLimit       decimal.Decimal `json:"debtLimit"`
	CurrentDebt     decimal.Decimal `json:"currentDebt"`
	BypassDebtCheck bool            `json:"bypassDebtCheck"`
}

// OverLimit сообщает, превышен ли лимит задолженности с учётом разрешения на обход проверки.
func (s Status) OverLimit() bool {
	return !s.BypassDebtCheck && s.CurrentDebt.GreaterThan(s.DebtLimit)
}

// Client инкапсулирует HTTP-взаимодействие с сервисом задолженности.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient создаёт HTTP-клиент для обращения к сервису задолженности по указанному адресу.
// Ответы 5xx и сетевые ошибки повторяются с экспоненциальной задержкой.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil
	if logger != nil {
		rc.Logger = leveledLogger{l: logger.Sugar()}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// GetStatus запрашивает лимит и текущую задолженность клиента по его коду.
func (c *Client) GetStatus(ctx context.Context, customerCode string) (*Status, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("debt client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	u := fmt.Sprintf("%s/api/customers/%s/debt", base, url.PathEscape(customerCode))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrCustomerNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Status
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// leveledLogger направляет журнал повторов retryablehttp в zap.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.l.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.l.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.l.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.l.Warnw(msg, keysAndValues...)
}
