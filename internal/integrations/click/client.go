// Package click реализует клиент merchant API платёжного провайдера Click.
// Используется reconciler'ом для опроса статуса платежа по публичному
// референсу бронирования, когда webhook не дошёл или задержался.
package click

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client клиент merchant API Click
type Client struct {
	baseURL    string
	serviceID  int64
	merchantID int64
	secretKey  string
	httpClient *http.Client
	log        Logger
}

// Logger интерфейс для логирования
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// NewClient создает новый экземпляр клиента Click
func NewClient(baseURL string, serviceID, merchantID int64, secretKey string, timeout time.Duration, log Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		serviceID:  serviceID,
		merchantID: merchantID,
		secretKey:  secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// GetPaymentStatus опрашивает статус платежа по публичному референсу
// бронирования (merchant_trans_id) и нормализует ответ провайдера.
func (c *Client) GetPaymentStatus(ctx context.Context, requestID string) (StatusResult, error) {
	url := fmt.Sprintf("%s/v2/merchant/payment/status_by_mti/%d/%s", c.baseURL, c.serviceID, requestID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("%w: failed to create request: %v", ErrGatewayUnavailable, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Auth", c.authHeader(time.Now()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Сетевые сбои транзиентны: поллер повторит запрос позже
		return StatusResult{}, fmt.Errorf("%w: failed to execute request: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return StatusResult{}, ErrAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return StatusResult{}, fmt.Errorf("%w: status code %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return StatusResult{}, fmt.Errorf("%w: unexpected status code %d", ErrInvalidResponse, resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return StatusResult{}, fmt.Errorf("%w: failed to decode response: %v", ErrInvalidResponse, err)
	}

	switch status.ErrorCode {
	case errorCodeOK:
		return normalizeStatus(status.PaymentStatus, status.PaymentID), nil
	case errorCodeNotFound:
		// Платёж ещё не создан на стороне провайдера: не ошибка, ждём дальше
		return StatusResult{IsUnknown: true}, nil
	case errorCodeAuthFailure:
		return StatusResult{}, ErrAuthFailed
	default:
		return StatusResult{}, fmt.Errorf("%w: provider error %d (%s)", ErrInvalidResponse, status.ErrorCode, status.ErrorNote)
	}
}

// authHeader собирает заголовок Auth по схеме merchant API:
// merchant_user_id:sha1(timestamp + secret_key):timestamp
func (c *Client) authHeader(now time.Time) string {
	timestamp := now.Unix()
	digest := sha1.Sum([]byte(fmt.Sprintf("%d%s", timestamp, c.secretKey)))
	return fmt.Sprintf("%d:%x:%d", c.merchantID, digest, timestamp)
}
