package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"io"
	"net/http"
)

const (
	RouteRefunds      = "/v1/refunds"
	RouteRefundStatus = "/v1/refunds/%s"
)

// Константы минимального и максимального значения в заголовке Retry-After.
const (
	minRetryAfter = 1
	maxRetryAfter = 120
)

type StatusType string

const (
	StatusPending   StatusType = "pending"
	StatusSucceeded StatusType = "succeeded"
	StatusFailed    StatusType = "failed"
	StatusCanceled  StatusType = "canceled"
)

type RefundRequest struct {
	PaymentIntentID string `json:"payment_intent"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
}

type RefundResponse struct {
	ID            string     `json:"id"`
	Status        StatusType `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
}

// HTTPClient является реализацией интерфейса Client для HTTP запросов к платежному процессору.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) HTTPClient {
	return HTTPClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

// SubmitRefund отправляет заявку на возврат. Заголовок Idempotency-Key гарантирует,
// что переотправка той же заявки не создаст у процессора второй возврат.
// При ответе сервера со статусом отличным от 2xx возвращает ошибку StatusCodeError,
// или TooManyRequestError в случае http.StatusTooManyRequests.
func (c HTTPClient) SubmitRefund(
	ctx context.Context,
	idempotencyKey string,
	refund RefundRequest,
) (*RefundResponse, error) {
	body, marshalErr := json.Marshal(refund)
	if marshalErr != nil {
		return nil, fmt.Errorf("marshal request: %s", marshalErr.Error())
	}

	url := c.baseURL + RouteRefunds

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %s", reqErr.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	return c.do(req, http.StatusOK, http.StatusCreated)
}

// GetRefund получает текущий статус возврата у процессора.
func (c HTTPClient) GetRefund(ctx context.Context, processorRefundID string) (*RefundResponse, error) {
	url := c.baseURL + fmt.Sprintf(RouteRefundStatus, processorRefundID)

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %s", reqErr.Error())
	}

	return c.do(req, http.StatusOK)
}

//nolint:nonamedreturns
func (c HTTPClient) do(req *http.Request, okCodes ...int) (response *RefundResponse, err error) {
	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("do request: %s", doErr.Error())
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewTooManyRequestError(parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	ok := false
	for _, code := range okCodes {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		err = NewStatusCodeError(resp.StatusCode)
		return nil, err
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = fmt.Errorf("read response: %s", readErr.Error())
		return nil, err
	}

	if jsonErr := json.Unmarshal(body, &response); jsonErr != nil {
		err = fmt.Errorf("parse response: %s", jsonErr.Error())
		return nil, err
	}

	return response, nil
}

func parseRetryAfter(header string) time.Duration {
	minValue := decimal.NewFromInt(minRetryAfter)
	maxValue := decimal.NewFromInt(maxRetryAfter)

	retryAfter, parseErr := decimal.NewFromString(header)
	if parseErr != nil || retryAfter.LessThan(minValue) || retryAfter.GreaterThan(maxValue) {
		// в случае ошибки или неверных данных ставим 60 секунд
		retryAfter = decimal.NewFromInt(60) //nolint:mnd
	}

	return time.Duration(retryAfter.IntPart()) * time.Second
}
