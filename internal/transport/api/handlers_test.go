package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
	"github.com/beauzead/settlement/internal/transport/api/testutils"
	"github.com/beauzead/settlement/internal/transport/api/tokens"
)

var testJWTSecret = []byte("test-secret")

type fakePayoutServicer struct {
	payout   *domain.Payout
	err      error
	lastArgs service.ProcessPayoutArgs
	failedID int64
}

func (f *fakePayoutServicer) ProcessSellerPayout(
	_ context.Context, args service.ProcessPayoutArgs,
) (*domain.Payout, error) {
	f.lastArgs = args
	return f.payout, f.err
}

func (f *fakePayoutServicer) MarkPayoutFailed(_ context.Context, payoutID int64) (*domain.Payout, error) {
	f.failedID = payoutID
	return f.payout, f.err
}

type fakeRefundServicer struct {
	refund   *domain.Refund
	err      error
	lastArgs service.RequestRefundArgs
}

func (f *fakeRefundServicer) RequestRefund(
	_ context.Context, args service.RequestRefundArgs,
) (*domain.Refund, error) {
	f.lastArgs = args
	return f.refund, f.err
}

type fakeLedgerServicer struct {
	page       *service.LedgerPage
	summary    *domain.AccountSummary
	err        error
	lastWindow service.LedgerWindowArgs
}

func (f *fakeLedgerServicer) Daybook(
	_ context.Context, args service.LedgerPageArgs,
) (*service.LedgerPage, error) {
	f.lastWindow = args.LedgerWindowArgs
	return f.page, f.err
}

func (f *fakeLedgerServicer) Bankbook(
	_ context.Context, args service.LedgerPageArgs,
) (*service.LedgerPage, error) {
	f.lastWindow = args.LedgerWindowArgs
	return f.page, f.err
}

func (f *fakeLedgerServicer) Summary(
	_ context.Context, args service.LedgerWindowArgs,
) (*domain.AccountSummary, error) {
	f.lastWindow = args
	return f.summary, f.err
}

type HandlersTestSuite struct {
	suite.Suite
	router    http.Handler
	payoutSvs *fakePayoutServicer
	refundSvs *fakeRefundServicer
	ledgerSvs *fakeLedgerServicer
}

func (s *HandlersTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.payoutSvs = &fakePayoutServicer{}
	s.refundSvs = &fakeRefundServicer{}
	s.ledgerSvs = &fakeLedgerServicer{}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	router, err := New(RouterArgs{
		Logger:        logger,
		PayoutService: s.payoutSvs,
		RefundService: s.refundSvs,
		LedgerService: s.ledgerSvs,
		JWTSecretKey:  testJWTSecret,
	})
	s.Require().NoError(err)
	s.router = router
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}

func (s *HandlersTestSuite) authHeader(id int64, role tokens.RoleType) func(*testutils.RequestOptions) {
	token, err := tokens.GenerateJWT(id, role, time.Hour, testJWTSecret)
	s.Require().NoError(err)
	return testutils.WithHeader("Authorization", "Bearer "+token)
}

func (s *HandlersTestSuite) jsonBody(v any) io.Reader {
	body, err := json.Marshal(v)
	s.Require().NoError(err)
	return bytes.NewReader(body)
}

func (s *HandlersTestSuite) parseBody(resp *http.Response) map[string]json.RawMessage {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	var parsed map[string]json.RawMessage
	s.Require().NoError(json.Unmarshal(raw, &parsed))
	return parsed
}

func (s *HandlersTestSuite) samplePayout() *domain.Payout {
	return &domain.Payout{
		ID:               1,
		SellerID:         1,
		GrossEarnings:    domain.NewMoney(11450, "USD"),
		PlatformFeeTotal: domain.NewMoney(1200, "USD"),
		TaxWithheldTotal: domain.NewMoney(950, "USD"),
		NetPayout:        domain.NewMoney(9300, "USD"),
		OrderIDs:         []int64{1},
		Status:           domain.PayoutStatusCompleted,
	}
}

func (s *HandlersTestSuite) payoutRequest() CreatePayoutRequest {
	return CreatePayoutRequest{
		SellerID:    1,
		PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *HandlersTestSuite) TestUnauthorizedWithoutToken() {
	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + PayoutsRoute,
		Body:   s.jsonBody(s.payoutRequest()),
	})
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlersTestSuite) TestSellerForbiddenOnAdminRoutes() {
	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + PayoutsRoute,
		Body:   s.jsonBody(s.payoutRequest()),
	}, s.authHeader(1, tokens.RoleSeller))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlersTestSuite) TestCreatePayout() {
	s.payoutSvs.payout = s.samplePayout()

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + PayoutsRoute,
		Body:   s.jsonBody(s.payoutRequest()),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	s.Equal(http.StatusCreated, resp.StatusCode)

	parsed := s.parseBody(resp)
	var payout PayoutResponse
	s.Require().NoError(json.Unmarshal(parsed["payout"], &payout))
	s.Equal(int64(9300), payout.NetPayout.Amount)
	s.Equal(int64(1), s.payoutSvs.lastArgs.SellerID)
	s.Nil(s.payoutSvs.lastArgs.ForceAmount)
}

func (s *HandlersTestSuite) TestCreatePayoutWithForceAmount() {
	s.payoutSvs.payout = s.samplePayout()

	req := s.payoutRequest()
	req.ForceAmount = &MoneyPayload{Amount: 5000, Currency: "USD"}

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + PayoutsRoute,
		Body:   s.jsonBody(req),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusCreated, resp.StatusCode)

	s.Require().NotNil(s.payoutSvs.lastArgs.ForceAmount)
	s.Equal(int64(5000), s.payoutSvs.lastArgs.ForceAmount.Amount)
}

func (s *HandlersTestSuite) TestCreatePayoutInvalidCurrency() {
	req := s.payoutRequest()
	req.ForceAmount = &MoneyPayload{Amount: 5000, Currency: "usd"}

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + PayoutsRoute,
		Body:   s.jsonBody(req),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersTestSuite) TestCreatePayoutErrorMapping() {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{domain.ErrNoEligibleOrders, http.StatusUnprocessableEntity},
		{domain.ErrNegativePayout, http.StatusUnprocessableEntity},
		{domain.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
		{domain.ErrPayoutConflict, http.StatusConflict},
		{domain.NewDataIntegrityError("order", "broken"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		s.payoutSvs.err = fmt.Errorf("processing seller payout: %w", c.err)
		s.payoutSvs.payout = nil

		resp, err := testutils.MakeRequest(testutils.RequestArgs{
			Router: s.router,
			Method: http.MethodPost,
			URL:    RouteGroup + PayoutsRoute,
			Body:   s.jsonBody(s.payoutRequest()),
		}, s.authHeader(100, tokens.RoleAdmin))
		s.Require().NoError(err)
		s.Equal(c.wantStatus, resp.StatusCode, "error %v", c.err)
		resp.Body.Close()
	}
}

func (s *HandlersTestSuite) TestFailPayout() {
	s.payoutSvs.payout = s.samplePayout()
	s.payoutSvs.payout.Status = domain.PayoutStatusFailed

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + "/admin/payouts/1/fail",
		Body:   nil,
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(int64(1), s.payoutSvs.failedID)
}

func (s *HandlersTestSuite) TestFailPayoutInvalidID() {
	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + "/admin/payouts/abc/fail",
		Body:   nil,
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersTestSuite) TestCreateRefund() {
	s.refundSvs.refund = &domain.Refund{
		ID:      5,
		OrderID: 1,
		Amount:  domain.NewMoney(1000, "USD"),
		Status:  domain.RefundStatusProcessing,
	}

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + RefundsRoute,
		Body: s.jsonBody(CreateRefundRequest{
			OrderID:         1,
			PaymentIntentID: "pi_1",
			Amount:          &MoneyPayload{Amount: 1000, Currency: "USD"},
			Reason:          domain.RefundReasonRequestedByCustomer,
		}),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	s.Equal(http.StatusCreated, resp.StatusCode)

	parsed := s.parseBody(resp)
	var refund RefundResponse
	s.Require().NoError(json.Unmarshal(parsed["refund"], &refund))
	s.Equal(domain.RefundStatusProcessing, refund.Status)
	s.Require().NotNil(s.refundSvs.lastArgs.Amount)
	s.Equal(int64(1000), s.refundSvs.lastArgs.Amount.Amount)
}

func (s *HandlersTestSuite) TestCreateRefundStuckRequestedIsAccepted() {
	s.refundSvs.refund = &domain.Refund{
		ID:     5,
		Status: domain.RefundStatusRequested,
		Amount: domain.NewMoney(1000, "USD"),
	}
	s.refundSvs.err = fmt.Errorf("submitting refund 5: processor unavailable")

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + RefundsRoute,
		Body: s.jsonBody(CreateRefundRequest{
			OrderID:         1,
			PaymentIntentID: "pi_1",
			Reason:          domain.RefundReasonRequestedByCustomer,
		}),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusAccepted, resp.StatusCode)
}

func (s *HandlersTestSuite) TestCreateRefundErrorMapping() {
	cases := []struct {
		err        error
		wantStatus int
	}{
		{domain.ErrRecordNotFound, http.StatusNotFound},
		{domain.ErrRefundExceedsCaptured, http.StatusUnprocessableEntity},
		{domain.ErrOrderNotRefundable, http.StatusUnprocessableEntity},
		{domain.ErrPaymentIntentMismatch, http.StatusUnprocessableEntity},
	}

	for _, c := range cases {
		s.refundSvs.err = fmt.Errorf("requesting refund: %w", c.err)
		s.refundSvs.refund = nil

		resp, err := testutils.MakeRequest(testutils.RequestArgs{
			Router: s.router,
			Method: http.MethodPost,
			URL:    RouteGroup + RefundsRoute,
			Body: s.jsonBody(CreateRefundRequest{
				OrderID:         1,
				PaymentIntentID: "pi_1",
				Reason:          domain.RefundReasonRequestedByCustomer,
			}),
		}, s.authHeader(100, tokens.RoleAdmin))
		s.Require().NoError(err)
		s.Equal(c.wantStatus, resp.StatusCode, "error %v", c.err)
		resp.Body.Close()
	}
}

func (s *HandlersTestSuite) TestCreateRefundUnknownReason() {
	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + RefundsRoute,
		Body: s.jsonBody(map[string]any{
			"order_id":          1,
			"payment_intent_id": "pi_1",
			"reason":            "because",
		}),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersTestSuite) ledgerURL(route string, query string) string {
	return RouteGroup + route + "?from=2025-01-01T00:00:00Z&to=2025-02-01T00:00:00Z" + query
}

func (s *HandlersTestSuite) TestSummaryScopesSellerToOwnData() {
	s.ledgerSvs.summary = &domain.AccountSummary{Currency: "USD"}

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodGet,
		// продавец пытается подсмотреть чужие данные
		URL: s.ledgerURL(LedgerSummary, "&seller_id=9"),
	}, s.authHeader(3, tokens.RoleSeller))
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(int64(3), s.ledgerSvs.lastWindow.SellerID)
}

func (s *HandlersTestSuite) TestSummaryAdminCanFilterAnySeller() {
	s.ledgerSvs.summary = &domain.AccountSummary{Currency: "USD"}

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodGet,
		URL:    s.ledgerURL(LedgerSummary, "&seller_id=9"),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(int64(9), s.ledgerSvs.lastWindow.SellerID)
}

func (s *HandlersTestSuite) TestDaybookPagination() {
	s.ledgerSvs.page = &service.LedgerPage{Entries: []domain.LedgerEntry{}, Total: 12}

	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodGet,
		URL:    s.ledgerURL(LedgerDaybook, "&page=2&limit=5"),
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)

	parsed := s.parseBody(resp)
	var page LedgerPageResponse
	s.Require().NoError(json.Unmarshal(parsed["ledger"], &page))
	s.Equal(12, page.Total)
	s.Equal(2, page.Page)
}

func (s *HandlersTestSuite) TestBankbookInvalidWindow() {
	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodGet,
		URL:    RouteGroup + LedgerBankbook + "?from=2025-02-01T00:00:00Z&to=2025-01-01T00:00:00Z",
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *HandlersTestSuite) TestLedgerMissingWindow() {
	resp, err := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodGet,
		URL:    RouteGroup + LedgerDaybook,
	}, s.authHeader(100, tokens.RoleAdmin))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}
