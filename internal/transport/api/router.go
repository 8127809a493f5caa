// Package api — REST граница движка: расчет выплат, возвраты и журнальные проекции.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/beauzead/settlement/internal/transport/api/middlewares"
	"github.com/beauzead/settlement/internal/transport/api/tokens"
)

const (
	DefaultServiceTimeout = 3 * time.Second
)

const (
	RouteGroup      = "/api"
	PayoutsRoute    = "/admin/payouts"
	PayoutFailRoute = "/admin/payouts/:payoutID/fail"
	RefundsRoute    = "/admin/refunds"
	LedgerSummary   = "/ledger/summary"
	LedgerDaybook   = "/ledger/daybook"
	LedgerBankbook  = "/ledger/bankbook"
)

type RouterArgs struct {
	Logger        *logrus.Logger
	PayoutService PayoutServicer
	RefundService RefundServicer
	LedgerService LedgerServicer
	JWTSecretKey  []byte
}

func New(args RouterArgs) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if args.Logger != nil {
		r.Use(middlewares.Logger(args.Logger))
	}
	r.Use(middlewares.Errors())

	payoutsHandler := NewPayoutsHandler(args.PayoutService)
	refundsHandler := NewRefundsHandler(args.RefundService)
	ledgerHandler := NewLedgerHandler(args.LedgerService)

	api := r.Group(RouteGroup)
	api.Use(middlewares.AuthRequired(args.JWTSecretKey))

	// журнальные проекции доступны и продавцу (свои данные), и админу (любой продавец).
	api.GET(LedgerSummary, ledgerHandler.Summary)
	api.GET(LedgerDaybook, ledgerHandler.Daybook)
	api.GET(LedgerBankbook, ledgerHandler.Bankbook)

	admin := api.Group("", middlewares.RoleRequired(tokens.RoleAdmin))
	admin.POST(PayoutsRoute, payoutsHandler.Create)
	admin.POST(PayoutFailRoute, payoutsHandler.Fail)
	admin.POST(RefundsRoute, refundsHandler.Create)

	return r, nil
}
