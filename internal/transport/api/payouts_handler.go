package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
)

type PayoutsHandler struct {
	payoutSvs PayoutServicer
}

func NewPayoutsHandler(payoutSvs PayoutServicer) *PayoutsHandler {
	return &PayoutsHandler{
		payoutSvs: payoutSvs,
	}
}

type CreatePayoutRequest struct {
	SellerID    int64         `json:"seller_id" binding:"required,gt=0"`
	PeriodStart time.Time     `json:"period_start" binding:"required"`
	PeriodEnd   time.Time     `json:"period_end" binding:"required"`
	ForceAmount *MoneyPayload `json:"force_amount,omitempty"`
}

type PayoutResponse struct {
	ID               int64                   `json:"id"`
	CreatedAt        time.Time               `json:"created_at"`
	SellerID         int64                   `json:"seller_id"`
	PeriodStart      time.Time               `json:"period_start"`
	PeriodEnd        time.Time               `json:"period_end"`
	GrossEarnings    domain.Money            `json:"gross_earnings"`
	PlatformFeeTotal domain.Money            `json:"platform_fee_total"`
	TaxWithheldTotal domain.Money            `json:"tax_withheld_total"`
	NetPayout        domain.Money            `json:"net_payout"`
	OrderIDs         []int64                 `json:"order_ids"`
	Status           domain.PayoutStatusType `json:"status"`
	ManualOverride   bool                    `json:"manual_override"`
}

func newPayoutResponse(payout *domain.Payout) PayoutResponse {
	return PayoutResponse{
		ID:               payout.ID,
		CreatedAt:        payout.CreatedAt,
		SellerID:         payout.SellerID,
		PeriodStart:      payout.PeriodStart,
		PeriodEnd:        payout.PeriodEnd,
		GrossEarnings:    payout.GrossEarnings,
		PlatformFeeTotal: payout.PlatformFeeTotal,
		TaxWithheldTotal: payout.TaxWithheldTotal,
		NetPayout:        payout.NetPayout,
		OrderIDs:         payout.OrderIDs,
		Status:           payout.Status,
		ManualOverride:   payout.ManualOverride,
	}
}

// Create POST RouteGroup + PayoutsRoute.
func (h *PayoutsHandler) Create(c *gin.Context) {
	var req CreatePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err).SetType(gin.ErrorTypePrivate)
		return
	}
	if !req.PeriodEnd.After(req.PeriodStart) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "period_end must be after period_start",
		})
		return
	}

	args := service.ProcessPayoutArgs{
		SellerID:    req.SellerID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
	}
	if req.ForceAmount != nil {
		force := domain.NewMoney(req.ForceAmount.Amount, req.ForceAmount.Currency)
		args.ForceAmount = &force
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	payout, err := h.payoutSvs.ProcessSellerPayout(reqCtx, args)
	if err != nil {
		abortPayoutError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "payout": newPayoutResponse(payout)})
}

// Fail POST RouteGroup + PayoutFailRoute.
func (h *PayoutsHandler) Fail(c *gin.Context) {
	payoutID, parseErr := strconv.ParseInt(c.Param("payoutID"), 10, 64)
	if parseErr != nil || payoutID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payout id"})
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	payout, err := h.payoutSvs.MarkPayoutFailed(reqCtx, payoutID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payout": newPayoutResponse(payout)})
}

func abortPayoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoEligibleOrders):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": domain.ErrNoEligibleOrders.Error(),
		})
	case errors.Is(err, domain.ErrNegativePayout):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": domain.ErrNegativePayout.Error(),
		})
	case errors.Is(err, domain.ErrCurrencyMismatch):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": domain.ErrCurrencyMismatch.Error(),
		})
	case errors.Is(err, domain.ErrPayoutConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"success": false, "error": domain.ErrPayoutConflict.Error(),
		})
	default:
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
	}
}
