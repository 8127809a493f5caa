package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
)

type RefundsHandler struct {
	refundSvs RefundServicer
}

func NewRefundsHandler(refundSvs RefundServicer) *RefundsHandler {
	return &RefundsHandler{
		refundSvs: refundSvs,
	}
}

type CreateRefundRequest struct {
	OrderID         int64                   `json:"order_id" binding:"required,gt=0"`
	PaymentIntentID string                  `json:"payment_intent_id" binding:"required"`
	Amount          *MoneyPayload           `json:"amount,omitempty"`
	Reason          domain.RefundReasonType `json:"reason" binding:"required,oneof=duplicate fraudulent requested_by_customer abandoned"`
	Notes           string                  `json:"notes"`
}

type RefundResponse struct {
	ID                int64                   `json:"id"`
	CreatedAt         time.Time               `json:"created_at"`
	OrderID           int64                   `json:"order_id"`
	PaymentIntentID   string                  `json:"payment_intent_id"`
	Reason            domain.RefundReasonType `json:"reason"`
	Amount            domain.Money            `json:"amount"`
	Status            domain.RefundStatusType `json:"status"`
	ProcessorRefundID string                  `json:"processor_refund_id,omitempty"`
	FailureMessage    string                  `json:"failure_message,omitempty"`
	ResolvedAt        *time.Time              `json:"resolved_at,omitempty"`
}

func newRefundResponse(refund *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:                refund.ID,
		CreatedAt:         refund.CreatedAt,
		OrderID:           refund.OrderID,
		PaymentIntentID:   refund.PaymentIntentID,
		Reason:            refund.Reason,
		Amount:            refund.Amount,
		Status:            refund.Status,
		ProcessorRefundID: refund.ProcessorRefundID,
		FailureMessage:    refund.FailureMessage,
		ResolvedAt:        refund.ResolvedAt,
	}
}

// Create POST RouteGroup + RefundsRoute.
func (h *RefundsHandler) Create(c *gin.Context) {
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err).SetType(gin.ErrorTypePrivate)
		return
	}

	args := service.RequestRefundArgs{
		OrderID:         req.OrderID,
		PaymentIntentID: req.PaymentIntentID,
		Reason:          req.Reason,
		Notes:           req.Notes,
	}
	if req.Amount != nil {
		amount := domain.NewMoney(req.Amount.Amount, req.Amount.Currency)
		args.Amount = &amount
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	refund, err := h.refundSvs.RequestRefund(reqCtx, args)
	if err != nil && refund == nil {
		abortRefundError(c, err)
		return
	}

	// заявка создана, но процессор был недоступен: запись осталась в requested,
	// повторная заявка с теми же параметрами переотправит ее.
	status := http.StatusCreated
	if err != nil {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"success": true, "refund": newRefundResponse(refund)})
}

func abortRefundError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		c.AbortWithStatus(http.StatusNotFound)
	case errors.Is(err, domain.ErrRefundExceedsCaptured):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": domain.ErrRefundExceedsCaptured.Error(),
		})
	case errors.Is(err, domain.ErrOrderNotRefundable):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": domain.ErrOrderNotRefundable.Error(),
		})
	case errors.Is(err, domain.ErrPaymentIntentMismatch):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": domain.ErrPaymentIntentMismatch.Error(),
		})
	case errors.Is(err, domain.ErrCurrencyMismatch):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"success": false, "error": domain.ErrCurrencyMismatch.Error(),
		})
	default:
		_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
	}
}
