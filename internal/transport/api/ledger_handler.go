package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
	"github.com/beauzead/settlement/internal/transport/api/tokens"
)

type LedgerHandler struct {
	ledgerSvs LedgerServicer
}

func NewLedgerHandler(ledgerSvs LedgerServicer) *LedgerHandler {
	return &LedgerHandler{
		ledgerSvs: ledgerSvs,
	}
}

type ledgerQuery struct {
	From     time.Time `form:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	To       time.Time `form:"to" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	SellerID int64     `form:"seller_id"`
	Page     int       `form:"page"`
	Limit    int       `form:"limit"`
}

// resolveWindow определяет границы выборки из запроса. Продавец всегда видит только
// свои записи независимо от переданного seller_id; админ может смотреть любого
// продавца или всю площадку (seller_id не задан).
func (h *LedgerHandler) resolveWindow(c *gin.Context, q ledgerQuery) (service.LedgerWindowArgs, bool) {
	if !q.To.After(q.From) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false, "error": "to must be after from",
		})
		return service.LedgerWindowArgs{}, false
	}

	sellerID := q.SellerID
	if getRoleFromContext(c) == tokens.RoleSeller {
		sellerID = getSubjectIDFromContext(c)
	}

	return service.LedgerWindowArgs{
		SellerID: sellerID,
		From:     q.From,
		To:       q.To,
	}, true
}

type LedgerPageResponse struct {
	Entries []domain.LedgerEntry `json:"entries"`
	Total   int                  `json:"total"`
	Page    int                  `json:"page"`
}

func (h *LedgerHandler) renderPage(
	c *gin.Context,
	fetch func(context.Context, service.LedgerPageArgs) (*service.LedgerPage, error),
) {
	var q ledgerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err).SetType(gin.ErrorTypePrivate)
		return
	}
	window, ok := h.resolveWindow(c, q)
	if !ok {
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	page, err := fetch(reqCtx, service.LedgerPageArgs{
		LedgerWindowArgs: window,
		Page:             q.Page,
		Limit:            q.Limit,
	})
	if err != nil {
		abortLedgerError(c, err)
		return
	}

	currentPage := q.Page
	if currentPage < 1 {
		currentPage = 1
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "ledger": LedgerPageResponse{
		Entries: page.Entries,
		Total:   page.Total,
		Page:    currentPage,
	}})
}

// Daybook GET RouteGroup + LedgerDaybook.
func (h *LedgerHandler) Daybook(c *gin.Context) {
	h.renderPage(c, h.ledgerSvs.Daybook)
}

// Bankbook GET RouteGroup + LedgerBankbook.
func (h *LedgerHandler) Bankbook(c *gin.Context) {
	h.renderPage(c, h.ledgerSvs.Bankbook)
}

// Summary GET RouteGroup + LedgerSummary.
func (h *LedgerHandler) Summary(c *gin.Context) {
	var q ledgerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.AbortWithError(http.StatusBadRequest, err).SetType(gin.ErrorTypePrivate)
		return
	}
	window, ok := h.resolveWindow(c, q)
	if !ok {
		return
	}

	reqCtx, cancel := context.WithTimeout(c, DefaultServiceTimeout)
	defer cancel()

	summary, err := h.ledgerSvs.Summary(reqCtx, window)
	if err != nil {
		abortLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

func abortLedgerError(c *gin.Context, err error) {
	var integrityErr *domain.DataIntegrityError
	if errors.As(err, &integrityErr) {
		// порча данных не маскируется под обычную 500: оператору нужна причина.
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false, "error": integrityErr.Error(),
		})
		return
	}
	_ = c.AbortWithError(http.StatusInternalServerError, err).SetType(gin.ErrorTypePrivate)
}
