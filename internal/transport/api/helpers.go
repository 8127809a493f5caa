package api

import (
	"github.com/gin-gonic/gin"

	"github.com/beauzead/settlement/internal/transport/api/middlewares"
	"github.com/beauzead/settlement/internal/transport/api/tokens"
)

// MoneyPayload — денежная сумма на границе API: целые минимальные единицы плюс код валюты.
type MoneyPayload struct {
	Amount   int64  `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required,currency"`
}

func getSubjectIDFromContext(c *gin.Context) int64 {
	id, _ := c.Get(middlewares.CurrentSubjectIDKey)
	subjectID, _ := id.(int64)
	return subjectID
}

func getRoleFromContext(c *gin.Context) tokens.RoleType {
	role, _ := c.Get(middlewares.CurrentRoleKey)
	roleType, _ := role.(tokens.RoleType)
	return roleType
}
