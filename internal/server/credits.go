package server

import (
	"net/http"
	"time"

	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type creditPackage struct {
	Credits int64 `json:"credits"`
	Price   int64 `json:"price"`
}

var creditPackages = map[string]creditPackage{
	"basic":    {Credits: 100, Price: 10},
	"standard": {Credits: 500, Price: 45},
	"premium":  {Credits: 1000, Price: 80},
}

type PurchaseRequest struct {
	Package       string `json:"package"`
	PaymentMethod string `json:"paymentMethod"`
}

// PurchaseCredits grants a credit package. Payment processing itself is
// out of scope; only the demo method is accepted. The grant is written to
// the deduction log with negative units.
func (s *Server) PurchaseCredits(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pkg, ok := creditPackages[req.Package]
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.PaymentMethod != "demo" {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error": "payment processing not implemented for this method",
		})
		return
	}

	ctx := c.Request.Context()
	newBalance, err := s.store.CreditBalance(ctx, userID, pkg.Credits)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	record := &ledgerdomain.DeductionRecord{
		UserID:           userID,
		UnitsDeducted:    -pkg.Credits,
		RemainingBalance: newBalance,
		RecordedAt:       time.Now().UTC(),
	}
	if err := s.store.AppendDeductionRecord(ctx, record); err != nil {
		s.log.Warn("purchase log append failed",
			zap.Int64("user_id", userID), zap.Error(err))
	}

	s.hub.BroadcastCreditUpdate(userID, newBalance)

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"newBalance": newBalance,
		"transaction": gin.H{
			"package":   req.Package,
			"credits":   pkg.Credits,
			"price":     pkg.Price,
			"timestamp": record.RecordedAt,
		},
	})
}

// CreditPackages lists purchasable packages.
func (s *Server) CreditPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"packages":       creditPackages,
		"paymentMethods": []string{"demo"},
		"currency":       "USD",
	})
}
