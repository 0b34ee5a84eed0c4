package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/smallbiznis/perkway/internal/ledger/domain"
	loyaltydomain "github.com/smallbiznis/perkway/internal/loyalty/domain"
	ruledomain "github.com/smallbiznis/perkway/internal/pointsrule/domain"
	subdomain "github.com/smallbiznis/perkway/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/perkway/internal/tier/domain"
)

var notFoundErrs = []error{
	tierdomain.ErrTierNotFound,
	ruledomain.ErrRuleNotFound,
	ledgerdomain.ErrAccountNotFound,
	subdomain.ErrPlanNotFound,
	subdomain.ErrSubscriptionNotFound,
}

var badRequestErrs = []error{
	tierdomain.ErrInvalidCode,
	tierdomain.ErrInvalidThreshold,
	tierdomain.ErrInvalidMultiplier,
	ruledomain.ErrInvalidRuleType,
	ruledomain.ErrInvalidCalculation,
	ruledomain.ErrInvalidValue,
	ruledomain.ErrInvalidWindow,
	ledgerdomain.ErrInvalidPoints,
	ledgerdomain.ErrInvalidTxnType,
	loyaltydomain.ErrInvalidCustomerID,
	loyaltydomain.ErrInvalidOrderID,
	subdomain.ErrInvalidPlan,
}

var conflictErrs = []error{
	tierdomain.ErrDuplicateThreshold,
	tierdomain.ErrDefaultTierLocked,
	ledgerdomain.ErrAccountInactive,
	ledgerdomain.ErrInsufficientBalance,
	subdomain.ErrAlreadySubscribed,
	subdomain.ErrSamePlan,
	subdomain.ErrNotCancellable,
	subdomain.ErrNotReactivatable,
	subdomain.ErrInvalidStatus,
	subdomain.ErrNotDue,
	subdomain.ErrPlanInactive,
}

func httpStatus(err error) (int, string) {
	for _, e := range notFoundErrs {
		if errors.Is(err, e) {
			return http.StatusNotFound, e.Error()
		}
	}
	for _, e := range badRequestErrs {
		if errors.Is(err, e) {
			return http.StatusBadRequest, e.Error()
		}
	}
	for _, e := range conflictErrs {
		if errors.Is(err, e) {
			return http.StatusConflict, e.Error()
		}
	}
	switch {
	case errors.Is(err, loyaltydomain.ErrBelowMinimumRedemption):
		return http.StatusUnprocessableEntity, loyaltydomain.ErrBelowMinimumRedemption.Error()
	case errors.Is(err, loyaltydomain.ErrLoyaltyDisabled):
		return http.StatusForbidden, loyaltydomain.ErrLoyaltyDisabled.Error()
	case errors.Is(err, subdomain.ErrPaymentFailed):
		return http.StatusPaymentRequired, subdomain.ErrPaymentFailed.Error()
	}
	return http.StatusInternalServerError, "internal_error"
}

// errorHandler translates sentinel errors collected on the context into
// HTTP responses. Unrecognized errors become a 500.
func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		status, message := httpStatus(c.Errors.Last().Err)
		c.JSON(status, gin.H{"error": message})
	}
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
