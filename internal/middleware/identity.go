package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// subject renders the authenticated subject for rate-limit and cache keys.
// It returns "guest" when no token was presented.
func subject(c echo.Context) string {
	switch v := c.Get(CtxUserID).(type) {
	case nil:
		return "guest"
	case float64:
		return fmt.Sprintf("%.0f", v)
	case string:
		if v == "" {
			return "guest"
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}

// OperatorScope returns the operator a request is restricted to.  Only
// OPERATOR tokens are scoped; ADMIN and CUSTOMER tokens return "".
func OperatorScope(c echo.Context) string {
	if role, _ := c.Get(CtxRole).(string); role != RoleOperator {
		return ""
	}
	op, _ := c.Get(CtxOperatorID).(string)
	return op
}
