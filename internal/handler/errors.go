package handler

import (
	"errors"
	"log/slog"

	"marketplace/internal/infrastructure/lock"
	"marketplace/internal/service"
	"marketplace/pkg/response"

	"github.com/gin-gonic/gin"
)

var errorCodes = []struct {
	err  error
	code int
}{
	// 部分结算错误包着底层错误，必须排在最前
	{service.ErrPartialSettlement, response.CodeSettlementFailed},
	{service.ErrUnauthorized, response.CodeUnauthorized},
	{service.ErrForbidden, response.CodeForbidden},
	{service.ErrNotFound, response.CodeNotFound},
	{service.ErrInvalidInput, response.CodeParamError},
	{service.ErrInvalidAmount, response.CodeParamError},
	{service.ErrEmptyCart, response.CodeEmptyCart},
	{service.ErrInvalidCustomer, response.CodeInvalidCustomer},
	{service.ErrInsufficientFunds, response.CodeInsufficientFunds},
	{service.ErrAlreadySettled, response.CodeAlreadySettled},
	{service.ErrInvalidStatus, response.CodeInvalidStatus},
	{service.ErrSettlementFailed, response.CodeSettlementFailed},
	{lock.ErrLockFailed, response.CodeSystemBusy},
}

// codeOf 服务层错误 -> 业务错误码，未知错误返回 CodeServerError
func codeOf(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return response.CodeServerError
}

func writeError(c *gin.Context, err error) {
	code := codeOf(err)
	if code == response.CodeServerError {
		slog.ErrorContext(c.Request.Context(), "请求处理失败",
			"path", c.FullPath(), "request_id", c.GetString(ctxKeyRequestID), "err", err)
		_ = c.Error(err)
		response.ServerError(c, "服务器内部错误")
		return
	}
	response.BusinessError(c, code, err.Error())
}
