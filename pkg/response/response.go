package response

import (
	"errors"
	"net/http"

	"clubexpense/pkg/apperr"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

const (
	CodeInvalidTransition = 1001
	CodeDuplicateApproval = 1002
	CodeStaleState        = 1003
)

// MessageServerError 存储故障时展示给用户的统一文案
const MessageServerError = "処理に失敗しました。時間をおいて再度お試しください。"

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context) {
	Error(c, CodeServerError, MessageServerError)
}

// CodeOf 业务错误分类对应的响应码
func CodeOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuth:
		return CodeUnauthorized
	case apperr.KindNotFound:
		return CodeNotFound
	case apperr.KindForbidden:
		return CodeForbidden
	case apperr.KindValidation:
		return CodeParamError
	case apperr.KindInvalidTransition:
		return CodeInvalidTransition
	case apperr.KindDuplicateApproval:
		return CodeDuplicateApproval
	case apperr.KindStaleState:
		return CodeStaleState
	}
	return CodeServerError
}

// FromError 按错误分类输出响应，存储故障不暴露内部信息
func FromError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Kind == apperr.KindStorage {
		ServerError(c)
		return
	}
	Error(c, CodeOf(e.Kind), e.Message)
}
