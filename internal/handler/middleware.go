package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace/internal/service"
	"marketplace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"

	ctxKeyRequestID = "request_id"
	ctxKeyActor     = "actor"
)

// RequestIDMiddleware 透传或生成请求ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// LoggerMiddleware 访问日志
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if query := c.Request.URL.RawQuery; query != "" {
			path = path + "?" + query
		}

		c.Next()

		attrs := []any{
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"request_id", c.GetString(ctxKeyRequestID),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		slog.Info("[HTTP]", attrs...)
	}
}

// RecoveryMiddleware 防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("[PANIC]", "err", fmt.Sprint(err), "path", c.Request.URL.Path,
					"request_id", c.GetString(ctxKeyRequestID))
				response.Abort(c, http.StatusInternalServerError, response.CodeServerError, "服务器内部错误")
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Claims 令牌载荷：sub 为用户ID，roles 为角色列表
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthMiddleware 解析 Bearer 令牌并把调用者身份放进请求上下文
//
// 没有令牌的请求按匿名处理，由服务层决定是否需要登录；
// 带了令牌但校验失败直接返回 401
func AuthMiddleware(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(c *gin.Context) {
		actor := service.Actor{RequestID: c.GetString(ctxKeyRequestID)}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(ctxKeyActor, actor)
			c.Next()
			return
		}

		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "Authorization 格式错误")
			return
		}

		claims := &Claims{}
		if _, err := parser.ParseWithClaims(tokenStr, claims, keyFunc); err != nil {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "令牌无效或已过期")
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "令牌缺少用户ID")
			return
		}

		actor.UserID = userID
		actor.Roles = claims.Roles
		c.Set(ctxKeyActor, actor)
		c.Next()
	}
}

// SignToken 签发 HS256 令牌
func SignToken(secret, issuer string, userID int64, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func actorFrom(c *gin.Context) service.Actor {
	if v, ok := c.Get(ctxKeyActor); ok {
		if actor, ok := v.(service.Actor); ok {
			return actor
		}
	}
	return service.Actor{RequestID: c.GetString(ctxKeyRequestID)}
}
