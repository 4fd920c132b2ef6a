package service

import (
	"marketplace/internal/model"
)

// Actor 请求级别的调用者身份，由认证中间件根据令牌构造后显式传入
type Actor struct {
	UserID    int64
	Roles     []string
	RequestID string
}

func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool {
	return a.HasRole(model.RoleAdmin)
}

// require 校验登录态和角色，roles 为空时只要求登录
func (a Actor) require(roles ...string) error {
	if !a.Authenticated() {
		return ErrUnauthorized
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if a.HasRole(r) {
			return nil
		}
	}
	return ErrForbidden
}
