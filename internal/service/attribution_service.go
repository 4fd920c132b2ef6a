package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketplace/internal/infrastructure/metrics"
	"marketplace/internal/model"
	"marketplace/internal/repository"

	nanoid "github.com/jaevor/go-nanoid"
)

// 推广码字符集：去掉了容易混淆的 0/O/1/l/I
const linkCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// AttributionService 推广链接：创建、解析、点击统计
//
// 解析（Resolve）是只读操作；转化数和佣金累计由结算引擎在下单时写入
type AttributionService struct {
	repos       Repositories
	metrics     *metrics.Metrics
	logger      *slog.Logger
	newCode     func() string
	maxAttempts int
	nowFn       func() time.Time
}

func NewAttributionService(uow UnitOfWork, m *metrics.Metrics, codeLength, maxAttempts int) (*AttributionService, error) {
	gen, err := nanoid.CustomASCII(linkCodeAlphabet, codeLength)
	if err != nil {
		return nil, fmt.Errorf("初始化推广码生成器失败: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &AttributionService{
		repos:       uow.Repositories(),
		metrics:     m,
		logger:      slog.Default().With("component", "attribution"),
		newCode:     gen,
		maxAttempts: maxAttempts,
		nowFn:       time.Now,
	}, nil
}

// Resolve 推广码 -> 推广链接
// 未知、已停用、已过期的推广码统一返回 ErrNotFound，调用方按无推广的直接销售处理
func (s *AttributionService) Resolve(ctx context.Context, code string) (*model.AffiliateLink, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	link, err := s.repos.Links.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询推广链接失败: %w", err)
	}

	if !link.Usable(s.nowFn()) {
		return nil, ErrNotFound
	}
	return link, nil
}

// RecordClick 页面访问时的点击计数，与下单流程无关
func (s *AttributionService) RecordClick(ctx context.Context, code string) (*model.AffiliateLink, error) {
	link, err := s.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Links.IncrementClicks(ctx, link.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("记录点击失败: %w", err)
	}
	s.metrics.IncClick()

	link.Clicks++
	return link, nil
}

// CreateLink 为推广者生成某个已上架商品的推广链接
// 同一 (推广者, 商品) 已有链接时直接返回，推广码冲突时重新生成
func (s *AttributionService) CreateLink(ctx context.Context, actor Actor, productID int64) (*model.AffiliateLink, error) {
	if err := actor.require(model.RoleAffiliate); err != nil {
		return nil, err
	}

	product, err := s.repos.Products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}
	if product.Status != model.ProductStatusApproved {
		return nil, fmt.Errorf("%w: 商品未上架", ErrInvalidStatus)
	}

	if existing, err := s.existingLink(ctx, actor.UserID, productID); err != nil || existing != nil {
		return existing, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		link := &model.AffiliateLink{
			AffiliateID: actor.UserID,
			ProductID:   productID,
			Code:        s.newCode(),
			Active:      true,
		}

		err := s.repos.Links.Create(ctx, link)
		if err == nil {
			s.logger.InfoContext(ctx, "推广链接已创建",
				"affiliate_id", actor.UserID, "product_id", productID, "code", link.Code)
			return link, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("创建推广链接失败: %w", err)
		}

		// 可能是并发请求抢先创建了同一商品的链接，也可能是推广码撞了
		if existing, err := s.existingLink(ctx, actor.UserID, productID); err != nil || existing != nil {
			return existing, err
		}
		s.logger.WarnContext(ctx, "推广码冲突，重新生成", "attempt", attempt)
	}

	return nil, fmt.Errorf("生成推广码失败，已重试 %d 次", s.maxAttempts)
}

func (s *AttributionService) existingLink(ctx context.Context, affiliateID, productID int64) (*model.AffiliateLink, error) {
	link, err := s.repos.Links.GetByAffiliateAndProduct(ctx, affiliateID, productID)
	if err == nil {
		return link, nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("查询推广链接失败: %w", err)
}

func (s *AttributionService) ListLinks(ctx context.Context, actor Actor) ([]*model.AffiliateLink, error) {
	if err := actor.require(model.RoleAffiliate); err != nil {
		return nil, err
	}
	return s.repos.Links.ListByAffiliateID(ctx, actor.UserID)
}

// Deactivate 停用推广链接，只有链接所有者和管理员可以操作
func (s *AttributionService) Deactivate(ctx context.Context, actor Actor, linkID int64) (*model.AffiliateLink, error) {
	if err := actor.require(); err != nil {
		return nil, err
	}

	link, err := s.repos.Links.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if link.AffiliateID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if !link.Active {
		return link, nil
	}

	if err := s.repos.Links.Deactivate(ctx, link.ID); err != nil {
		return nil, fmt.Errorf("停用推广链接失败: %w", err)
	}
	link.Active = false
	return link, nil
}
