package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"marketplace/internal/model"
	"marketplace/internal/repository"

	"github.com/go-playground/validator/v10"
)

// ProductInput 商家发布商品
type ProductInput struct {
	Title          string `json:"title" validate:"required,max=255"`
	Description    string `json:"description"`
	Price          int64  `json:"price" validate:"gte=0"`
	CommissionRate int64  `json:"commission_rate" validate:"min=1,max=50"`
	Category       string `json:"category" validate:"max=64"`
}

type ProductService struct {
	repos    Repositories
	validate *validator.Validate
	logger   *slog.Logger
}

func NewProductService(uow UnitOfWork) *ProductService {
	return &ProductService{
		repos:    uow.Repositories(),
		validate: validator.New(),
		logger:   slog.Default().With("component", "product"),
	}
}

// Create 商家创建商品，新商品处于待审核状态
func (s *ProductService) Create(ctx context.Context, actor Actor, in ProductInput) (*model.Product, error) {
	if err := actor.require(model.RoleVendor); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	product := &model.Product{
		VendorID:       actor.UserID,
		Title:          in.Title,
		Description:    in.Description,
		Price:          in.Price,
		CommissionRate: in.CommissionRate,
		Category:       in.Category,
		Status:         model.ProductStatusPending,
	}
	if err := s.repos.Products.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("创建商品失败: %w", err)
	}

	s.logger.InfoContext(ctx, "商品已提交审核", "product_id", product.ID, "vendor_id", product.VendorID)
	return product, nil
}

// SetStatus 管理员审核，只能从 pending 变为 approved/rejected
func (s *ProductService) SetStatus(ctx context.Context, actor Actor, productID int64, status string) (*model.Product, error) {
	if err := actor.require(model.RoleAdmin); err != nil {
		return nil, err
	}

	product, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !model.CanProductTransitionTo(product.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, product.Status, status)
	}

	if err := s.repos.Products.UpdateStatus(ctx, productID, product.Status, status); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrInvalidStatus
		}
		return nil, fmt.Errorf("更新商品状态失败: %w", err)
	}

	product.Status = status
	s.logger.InfoContext(ctx, "商品审核完成", "product_id", productID, "status", status, "reviewer", actor.UserID)
	return product, nil
}

func (s *ProductService) ListApproved(ctx context.Context) ([]*model.Product, error) {
	return s.repos.Products.ListByStatus(ctx, model.ProductStatusApproved)
}

func (s *ProductService) Get(ctx context.Context, productID int64) (*model.Product, error) {
	product, err := s.repos.Products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}
	return product, nil
}
