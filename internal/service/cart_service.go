package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/model"
	"marketplace/internal/repository"
)

// CartService 购物车：每行保存加购时的商品快照，结算时以快照价格为准
type CartService struct {
	carts    CartStore
	products ProductStore
	nowFn    func() time.Time
}

func NewCartService(carts CartStore, uow UnitOfWork) *CartService {
	return &CartService{
		carts:    carts,
		products: uow.Repositories().Products,
		nowFn:    time.Now,
	}
}

// Get 购物车不存在时返回一个空购物车
func (s *CartService) Get(ctx context.Context, cartID string) (*model.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, fmt.Errorf("%w: 购物车ID不能为空", ErrInvalidInput)
	}

	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.Cart{ID: cartID, Lines: []model.CartLine{}}, nil
		}
		return nil, fmt.Errorf("读取购物车失败: %w", err)
	}
	return cart, nil
}

// AddLine 加购，同一商品数量累加
func (s *CartService) AddLine(ctx context.Context, cartID string, productID, quantity int64) (*model.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: 数量必须大于0", ErrInvalidInput)
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询商品失败: %w", err)
	}
	if product.Status != model.ProductStatusApproved {
		return nil, fmt.Errorf("%w: 商品未上架", ErrInvalidStatus)
	}

	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == productID {
			cart.Lines[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		cart.Lines = append(cart.Lines, model.CartLine{
			ProductID:      product.ID,
			Title:          product.Title,
			UnitPrice:      product.Price,
			Quantity:       quantity,
			CommissionRate: product.CommissionRate,
			VendorID:       product.VendorID,
		})
	}

	return cart, s.save(ctx, cart)
}

// RemoveLine 删除某个商品行，商品不在购物车中时不报错
func (s *CartService) RemoveLine(ctx context.Context, cartID string, productID int64) (*model.Cart, error) {
	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	lines := cart.Lines[:0]
	for _, l := range cart.Lines {
		if l.ProductID != productID {
			lines = append(lines, l)
		}
	}
	cart.Lines = lines

	return cart, s.save(ctx, cart)
}

// AttachReferral 记录推广码，结算时才解析
func (s *CartService) AttachReferral(ctx context.Context, cartID, code string) (*model.Cart, error) {
	cart, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	cart.ReferralCode = strings.TrimSpace(code)
	return cart, s.save(ctx, cart)
}

func (s *CartService) Clear(ctx context.Context, cartID string) error {
	if err := s.carts.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("清空购物车失败: %w", err)
	}
	return nil
}

func (s *CartService) save(ctx context.Context, cart *model.Cart) error {
	cart.UpdatedAt = s.nowFn()
	if err := s.carts.Save(ctx, cart); err != nil {
		return fmt.Errorf("保存购物车失败: %w", err)
	}
	return nil
}
