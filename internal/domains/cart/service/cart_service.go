package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"food-ordering-backend/internal/domains/cart/catalog"
	"food-ordering-backend/internal/domains/cart/model"
	"food-ordering-backend/internal/domains/cart/repository"
	couponModel "food-ordering-backend/internal/domains/coupon/model"
	couponService "food-ordering-backend/internal/domains/coupon/service"
	"food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/logger"
)

// maxSaveAttempts bounds reload-and-retry on optimistic version conflicts
const maxSaveAttempts = 3

type cartService struct {
	repo    repository.RepositoryInterface
	catalog catalog.Catalog
	coupons couponService.Ledger
	tx      database.TxManager
	pricing model.Pricing
}

func NewCartService(
	repo repository.RepositoryInterface,
	catalog catalog.Catalog,
	coupons couponService.Ledger,
	tx database.TxManager,
	pricing model.Pricing,
) ServiceInterface {
	return &cartService{
		repo:    repo,
		catalog: catalog,
		coupons: coupons,
		tx:      tx,
		pricing: pricing,
	}
}

// =====================================================
// READ
// =====================================================

func (s *cartService) GetCart(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	cart, err := s.getOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := s.Recalculate(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) GetByID(ctx context.Context, cartID uuid.UUID) (*model.Cart, error) {
	cart, err := s.repo.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.Recalculate(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *cartService) getOrCreate(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	if !owner.Valid() {
		return nil, model.ErrCartNotFound
	}

	cart, err := s.repo.GetByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, model.ErrCartNotFound) {
		return nil, err
	}

	cart = &model.Cart{
		UserID:    owner.UserID,
		SessionID: owner.SessionID,
		Items:     []model.CartItem{},
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		if errors.Is(err, model.ErrVersionConflict) {
			// created concurrently by another request
			return s.repo.GetByOwner(ctx, owner)
		}
		return nil, err
	}

	logger.Debug("Cart created", map[string]interface{}{
		"cart_id": cart.ID.String(),
	})
	return cart, nil
}

// =====================================================
// MUTATIONS
// =====================================================

// mutate loads the owner's cart, applies fn and saves with a version check.
// On conflict the cart is reloaded and fn re-applied.
func (s *cartService) mutate(ctx context.Context, owner model.Owner, fn func(cart *model.Cart) error) (*model.Cart, error) {
	var lastErr error

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		cart, err := s.getOrCreate(ctx, owner)
		if err != nil {
			return nil, err
		}

		if err := fn(cart); err != nil {
			return nil, err
		}

		err = s.repo.Save(ctx, cart)
		if err == nil {
			if err := s.Recalculate(ctx, cart); err != nil {
				return nil, err
			}
			return cart, nil
		}
		if !errors.Is(err, model.ErrVersionConflict) {
			return nil, err
		}

		lastErr = err
		logger.Debug("Cart version conflict, retrying", map[string]interface{}{
			"cart_id": cart.ID.String(),
			"attempt": attempt,
		})
	}

	return nil, lastErr
}

func (s *cartService) AddItem(ctx context.Context, owner model.Owner, req model.AddItemRequest) (*model.Cart, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, model.ErrProductNotFound
	}
	if req.Quantity < 1 || req.Quantity > model.MaxItemQuantity {
		return nil, model.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Available {
		return nil, model.ErrProductUnavailable
	}

	return s.mutate(ctx, owner, func(cart *model.Cart) error {
		if i := cart.FindItem(productID); i >= 0 {
			q := cart.Items[i].Quantity + req.Quantity
			if q > model.MaxItemQuantity {
				return model.ErrInvalidQuantity
			}
			cart.Items[i].Quantity = q
			cart.Items[i].UpdatedAt = time.Now().UTC()
			return nil
		}

		cart.Items = append(cart.Items, model.CartItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			ImageURL:    product.ImageURL,
			UnitPrice:   product.Price,
			Quantity:    req.Quantity,
			UpdatedAt:   time.Now().UTC(),
		})
		return nil
	})
}

func (s *cartService) UpdateQuantity(ctx context.Context, owner model.Owner, productID uuid.UUID, quantity int) (*model.Cart, error) {
	if quantity < 0 || quantity > model.MaxItemQuantity {
		return nil, model.ErrInvalidQuantity
	}

	return s.mutate(ctx, owner, func(cart *model.Cart) error {
		i := cart.FindItem(productID)
		if i < 0 {
			return model.ErrItemNotFound
		}
		if quantity == 0 {
			cart.RemoveAt(i)
			return nil
		}
		cart.Items[i].Quantity = quantity
		cart.Items[i].UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *cartService) RemoveItem(ctx context.Context, owner model.Owner, productID uuid.UUID) (*model.Cart, error) {
	return s.mutate(ctx, owner, func(cart *model.Cart) error {
		i := cart.FindItem(productID)
		if i < 0 {
			return model.ErrItemNotFound
		}
		cart.RemoveAt(i)
		return nil
	})
}

func (s *cartService) ApplyCoupon(ctx context.Context, owner model.Owner, code string) (*model.Cart, error) {
	code = couponModel.NormalizeCode(code)

	return s.mutate(ctx, owner, func(cart *model.Cart) error {
		subtotal := model.CalculateTotals(cart.Items, decimal.Zero, s.pricing).Subtotal

		result, err := s.coupons.Validate(ctx, code, subtotal, owner.UserID)
		if err != nil {
			return err
		}
		if !result.Valid {
			return &model.CartError{
				Code:       "COUPON_INVALID",
				Message:    "coupon cannot be applied",
				HTTPStatus: http.StatusBadRequest,
				Details: map[string]interface{}{
					"code":   code,
					"reason": result.Reason,
				},
			}
		}

		cart.CouponCode = &code
		return nil
	})
}

func (s *cartService) RemoveCoupon(ctx context.Context, owner model.Owner) (*model.Cart, error) {
	return s.mutate(ctx, owner, func(cart *model.Cart) error {
		if cart.CouponCode == nil {
			return model.ErrNoCouponApplied
		}
		cart.CouponCode = nil
		return nil
	})
}

// Recalculate revalidates the attached coupon against the current subtotal.
// A coupon that no longer applies stays attached with a zero discount and
// its reason, so checkout can reject it explicitly.
func (s *cartService) Recalculate(ctx context.Context, cart *model.Cart) error {
	discount := decimal.Zero
	reason := ""

	if cart.CouponCode != nil {
		subtotal := model.CalculateTotals(cart.Items, decimal.Zero, s.pricing).Subtotal

		result, err := s.coupons.Validate(ctx, *cart.CouponCode, subtotal, cart.UserID)
		if err != nil {
			return fmt.Errorf("recalculate cart %s: %w", cart.ID, err)
		}
		if result.Valid {
			discount = result.DiscountAmount
		} else {
			reason = string(result.Reason)
		}
	}

	totals := model.CalculateTotals(cart.Items, discount, s.pricing)
	totals.CouponCode = cart.CouponCode
	totals.CouponReason = reason
	cart.Totals = totals

	return nil
}

func (s *cartService) Clear(ctx context.Context, cartID uuid.UUID) error {
	return s.repo.Clear(ctx, cartID)
}

// =====================================================
// GUEST MERGE
// =====================================================

// MergeGuestCart runs when a guest logs in.
//
// Flow:
//  1. No guest cart -> nothing to do
//  2. User has no cart -> guest cart is re-owned by the user
//  3. Otherwise items are folded in: quantities summed (capped at 50),
//     the most recently updated snapshot wins, then the guest cart is deleted
func (s *cartService) MergeGuestCart(ctx context.Context, sessionID string, userID uuid.UUID) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		guest, err := s.repo.GetByOwner(ctx, model.SessionOwner(sessionID))
		if errors.Is(err, model.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		user, err := s.repo.GetByOwner(ctx, model.UserOwner(userID))
		if errors.Is(err, model.ErrCartNotFound) {
			if err := s.repo.AssignToUser(ctx, guest.ID, userID); err != nil {
				return err
			}
			logger.Info("Guest cart assigned to user", map[string]interface{}{
				"cart_id": guest.ID.String(),
				"user_id": userID.String(),
			})
			return nil
		}
		if err != nil {
			return err
		}

		MergeItems(user, guest)

		if err := s.repo.Save(ctx, user); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, guest.ID); err != nil {
			return err
		}

		logger.Info("Guest cart merged", map[string]interface{}{
			"guest_cart_id": guest.ID.String(),
			"user_cart_id":  user.ID.String(),
			"items":         len(user.Items),
		})
		return nil
	})
}

// MergeItems folds guest lines into dst. Per product id the later
// UpdatedAt snapshot wins; quantities add up to at most 50.
func MergeItems(dst, guest *model.Cart) {
	for _, g := range guest.Items {
		i := dst.FindItem(g.ProductID)
		if i < 0 {
			g.ID = uuid.Nil
			dst.Items = append(dst.Items, g)
			continue
		}

		existing := &dst.Items[i]
		qty := model.ClampQuantity(existing.Quantity + g.Quantity)
		if g.UpdatedAt.After(existing.UpdatedAt) {
			existing.ProductName = g.ProductName
			existing.ImageURL = g.ImageURL
			existing.UnitPrice = g.UnitPrice
			existing.UpdatedAt = g.UpdatedAt
		}
		existing.Quantity = qty
	}

	if dst.CouponCode == nil && guest.CouponCode != nil {
		dst.CouponCode = guest.CouponCode
	}
}
