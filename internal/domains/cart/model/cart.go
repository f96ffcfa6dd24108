package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const MaxItemQuantity = 50

// Owner identifies a cart: a user id or a guest session id, never both
type Owner struct {
	UserID    *uuid.UUID
	SessionID *string
}

func UserOwner(userID uuid.UUID) Owner {
	return Owner{UserID: &userID}
}

func SessionOwner(sessionID string) Owner {
	return Owner{SessionID: &sessionID}
}

func (o Owner) Valid() bool {
	return (o.UserID == nil) != (o.SessionID == nil)
}

func (o Owner) CacheKey() string {
	if o.UserID != nil {
		return "cart:owner:user:" + o.UserID.String()
	}
	if o.SessionID != nil {
		return "cart:owner:session:" + *o.SessionID
	}
	return ""
}

type Cart struct {
	ID         uuid.UUID  `json:"id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	SessionID  *string    `json:"session_id,omitempty"`
	CouponCode *string    `json:"coupon_code,omitempty"`
	Items      []CartItem `json:"items"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Derived by Recalculate, never stored
	Totals Totals `json:"totals"`
}

// CartItem snapshots product name/price/image at add time.
// The snapshot is authoritative at checkout.
type CartItem struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    string          `json:"image_url"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (ci CartItem) LineTotal() decimal.Decimal {
	return ci.UnitPrice.Mul(decimal.NewFromInt(int64(ci.Quantity)))
}

func (c *Cart) Owner() Owner {
	return Owner{UserID: c.UserID, SessionID: c.SessionID}
}

func (c *Cart) OwnedBy(o Owner) bool {
	if o.UserID != nil {
		return c.UserID != nil && *c.UserID == *o.UserID
	}
	if o.SessionID != nil {
		return c.SessionID != nil && *c.SessionID == *o.SessionID
	}
	return false
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindItem returns the index of productID in Items, or -1
func (c *Cart) FindItem(productID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) RemoveAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// ClampQuantity caps merged quantities at MaxItemQuantity
func ClampQuantity(q int) int {
	if q > MaxItemQuantity {
		return MaxItemQuantity
	}
	return q
}
