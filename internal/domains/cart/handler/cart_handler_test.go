package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"food-ordering-backend/internal/domains/cart/model"
	"food-ordering-backend/internal/shared/middleware"
)

type stubService struct {
	owner model.Owner
	err   error
}

func (s *stubService) GetCart(_ context.Context, owner model.Owner) (*model.Cart, error) {
	s.owner = owner
	return &model.Cart{ID: uuid.New()}, s.err
}
func (s *stubService) GetByID(context.Context, uuid.UUID) (*model.Cart, error) { return nil, s.err }
func (s *stubService) AddItem(_ context.Context, owner model.Owner, _ model.AddItemRequest) (*model.Cart, error) {
	s.owner = owner
	if s.err != nil {
		return nil, s.err
	}
	return &model.Cart{ID: uuid.New()}, nil
}
func (s *stubService) UpdateQuantity(context.Context, model.Owner, uuid.UUID, int) (*model.Cart, error) {
	return nil, s.err
}
func (s *stubService) RemoveItem(context.Context, model.Owner, uuid.UUID) (*model.Cart, error) {
	return nil, s.err
}
func (s *stubService) ApplyCoupon(context.Context, model.Owner, string) (*model.Cart, error) {
	return nil, s.err
}
func (s *stubService) RemoveCoupon(context.Context, model.Owner) (*model.Cart, error) {
	return nil, s.err
}
func (s *stubService) Recalculate(context.Context, *model.Cart) error           { return nil }
func (s *stubService) Clear(context.Context, uuid.UUID) error                   { return nil }
func (s *stubService) MergeGuestCart(context.Context, string, uuid.UUID) error { return nil }

func newRouter(svc *stubService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CartMiddleware(middleware.CartMiddlewareConfig{CookiePath: "/"}))
	h := NewHandler(svc)
	r.GET("/cart", h.GetCart)
	r.POST("/cart/items", h.AddItem)
	return r
}

func TestGetCart_GuestSessionFromHeader(t *testing.T) {
	svc := &stubService{}
	r := newRouter(svc)
	session := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(middleware.SessionHeaderName, session)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.owner.SessionID)
	assert.Equal(t, session, *svc.owner.SessionID)
}

func TestAddItem_ValidationError(t *testing.T) {
	r := newRouter(&stubService{})

	body, _ := json.Marshal(map[string]interface{}{"product_id": "not-a-uuid", "quantity": 0})
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddItem_MapsDomainErrors(t *testing.T) {
	r := newRouter(&stubService{err: model.ErrProductUnavailable})

	body, _ := json.Marshal(map[string]interface{}{"product_id": uuid.NewString(), "quantity": 1})
	req := httptest.NewRequest(http.MethodPost, "/cart/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "PRODUCT_UNAVAILABLE", resp.Error.Code)
}
