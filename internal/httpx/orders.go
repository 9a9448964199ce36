package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/redisx"
)

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return id, true
}

// orderStatus is the polling endpoint the storefront hits while the customer
// waits for the pix to settle. The short redis cache keeps a tab left open on
// the confirmation page from hammering postgres.
func (s *Server) orderStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	key := redisx.OrderStatusKey(id)
	if s.Redis != nil {
		if cached, err := s.Redis.Get(ctx, key).Result(); err == nil {
			c.JSON(http.StatusOK, gin.H{"order_id": id, "status": cached, "cached": true})
			return
		} else if !errors.Is(err, redis.Nil) {
			s.Log.Warn("status cache read", zap.Int64("order_id", id), zap.Error(err))
		}
	}

	st, err := s.Orders.GetStatus(ctx, id)
	if errors.Is(err, order.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "pedido não encontrado"})
		return
	}
	if err != nil {
		s.Log.Error("get order status", zap.Int64("order_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if s.Redis != nil {
		if err := s.Redis.Set(ctx, key, string(st), redisx.TTLStatusCache).Err(); err != nil {
			s.Log.Warn("status cache write", zap.Int64("order_id", id), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": st})
}

// verifyOrder re-checks the charge with the provider on demand, covering the
// case where a webhook never arrived and the customer clicks "já paguei".
func (s *Server) verifyOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	o, _, err := s.Orders.GetByID(ctx, id)
	if errors.Is(err, order.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "pedido não encontrado"})
		return
	}
	if err != nil {
		s.Log.Error("get order", zap.Int64("order_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if o.Status == order.StatusPaid {
		c.JSON(http.StatusOK, gin.H{"order_id": id, "status": o.Status})
		return
	}
	if o.ChargeID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "pedido sem cobrança pix"})
		return
	}

	if err := s.Engine.Reconcile(ctx, o.Provider, o.ChargeID); err != nil {
		s.Log.Warn("verify reconcile", zap.Int64("order_id", id), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "não foi possível consultar o pagamento"})
		return
	}

	st, err := s.Orders.GetStatus(ctx, id)
	if err != nil {
		s.Log.Error("get order status", zap.Int64("order_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": st})
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	canceled, err := s.Orders.Cancel(ctx, id)
	if errors.Is(err, order.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "pedido não encontrado"})
		return
	}
	if err != nil {
		s.Log.Error("cancel order", zap.Int64("order_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !canceled {
		c.JSON(http.StatusConflict, gin.H{"error": "pedido não está mais pendente"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": order.StatusCanceled})
}
