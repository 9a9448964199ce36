package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pablocruz84/loja-nextjs-pix/internal/config"
	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/product"
	"github.com/pablocruz84/loja-nextjs-pix/internal/settings"
)

const adminTokenTTL = 12 * time.Hour

type loginRequest struct {
	User string `json:"user" binding:"required"`
	Pass string `json:"pass" binding:"required"`
}

func (s *Server) adminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.User != s.Cfg.AdminUser ||
		bcrypt.CompareHashAndPassword([]byte(s.Cfg.AdminPassHash), []byte(req.Pass)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "credenciais inválidas"})
		return
	}

	token, err := AdminToken(s.Cfg.JWTSecret, req.User, adminTokenTTL)
	if err != nil {
		s.Log.Error("sign admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(adminTokenTTL.Seconds())})
}

func (s *Server) listProducts(c *gin.Context) {
	q := product.Query{
		Q:      c.Query("q"),
		Limit:  intQuery(c, "limit", 20),
		Offset: intQuery(c, "offset", 0),
	}
	items, err := s.Products.List(c.Request.Context(), q)
	if err != nil {
		s.Log.Error("list products", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if items == nil {
		items = []product.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": items})
}

func (s *Server) createProduct(c *gin.Context) {
	var req product.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	// The repository assigns the next catalog code on insert.
	p := product.Product{
		Name:     req.Name,
		Category: req.Category,
		Price:    price,
		Stock:    req.Stock,
		Unit:     req.Unit,
		ImageURL: req.ImageURL,
	}
	if err := s.Products.Create(c.Request.Context(), &p); err != nil {
		s.Log.Error("create product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) updateProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	var req product.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	p, err := s.Products.GetByID(ctx, id)
	if errors.Is(err, product.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "produto não encontrado"})
		return
	}
	if err != nil {
		s.Log.Error("get product", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	updatePrice := false
	if req.Price != "" {
		price, err := decimal.NewFromString(req.Price)
		if err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
			return
		}
		p.Price = price
		updatePrice = true
	}
	p.Name = req.Name
	p.Category = req.Category
	p.Unit = req.Unit
	p.ImageURL = req.ImageURL
	if req.Stock != nil {
		p.Stock = *req.Stock
	}

	if err := s.Products.Update(ctx, p, updatePrice); err != nil {
		s.Log.Error("update product", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	updated, err := s.Products.GetByID(ctx, id)
	if err != nil {
		s.Log.Error("reload product", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	deleted, err := s.Products.Delete(c.Request.Context(), id)
	if err != nil {
		s.Log.Error("delete product", zap.Int64("product_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "produto não encontrado"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listSales(c *gin.Context) {
	orders, err := s.Orders.List(c.Request.Context(),
		intQuery(c, "limit", 20), intQuery(c, "offset", 0))
	if err != nil {
		s.Log.Error("list sales", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": orders})
}

func (s *Server) listCustomers(c *gin.Context) {
	customers, err := s.Customers.List(c.Request.Context(),
		intQuery(c, "limit", 20), intQuery(c, "offset", 0))
	if err != nil {
		s.Log.Error("list customers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (s *Server) getSettings(c *gin.Context) {
	sett, err := s.Settings.Get(c.Request.Context())
	if err != nil {
		s.Log.Error("load settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, sett)
}

func (s *Server) putSettings(c *gin.Context) {
	var req settings.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Gateway != config.GatewayMercadoPago && req.Gateway != config.GatewayPagBank {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown gateway"})
		return
	}
	saved, err := s.Settings.Put(c.Request.Context(), req)
	if err != nil {
		s.Log.Error("save settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, saved)
}

// confirmOrder is the back-office escape hatch for payments the customer
// proves out of band (bank receipt over WhatsApp and the like).
func (s *Server) confirmOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := s.Engine.ConfirmManual(c.Request.Context(), id); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pedido não encontrado"})
			return
		}
		s.Log.Error("manual confirm", zap.Int64("order_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "status": order.StatusPaid})
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
