package httpx

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/config"
	"github.com/pablocruz84/loja-nextjs-pix/internal/customer"
	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/payment"
	"github.com/pablocruz84/loja-nextjs-pix/internal/product"
	"github.com/pablocruz84/loja-nextjs-pix/internal/recon"
	"github.com/pablocruz84/loja-nextjs-pix/internal/settings"
)

type Server struct {
	Cfg       config.Config
	Log       *zap.Logger
	Orders    order.Repository
	Products  product.Repository
	Customers customer.Repository
	Settings  settings.Repository
	Engine    *recon.Engine
	Gateways  map[string]payment.Gateway
	Redis     *redis.Client // nil disables the status cache

	validate *validator.Validate
}

func NewServer(cfg config.Config, log *zap.Logger,
	orders order.Repository, products product.Repository,
	customers customer.Repository, sett settings.Repository,
	engine *recon.Engine, gateways map[string]payment.Gateway,
	rdb *redis.Client) *Server {
	return &Server{
		Cfg:       cfg,
		Log:       log,
		Orders:    orders,
		Products:  products,
		Customers: customers,
		Settings:  sett,
		Engine:    engine,
		Gateways:  gateways,
		Redis:     rdb,
		validate:  validator.New(),
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(s.Log))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	{
		api.GET("/products", s.listProducts)
		api.POST("/checkout", s.checkout)
		api.GET("/orders/:id/status", s.orderStatus)
		api.POST("/orders/:id/verify", s.verifyOrder)
		api.POST("/orders/:id/cancel", s.cancelOrder)

		api.POST("/webhook", s.mercadoPagoWebhook)
		api.GET("/webhook", s.webhookLiveness("Webhook Mercado Pago ativo"))
		api.POST("/webhook/pagbank", s.pagBankWebhook)
		api.GET("/webhook/pagbank", s.webhookLiveness("Webhook PagBank ativo"))

		api.POST("/admin/login", s.adminLogin)
		admin := api.Group("/admin", RequireAdmin(s.Cfg.JWTSecret))
		{
			admin.POST("/products", s.createProduct)
			admin.PUT("/products/:id", s.updateProduct)
			admin.DELETE("/products/:id", s.deleteProduct)
			admin.GET("/sales", s.listSales)
			admin.GET("/customers", s.listCustomers)
			admin.GET("/settings", s.getSettings)
			admin.PUT("/settings", s.putSettings)
			admin.POST("/orders/:id/confirm", s.confirmOrder)
		}
	}
	return r
}

func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.Cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
