package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/config"
	"github.com/pablocruz84/loja-nextjs-pix/internal/recon"
)

// Webhook handlers always answer 200. Providers retry on anything else, and a
// malformed or duplicate notification is not a failure worth retrying; the
// sweeper catches whatever the webhook path misses.

func (s *Server) webhookLiveness(msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": msg})
	}
}

func (s *Server) mercadoPagoWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		s.Log.Warn("mercadopago webhook read", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	n, ok := recon.ParseMercadoPago(raw)
	if !ok {
		s.Log.Info("mercadopago webhook ignored", zap.ByteString("body", truncate(raw, 512)))
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	if err := s.Engine.Reconcile(c.Request.Context(), config.GatewayMercadoPago, n.ChargeID); err != nil {
		s.Log.Error("mercadopago webhook reconcile",
			zap.String("charge_id", n.ChargeID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "charge_id": n.ChargeID})
}

func (s *Server) pagBankWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		s.Log.Warn("pagbank webhook read", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	n, ok := recon.ParsePagBank(raw)
	if !ok {
		s.Log.Info("pagbank webhook ignored", zap.ByteString("body", truncate(raw, 512)))
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	if err := s.Engine.Reconcile(c.Request.Context(), config.GatewayPagBank, n.ChargeID); err != nil {
		s.Log.Error("pagbank webhook reconcile",
			zap.String("charge_id", n.ChargeID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "charge_id": n.ChargeID})
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
