package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pablocruz84/loja-nextjs-pix/internal/customer"
	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
	"github.com/pablocruz84/loja-nextjs-pix/internal/payment"
)

type checkoutItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type checkoutRequest struct {
	Name      string         `json:"name" validate:"required"`
	CPF       string         `json:"cpf" validate:"required"`
	Phone     string         `json:"phone" validate:"required"`
	Email     string         `json:"email" validate:"omitempty,email"`
	Street    string         `json:"street" validate:"required"`
	Number    string         `json:"number" validate:"required"`
	District  string         `json:"district" validate:"required"`
	City      string         `json:"city" validate:"required"`
	State     string         `json:"state" validate:"required,len=2"`
	Reference string         `json:"reference"`
	PostCode  string         `json:"post_code"`
	Items     []checkoutItem `json:"items" validate:"required,min=1,dive"`
}

func (s *Server) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	sett, err := s.Settings.Get(ctx)
	if err != nil {
		s.Log.Error("load settings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !sett.StoreOpen {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loja fechada no momento"})
		return
	}
	gw, ok := s.Gateways[sett.Gateway]
	if !ok {
		s.Log.Error("gateway not configured", zap.String("gateway", sett.Gateway))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "pagamento indisponível"})
		return
	}

	cust, err := s.Customers.GetByCPF(ctx, req.CPF)
	switch {
	case errors.Is(err, customer.ErrNotFound):
		cust = &customer.Customer{
			Name:      req.Name,
			CPF:       req.CPF,
			Phone:     req.Phone,
			Street:    req.Street,
			Number:    req.Number,
			District:  req.District,
			City:      req.City,
			State:     req.State,
			Reference: req.Reference,
		}
		if err := s.Customers.Create(ctx, cust); err != nil {
			s.Log.Error("create customer", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
	case err != nil:
		s.Log.Error("lookup customer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	snap := order.CustomerSnapshot{
		Name:      req.Name,
		CPF:       customer.NormalizeCPF(req.CPF),
		Phone:     req.Phone,
		Street:    req.Street,
		Number:    req.Number,
		District:  req.District,
		City:      req.City,
		State:     req.State,
		Reference: req.Reference,
	}
	inputs := make([]order.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		inputs = append(inputs, order.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, items, err := s.Orders.Create(ctx, cust.ID, snap, inputs)
	if err != nil {
		if errors.Is(err, order.ErrUnknownProduct) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "produto inexistente no pedido"})
			return
		}
		s.Log.Error("create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	chReq := payment.ChargeRequest{
		OrderID: o.ID,
		Total:   o.Total,
		Payer: payment.Payer{
			Name:     req.Name,
			Email:    req.Email,
			CPF:      req.CPF,
			Phone:    req.Phone,
			Street:   req.Street,
			Number:   req.Number,
			District: req.District,
			City:     req.City,
			State:    req.State,
			PostCode: req.PostCode,
		},
	}
	for _, it := range items {
		chReq.Items = append(chReq.Items, payment.LineItem{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	charge, err := gw.CreateCharge(ctx, chReq)
	if err != nil {
		// order stays pending so the charge can be retried later
		s.Log.Error("create charge",
			zap.Int64("order_id", o.ID),
			zap.String("provider", gw.Name()),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "falha ao gerar cobrança pix",
			"order_id": o.ID,
		})
		return
	}
	if err := s.Orders.AttachCharge(ctx, o.ID, gw.Name(), charge.ID, charge.QRText); err != nil {
		s.Log.Error("attach charge", zap.Int64("order_id", o.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	s.Log.Info("checkout complete",
		zap.Int64("order_id", o.ID),
		zap.String("provider", gw.Name()),
		zap.String("charge_id", charge.ID),
		zap.String("total", o.Total.StringFixed(2)))

	c.JSON(http.StatusCreated, gin.H{
		"order_id":       o.ID,
		"charge_id":      charge.ID,
		"provider":       gw.Name(),
		"qr_code":        charge.QRText,
		"qr_code_base64": charge.QRImageB64,
		"total":          o.Total.StringFixed(2),
		"status":         order.StatusPending,
	})
}
