package notify

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/pablocruz84/loja-nextjs-pix/internal/order"
)

func decimalFromInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// BuildOrderPDF renders the back-office order summary that gets attached to
// the notification email.
func BuildOrderPDF(storeName string, o *order.Order, items []order.Item) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; the translator keeps the Portuguese accents.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Header band in the store's blue.
	pdf.SetFillColor(13, 74, 118)
	pdf.Rect(0, 0, 210, 30, "F")
	pdf.SetTextColor(244, 202, 62)
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetXY(10, 8)
	pdf.CellFormat(190, 10, tr(storeName), "", 1, "C", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(10, 38)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(190, 8, fmt.Sprintf("Pedido #%d", o.ID), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	paidAt := ""
	if o.PaidAt != nil {
		paidAt = o.PaidAt.Format("02/01/2006 15:04")
	}
	lines := []string{
		fmt.Sprintf("Data: %s", o.CreatedAt.Format("02/01/2006 15:04")),
		fmt.Sprintf("Pagamento: %s", paidAt),
		fmt.Sprintf("Cliente: %s", o.Customer.Name),
		fmt.Sprintf("CPF: %s", o.Customer.CPF),
		fmt.Sprintf("Telefone: %s", o.Customer.Phone),
		fmt.Sprintf("Endereço: %s, %s - %s, %s/%s",
			o.Customer.Street, o.Customer.Number, o.Customer.District, o.Customer.City, o.Customer.State),
	}
	if o.Customer.Reference != "" {
		lines = append(lines, fmt.Sprintf("Ponto de referência: %s", o.Customer.Reference))
	}
	for _, l := range lines {
		pdf.CellFormat(190, 6, tr(l), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Items table.
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(95, 7, "Produto", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 7, "Qtd", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 7, tr("Preço unit."), "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Subtotal", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, it := range items {
		sub := it.UnitPrice.Mul(decimalFromInt(it.Quantity))
		pdf.CellFormat(95, 7, tr(it.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, fmt.Sprintf("%d", it.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 7, "R$ "+it.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, "R$ "+sub.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(155, 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, "R$ "+o.Total.StringFixed(2), "1", 1, "R", false, 0, "")

	pdf.SetY(-25)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(190, 5, fmt.Sprintf("Gerado em %s", time.Now().Format("02/01/2006 15:04")), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("notify: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
