// Package render draws payment receipts as PDF documents.
package render

import (
	"context"
	"errors"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrMissingReceiptID = errors.New("missing_receipt_id")

// Data is the printable view of one payment. Amounts arrive preformatted.
type Data struct {
	OperatorName     string
	ReceiptID        string
	PaidAt           string
	SubscriberName   string
	Identifier       string
	Contact          string
	BillPeriod       string
	TotalPayable     string
	PaidAmount       string
	PaymentMode      string
	TransactionRef   string
	RemainingBalance string
	CollectedBy      string
}

type Renderer interface {
	Render(ctx context.Context, data Data) ([]byte, error)
}

type PDFRenderer struct{}

func New() Renderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(ctx context.Context, data Data) ([]byte, error) {
	if strings.TrimSpace(data.ReceiptID) == "" {
		return nil, ErrMissingReceiptID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payment Receipt", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.OperatorName, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(18,
		col.New(6).Add(
			text.New("Receipt number: "+data.ReceiptID, props.Text{Top: 0}),
			text.New("Date paid: "+data.PaidAt, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Bill period: "+data.BillPeriod, props.Text{Top: 0, Align: align.Right}),
			text.New("Collected by: "+data.CollectedBy, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(22,
		col.New(12).Add(
			text.New("Received from", props.Text{Style: fontstyle.Bold}),
			text.New(data.SubscriberName, props.Text{Top: 5}),
			text.New("Subscriber ID: "+data.Identifier, props.Text{Top: 10}),
			text.New("Contact: "+data.Contact, props.Text{Top: 15}),
		),
	)

	m.AddRow(4, line.NewCol(12))

	rows := [][2]string{
		{"Total payable", data.TotalPayable},
		{"Amount paid", data.PaidAmount},
		{"Payment mode", data.PaymentMode},
	}
	if ref := strings.TrimSpace(data.TransactionRef); ref != "" {
		rows = append(rows, [2]string{"Transaction reference", ref})
	}
	for _, row := range rows {
		m.AddRow(8,
			text.NewCol(8, row[0], props.Text{Size: 10}),
			text.NewCol(4, row[1], props.Text{Size: 10, Align: align.Right}),
		)
	}

	m.AddRow(4, line.NewCol(12))
	m.AddRow(10,
		text.NewCol(8, "Balance after payment", props.Text{Size: 11, Style: fontstyle.Bold}),
		text.NewCol(4, data.RemainingBalance, props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
