package render

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	out, err := New().Render(context.Background(), Data{
		OperatorName:     "Sunrise Cable",
		ReceiptID:        "RCP2401000001",
		PaidAt:           "15 Jan 2024",
		SubscriberName:   "Asha",
		Identifier:       "SUB-001",
		Contact:          "******3210",
		BillPeriod:       "January 2024",
		TotalPayable:     "300.00",
		PaidAmount:       "500.00",
		PaymentMode:      "UPI",
		TransactionRef:   "UPI-REF-1",
		RemainingBalance: "-200.00",
		CollectedBy:      "operator@example.com",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresReceiptID(t *testing.T) {
	_, err := New().Render(context.Background(), Data{})
	assert.ErrorIs(t, err, ErrMissingReceiptID)
}
