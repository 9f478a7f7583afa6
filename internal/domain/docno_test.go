package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocNumbers(t *testing.T) {
	day := time.Date(2024, 5, 7, 14, 30, 0, 0, time.UTC)

	assert.Equal(t, "TOKOAL-20240507-KSR1-0001", SaleDocNo(day, "KSR1", 1))
	assert.Equal(t, "TOKOAL-20240507-KSR2-0123", SaleDocNo(day, "KSR2", 123))
	assert.Equal(t, "RTN-20240507-0002", ReturnDocNo(day, 2))
	assert.Equal(t, "PO-20240507-0010", PurchaseDocNo(day, 10))
}

func TestLineKey(t *testing.T) {
	assert.Equal(t, "p-1|kg", LineKey("p-1", "kg"))
	assert.NotEqual(t, LineKey("p-1", "kg"), LineKey("p-1", "gram"))
}
