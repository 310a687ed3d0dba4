package receipts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflowhq/zapflow/internal/logging"
)

func TestExtractFullReceipt(t *testing.T) {
	e := NewExtractor(logging.NewNop())
	doc := []byte(`Comprovante de transferência
Valor: R$ 1.250,00
Data: 31/08/2026
Pagador: Maria da Silva
`)

	receipt, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.True(t, receipt.IsValid)
	assert.Equal(t, "1.250,00", receipt.Value)
	assert.Equal(t, "31/08/2026", receipt.Date)
	assert.Equal(t, "Maria da Silva", receipt.Payer)
}

func TestExtractValueWithoutCurrencyPrefix(t *testing.T) {
	e := NewExtractor(logging.NewNop())

	receipt, err := e.Extract(context.Background(), []byte("total 89,90 em 01.09.2026"))
	require.NoError(t, err)

	assert.True(t, receipt.IsValid)
	assert.Equal(t, "89,90", receipt.Value)
	assert.Equal(t, "01.09.2026", receipt.Date)
}

func TestExtractWithoutValueIsInvalid(t *testing.T) {
	e := NewExtractor(logging.NewNop())

	receipt, err := e.Extract(context.Background(), []byte("documento sem valores"))
	require.NoError(t, err)

	assert.False(t, receipt.IsValid)
	assert.Empty(t, receipt.Value)
}
