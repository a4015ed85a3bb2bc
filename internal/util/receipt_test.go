package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiptStatus(t *testing.T) {
	status, err := ReceiptStatus("0x1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status)

	status, err = ReceiptStatus("0x0")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), status)
}

func TestReceiptStatus_Empty(t *testing.T) {
	_, err := ReceiptStatus("")
	assert.Error(t, err)
}

func TestReceiptStatus_Malformed(t *testing.T) {
	_, err := ReceiptStatus("not-hex")
	assert.Error(t, err)
}
