package domain

import (
	"encoding/json"
	"testing"

	"github.com/sebuszqo/PaymentMethods/internal/payment/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		in    string
		month int
		year  int
	}{
		{"4/27", 4, 2027},
		{"04/27", 4, 2027},
		{"12/2031", 12, 2031},
		{" 1/30 ", 1, 2030},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := ParseExpiry(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.month, e.Month)
			assert.Equal(t, tt.year, e.Year)
		})
	}
}

func TestParseExpiry_Invalid(t *testing.T) {
	for _, in := range []string{"", "0427", "13/27", "0/27", "ab/27", "04/7", "04/x7"} {
		_, err := ParseExpiry(in)
		assert.Error(t, err, in)
		assert.True(t, errors.IsValidationError(err), in)
	}
}

func TestExpiry_Formats(t *testing.T) {
	e, err := NewExpiry(4, 2027)
	require.NoError(t, err)

	assert.Equal(t, "04/27", e.String())
	assert.Equal(t, "4/27", e.StoreFormat())

	v, err := e.Value()
	require.NoError(t, err)
	assert.Equal(t, "4/27", v)

	body, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `"04/27"`, string(body))

	var scanned Expiry
	require.NoError(t, scanned.Scan([]byte("4/27")))
	assert.Equal(t, e, scanned)
	assert.Error(t, scanned.Scan(42))
}

func TestNewPaymentMethod_DefaultsHolderName(t *testing.T) {
	m, err := NewPaymentMethod("u1", CardDetails{SourceID: "card_1", Brand: "Visa", Last4: "4242", ExpMonth: 8, ExpYear: 2028})
	require.NoError(t, err)

	assert.Equal(t, DefaultHolderName, m.HolderName)
	assert.Equal(t, "4242", m.DisplayDigits)
	assert.Equal(t, "08/28", m.Expiry.String())
	assert.False(t, m.IsDefault)

	m, err = NewPaymentMethod("u1", CardDetails{SourceID: "card_2", Last4: "0005", ExpMonth: 1, ExpYear: 2029, Name: "Luce D"})
	require.NoError(t, err)
	assert.Equal(t, "Luce D", m.HolderName)

	_, err = NewPaymentMethod("u1", CardDetails{SourceID: "card_3", Last4: "0005", ExpMonth: 0, ExpYear: 2029})
	assert.True(t, errors.IsValidationError(err))
}
