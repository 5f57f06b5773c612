package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		ticker   string
		kind     Kind
		currency string
		longport string
		yahoo    string
	}{
		{"600519", CNMainland, "CNY", "600519.SH", "600519.SS"},
		{"000001.SZ", CNMainland, "CNY", "000001.SZ", "000001.SZ"},
		{"0700.HK", HK, "HKD", "700.HK", "0700.HK"},
		{"9988.hk", HK, "HKD", "9988.HK", "9988.HK"},
		{"AAPL", US, "USD", "AAPL.US", "AAPL"},
		{"12345", US, "USD", "12345.US", "12345"},
	}
	for _, tc := range cases {
		t.Run(tc.ticker, func(t *testing.T) {
			info := Classify(tc.ticker)
			assert.Equal(t, tc.kind, info.Kind)
			assert.Equal(t, tc.currency, info.Currency)
			assert.Equal(t, tc.longport, info.LongportSymbol())
			assert.Equal(t, tc.yahoo, info.YahooSymbol())
		})
	}
}

func TestClassifyWithOverride(t *testing.T) {
	info, err := ClassifyWithOverride("AAPL", "cn")
	require.NoError(t, err)
	assert.Equal(t, CNMainland, info.Kind)
	assert.Equal(t, "¥", info.CurrencySymbol)

	info, err = ClassifyWithOverride("600519", "")
	require.NoError(t, err)
	assert.Equal(t, CNMainland, info.Kind)

	_, err = ClassifyWithOverride("AAPL", "mars")
	assert.Error(t, err)
}
