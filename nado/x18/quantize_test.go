package x18

import (
	"errors"
	"math/big"
	"testing"

	"github.com/betbot/goperp/nado/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testInstruments() []types.Instrument {
	return []types.Instrument{
		{ProductID: 2, Symbol: "BTC-PERP", SizeIncrement: decimal.RequireFromString("0.001"), PriceIncrement: decimal.RequireFromString("0.001")},
		{ProductID: 4, Symbol: "ETH-PERP", SizeIncrement: decimal.RequireFromString("0.01"), PriceIncrement: decimal.RequireFromString("0.01")},
		{ProductID: 8, Symbol: "SOL-PERP", SizeIncrement: decimal.RequireFromString("0.1"), PriceIncrement: decimal.RequireFromString("0.01")},
		{ProductID: 10, Symbol: "INK-PERP", SizeIncrement: decimal.RequireFromString("1"), PriceIncrement: decimal.RequireFromString("0.0001")},
	}
}

func TestQuantizeTruncatesTowardZero(t *testing.T) {
	sol := testInstruments()[2]
	cases := []struct {
		in   string
		kind Kind
		want string
	}{
		{"5.19", KindSize, "5.1"},
		{"-5.19", KindSize, "-5.1"},
		{"0.1", KindSize, "0.1"},
		{"180.009", KindPrice, "180"},
		{"175.5199", KindPrice, "175.51"},
		{"0.29999999999999999999", KindSize, "0.2"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Quantize(sol, decimal.RequireFromString(tc.in), tc.kind)
			require.NoError(t, err)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("Quantize(%s) got=%s want=%s", tc.in, got, tc.want)
			}
		})
	}
}

func TestQuantizeBelowStep(t *testing.T) {
	btc := testInstruments()[0]
	_, err := Quantize(btc, decimal.RequireFromString("0.0009"), KindSize)
	require.True(t, errors.Is(err, ErrInvalidQuantity), "got %v", err)

	_, err = Quantize(btc, decimal.Zero, KindSize)
	require.True(t, errors.Is(err, ErrInvalidQuantity))

	p, err := Quantize(btc, decimal.Zero, KindPrice)
	require.NoError(t, err)
	require.True(t, p.IsZero())
}

func TestQuantizeIdempotentAndAligned(t *testing.T) {
	inputs := []string{"0.123456789", "1", "12.3456", "99999.99999", "180.0", "0.5", "-3.14159", "1234567.891011121314"}
	for _, inst := range testInstruments() {
		for _, kind := range []Kind{KindSize, KindPrice} {
			for _, in := range inputs {
				once, err := Quantize(inst, decimal.RequireFromString(in), kind)
				if err != nil {
					require.ErrorIs(t, err, ErrInvalidQuantity)
					continue
				}
				twice, err := Quantize(inst, once, kind)
				require.NoError(t, err)
				if !once.Equal(twice) {
					t.Fatalf("product %d %s %s: not idempotent %s -> %s", inst.ProductID, kind, in, once, twice)
				}
				v := FromDecimal(once)
				require.NoError(t, CheckAligned(inst, v, kind))
				inc := FromDecimal(Increment(inst, kind))
				require.Zero(t, new(big.Int).Rem(v, inc).Sign())
			}
		}
	}
}

func TestQuantizeAway(t *testing.T) {
	sol := testInstruments()[2]
	got, err := QuantizeAway(sol, decimal.RequireFromString("175.518"), KindPrice)
	require.NoError(t, err)
	require.Equal(t, "175.52", got.String())

	got, err = QuantizeAway(sol, decimal.RequireFromString("-0.11"), KindSize)
	require.NoError(t, err)
	require.Equal(t, "-0.2", got.String())

	got, err = QuantizeAway(sol, decimal.RequireFromString("176.4"), KindPrice)
	require.NoError(t, err)
	require.Equal(t, "176.4", got.String())
}

func TestCheckAlignedRejectsOffStep(t *testing.T) {
	sol := testInstruments()[2]
	v := FromDecimal(decimal.RequireFromString("0.15"))
	require.ErrorIs(t, CheckAligned(sol, v, KindSize), ErrInvalidQuantity)
	require.NoError(t, CheckAligned(sol, big.NewInt(0), KindPrice))
}

func TestConversions(t *testing.T) {
	v := FromDecimal(decimal.RequireFromString("-2.0"))
	require.Equal(t, "-2000000000000000000", v.String())

	d, err := ParseDecimal("180000000000000000000")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.NewFromInt(180)))

	_, err = Parse("12abc")
	require.Error(t, err)
}
