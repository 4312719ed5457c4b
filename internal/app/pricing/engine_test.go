package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-orders/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestChargeTotalRoRoWithDefaults(t *testing.T) {
	fees := domain.DefaultFeeSettings()
	price := d("20000")

	q, err := ChargeTotal(price, domain.ShippingMethodRoRo, fees)
	require.NoError(t, err)

	sourcing := price.Mul(fees.SourcingFeePercent).Div(d("100"))
	want := price.Add(sourcing).Add(fees.PrePurchaseInspUSD).Add(fees.USHandlingFeeUSD).Add(d("1800"))
	assert.True(t, want.Equal(q.TotalUSD), "got %s want %s", q.TotalUSD, want)
	assert.True(t, q.Breakdown.ShippingCostUSD.Equal(d("1800")))
	assert.True(t, q.TotalUSD.Equal(d("23300")), "20000 + 1000 + 150 + 350 + 1800")
}

func TestShippingLookupWinsOverScheduleDefault(t *testing.T) {
	fees := domain.DefaultFeeSettings()
	fees.ShippingCostUSD = d("9999")

	q, err := ChargeTotal(d("20000"), domain.ShippingMethodRoRo, fees)
	require.NoError(t, err)
	assert.True(t, q.Breakdown.ShippingCostUSD.Equal(d("1800")))
}

func TestUnknownShippingMethodFails(t *testing.T) {
	_, err := ChargeTotal(d("20000"), domain.ShippingMethod("UNKNOWN"), domain.DefaultFeeSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = ParseShippingMethod("UNKNOWN")
	assert.Error(t, err)
}

func TestEveryShippingMethodHasFixedCost(t *testing.T) {
	tests := map[domain.ShippingMethod]string{
		domain.ShippingMethodRoRo:            "1800",
		domain.ShippingMethodSharedContainer: "2300",
		domain.ShippingMethodContainer:       "3200",
		domain.ShippingMethodAirFreight:      "9500",
	}
	for method, want := range tests {
		got, err := ShippingCost(method)
		require.NoError(t, err, method)
		assert.True(t, got.Equal(d(want)), "%s: got %s", method, got)
	}
}

// The charged total leaves duty, VAT and CISS out; the landed cost adds them.
// Both are used, so both are kept.
func TestChargeAndLandedCostDiffer(t *testing.T) {
	fees := domain.DefaultFeeSettings()
	price := d("20000")

	charge, err := ChargeTotal(price, domain.ShippingMethodRoRo, fees)
	require.NoError(t, err)
	landed, err := LandedCostTotal(price, domain.ShippingMethodRoRo, fees)
	require.NoError(t, err)

	duty := d("7000") // 35%
	vat := d("1500")  // 7.5%
	ciss := d("200")  // 1%
	assert.True(t, charge.Breakdown.ImportDutyUSD.Equal(duty))
	assert.True(t, charge.Breakdown.VATUSD.Equal(vat))
	assert.True(t, charge.Breakdown.CISSUSD.Equal(ciss))
	assert.True(t, landed.TotalUSD.Equal(charge.TotalUSD.Add(duty).Add(vat).Add(ciss)))
	assert.True(t, charge.Breakdown.LandedCostTotalUSD.Equal(landed.TotalUSD))
}

func TestPercentagesAreDividedByHundred(t *testing.T) {
	fees := domain.DefaultFeeSettings()
	fees.SourcingFeePercent = d("2.5")

	q, err := ChargeTotal(d("10000"), domain.ShippingMethodAirFreight, fees)
	require.NoError(t, err)
	assert.True(t, q.Breakdown.SourcingFeeUSD.Equal(d("250")))
}

func TestNonPositivePriceRejected(t *testing.T) {
	_, err := ChargeTotal(decimal.Zero, domain.ShippingMethodRoRo, domain.DefaultFeeSettings())
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDepositAmount(t *testing.T) {
	fees := domain.DefaultFeeSettings()
	assert.True(t, DepositAmount(d("23300"), fees).Equal(d("6990")))
}

type stubFees struct {
	fees  domain.FeeSettings
	calls int
	err   error
}

func (s *stubFees) Current(context.Context) (*domain.FeeSettings, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	f := s.fees
	return &f, nil
}

func TestCalculatorUsesInjectedSchedule(t *testing.T) {
	custom := domain.DefaultFeeSettings()
	custom.PrePurchaseInspUSD = d("0")
	custom.USHandlingFeeUSD = d("0")
	custom.SourcingFeePercent = d("0")
	src := &stubFees{fees: custom}

	q, err := NewCalculator(src).Calculate(context.Background(), d("20000"), domain.ShippingMethodRoRo)
	require.NoError(t, err)
	assert.True(t, q.TotalUSD.Equal(d("21800")))
	assert.Equal(t, 1, src.calls)

	landed, err := NewCalculator(src).CalculateLandedCost(context.Background(), d("20000"), domain.ShippingMethodRoRo)
	require.NoError(t, err)
	assert.True(t, landed.TotalUSD.Equal(d("30500")))
}

func TestCalculatorPropagatesFeeSourceError(t *testing.T) {
	src := &stubFees{err: errors.New("db down")}
	_, err := NewCalculator(src).Calculate(context.Background(), d("20000"), domain.ShippingMethodRoRo)
	assert.Error(t, err)
}
