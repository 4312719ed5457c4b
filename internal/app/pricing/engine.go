package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"vehicle-orders/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// shippingCosts are fixed per method. The fee schedule's shippingCostUsd is a
// display baseline only; the method lookup always wins.
var shippingCosts = map[domain.ShippingMethod]decimal.Decimal{
	domain.ShippingMethodRoRo:            decimal.NewFromInt(1800),
	domain.ShippingMethodSharedContainer: decimal.NewFromInt(2300),
	domain.ShippingMethodContainer:       decimal.NewFromInt(3200),
	domain.ShippingMethodAirFreight:      decimal.NewFromInt(9500),
}

// ShippingCost returns the fixed USD cost for a method. Unknown methods are
// rejected rather than priced with a fallback.
func ShippingCost(method domain.ShippingMethod) (decimal.Decimal, error) {
	cost, ok := shippingCosts[method]
	if !ok {
		return decimal.Zero, domain.NewValidationError("unsupported shipping method",
			domain.FieldError{Field: "shippingMethod", Message: fmt.Sprintf("unknown shipping method %q", method)})
	}
	return cost, nil
}

func ParseShippingMethod(value string) (domain.ShippingMethod, error) {
	method := domain.ShippingMethod(value)
	if _, err := ShippingCost(method); err != nil {
		return "", err
	}
	return method, nil
}

// Quote is the result of a calculation: a total plus the itemised breakdown.
type Quote struct {
	TotalUSD  decimal.Decimal       `json:"totalUsd"`
	Breakdown domain.PriceBreakdown `json:"breakdown"`
}

// Breakdown computes every line item for a vehicle price under a fee schedule.
// Both totals are filled in; ChargeTotal and LandedCostTotal pick one.
func Breakdown(vehiclePriceUSD decimal.Decimal, method domain.ShippingMethod, fees domain.FeeSettings) (domain.PriceBreakdown, error) {
	if !vehiclePriceUSD.IsPositive() {
		return domain.PriceBreakdown{}, domain.NewValidationError("invalid vehicle price",
			domain.FieldError{Field: "vehiclePriceUsd", Message: "must be greater than zero"})
	}
	shipping, err := ShippingCost(method)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}

	b := domain.PriceBreakdown{
		VehiclePriceUSD:          vehiclePriceUSD,
		ShippingMethod:           method,
		SourcingFeeUSD:           percentOf(vehiclePriceUSD, fees.SourcingFeePercent),
		PrePurchaseInspectionUSD: fees.PrePurchaseInspUSD,
		USHandlingFeeUSD:         fees.USHandlingFeeUSD,
		ShippingCostUSD:          shipping,
		ImportDutyUSD:            percentOf(vehiclePriceUSD, fees.ImportDutyPercent),
		VATUSD:                   percentOf(vehiclePriceUSD, fees.VATPercent),
		CISSUSD:                  percentOf(vehiclePriceUSD, fees.CISSPercent),
		ClearingFeeUSD:           fees.ClearingFeeUSD,
		PortChargesUSD:           fees.PortChargesUSD,
		LocalDeliveryUSD:         fees.LocalDeliveryUSD,
	}
	b.ChargeTotalUSD = vehiclePriceUSD.
		Add(b.SourcingFeeUSD).
		Add(b.PrePurchaseInspectionUSD).
		Add(b.USHandlingFeeUSD).
		Add(b.ShippingCostUSD)
	b.LandedCostTotalUSD = b.ChargeTotalUSD.
		Add(b.ImportDutyUSD).
		Add(b.VATUSD).
		Add(b.CISSUSD)
	return b, nil
}

// ChargeTotal is the amount collected from the customer. Import duty, VAT and
// CISS are shown in the breakdown but not charged.
func ChargeTotal(vehiclePriceUSD decimal.Decimal, method domain.ShippingMethod, fees domain.FeeSettings) (*Quote, error) {
	b, err := Breakdown(vehiclePriceUSD, method, fees)
	if err != nil {
		return nil, err
	}
	return &Quote{TotalUSD: b.ChargeTotalUSD, Breakdown: b}, nil
}

// LandedCostTotal is the charge total plus import duty, VAT and CISS.
func LandedCostTotal(vehiclePriceUSD decimal.Decimal, method domain.ShippingMethod, fees domain.FeeSettings) (*Quote, error) {
	b, err := Breakdown(vehiclePriceUSD, method, fees)
	if err != nil {
		return nil, err
	}
	return &Quote{TotalUSD: b.LandedCostTotalUSD, Breakdown: b}, nil
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// FeeSource supplies the fee schedule in force for one calculation.
type FeeSource interface {
	Current(ctx context.Context) (*domain.FeeSettings, error)
}

// Calculator binds the pure functions to a fee source. The schedule is read
// once per call and never mutated.
type Calculator struct {
	fees FeeSource
}

func NewCalculator(fees FeeSource) *Calculator {
	return &Calculator{fees: fees}
}

func (c *Calculator) Calculate(ctx context.Context, vehiclePriceUSD decimal.Decimal, method domain.ShippingMethod) (*Quote, error) {
	fees, err := c.fees.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee schedule: %w", err)
	}
	return ChargeTotal(vehiclePriceUSD, method, *fees)
}

func (c *Calculator) CalculateLandedCost(ctx context.Context, vehiclePriceUSD decimal.Decimal, method domain.ShippingMethod) (*Quote, error) {
	fees, err := c.fees.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load fee schedule: %w", err)
	}
	return LandedCostTotal(vehiclePriceUSD, method, *fees)
}

// DepositAmount is the share of a charge total collected up front.
func DepositAmount(chargeTotalUSD decimal.Decimal, fees domain.FeeSettings) decimal.Decimal {
	return percentOf(chargeTotalUSD, fees.DepositPercent)
}
