package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ShippingMethod string

const (
	ShippingMethodRoRo            ShippingMethod = "RORO"
	ShippingMethodSharedContainer ShippingMethod = "SHARED_CONTAINER"
	ShippingMethodContainer       ShippingMethod = "CONTAINER"
	ShippingMethodAirFreight      ShippingMethod = "AIR_FREIGHT"
)

// FeeSettings is the mutable fee schedule. Percentages are on a 0-100 scale.
type FeeSettings struct {
	ImportDutyPercent  decimal.Decimal `json:"importDutyPercent"`
	VATPercent         decimal.Decimal `json:"vatPercent"`
	CISSPercent        decimal.Decimal `json:"cissPercent"`
	SourcingFeePercent decimal.Decimal `json:"sourcingFeePercent"`
	DepositPercent     decimal.Decimal `json:"depositPercent"`
	PrePurchaseInspUSD decimal.Decimal `json:"prePurchaseInspectionUsd"`
	USHandlingFeeUSD   decimal.Decimal `json:"usHandlingFeeUsd"`
	ShippingCostUSD    decimal.Decimal `json:"shippingCostUsd"`
	ClearingFeeUSD     decimal.Decimal `json:"clearingFeeUsd"`
	PortChargesUSD     decimal.Decimal `json:"portChargesUsd"`
	LocalDeliveryUSD   decimal.Decimal `json:"localDeliveryUsd"`
	UpdatedBy          string          `json:"updatedBy,omitempty"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// DefaultFeeSettings is written the first time the schedule is read.
func DefaultFeeSettings() FeeSettings {
	return FeeSettings{
		ImportDutyPercent:  decimal.NewFromInt(35),
		VATPercent:         decimal.RequireFromString("7.5"),
		CISSPercent:        decimal.NewFromInt(1),
		SourcingFeePercent: decimal.NewFromInt(5),
		DepositPercent:     decimal.NewFromInt(30),
		PrePurchaseInspUSD: decimal.NewFromInt(150),
		USHandlingFeeUSD:   decimal.NewFromInt(350),
		ShippingCostUSD:    decimal.NewFromInt(1800),
		ClearingFeeUSD:     decimal.NewFromInt(1200),
		PortChargesUSD:     decimal.NewFromInt(600),
		LocalDeliveryUSD:   decimal.NewFromInt(250),
		UpdatedAt:          time.Now().UTC(),
	}
}

// FeeSettingsPatch is a partial fee schedule update. Nil fields keep the
// value currently in force.
type FeeSettingsPatch struct {
	ImportDutyPercent  *decimal.Decimal `json:"importDutyPercent"`
	VATPercent         *decimal.Decimal `json:"vatPercent"`
	CISSPercent        *decimal.Decimal `json:"cissPercent"`
	SourcingFeePercent *decimal.Decimal `json:"sourcingFeePercent"`
	DepositPercent     *decimal.Decimal `json:"depositPercent"`
	PrePurchaseInspUSD *decimal.Decimal `json:"prePurchaseInspectionUsd"`
	USHandlingFeeUSD   *decimal.Decimal `json:"usHandlingFeeUsd"`
	ShippingCostUSD    *decimal.Decimal `json:"shippingCostUsd"`
	ClearingFeeUSD     *decimal.Decimal `json:"clearingFeeUsd"`
	PortChargesUSD     *decimal.Decimal `json:"portChargesUsd"`
	LocalDeliveryUSD   *decimal.Decimal `json:"localDeliveryUsd"`
}

func (p FeeSettingsPatch) IsEmpty() bool {
	return p == FeeSettingsPatch{}
}

// ApplyTo returns base with every non-nil field of p written over it.
func (p FeeSettingsPatch) ApplyTo(base FeeSettings) FeeSettings {
	set := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.ImportDutyPercent, p.ImportDutyPercent)
	set(&base.VATPercent, p.VATPercent)
	set(&base.CISSPercent, p.CISSPercent)
	set(&base.SourcingFeePercent, p.SourcingFeePercent)
	set(&base.DepositPercent, p.DepositPercent)
	set(&base.PrePurchaseInspUSD, p.PrePurchaseInspUSD)
	set(&base.USHandlingFeeUSD, p.USHandlingFeeUSD)
	set(&base.ShippingCostUSD, p.ShippingCostUSD)
	set(&base.ClearingFeeUSD, p.ClearingFeeUSD)
	set(&base.PortChargesUSD, p.PortChargesUSD)
	set(&base.LocalDeliveryUSD, p.LocalDeliveryUSD)
	return base
}

func (f FeeSettings) Validate() error {
	hundred := decimal.NewFromInt(100)
	var fields []FieldError
	percents := map[string]decimal.Decimal{
		"importDutyPercent":  f.ImportDutyPercent,
		"vatPercent":         f.VATPercent,
		"cissPercent":        f.CISSPercent,
		"sourcingFeePercent": f.SourcingFeePercent,
		"depositPercent":     f.DepositPercent,
	}
	for _, name := range []string{"importDutyPercent", "vatPercent", "cissPercent", "sourcingFeePercent", "depositPercent"} {
		v := percents[name]
		if v.IsNegative() || v.GreaterThan(hundred) {
			fields = append(fields, FieldError{Field: name, Message: "must be between 0 and 100"})
		}
	}
	fixed := map[string]decimal.Decimal{
		"prePurchaseInspectionUsd": f.PrePurchaseInspUSD,
		"usHandlingFeeUsd":         f.USHandlingFeeUSD,
		"shippingCostUsd":          f.ShippingCostUSD,
		"clearingFeeUsd":           f.ClearingFeeUSD,
		"portChargesUsd":           f.PortChargesUSD,
		"localDeliveryUsd":         f.LocalDeliveryUSD,
	}
	for _, name := range []string{"prePurchaseInspectionUsd", "usHandlingFeeUsd", "shippingCostUsd", "clearingFeeUsd", "portChargesUsd", "localDeliveryUsd"} {
		if fixed[name].IsNegative() {
			fields = append(fields, FieldError{Field: name, Message: "must not be negative"})
		}
	}
	if len(fields) > 0 {
		return NewValidationError("invalid fee settings", fields...)
	}
	return nil
}

// PriceBreakdown is the itemised USD calculation stored with orders and payments.
type PriceBreakdown struct {
	VehiclePriceUSD          decimal.Decimal `json:"vehiclePriceUsd"`
	ShippingMethod           ShippingMethod  `json:"shippingMethod"`
	SourcingFeeUSD           decimal.Decimal `json:"sourcingFeeUsd"`
	PrePurchaseInspectionUSD decimal.Decimal `json:"prePurchaseInspectionUsd"`
	USHandlingFeeUSD         decimal.Decimal `json:"usHandlingFeeUsd"`
	ShippingCostUSD          decimal.Decimal `json:"shippingCostUsd"`
	ImportDutyUSD            decimal.Decimal `json:"importDutyUsd"`
	VATUSD                   decimal.Decimal `json:"vatUsd"`
	CISSUSD                  decimal.Decimal `json:"cissUsd"`
	ClearingFeeUSD           decimal.Decimal `json:"clearingFeeUsd"`
	PortChargesUSD           decimal.Decimal `json:"portChargesUsd"`
	LocalDeliveryUSD         decimal.Decimal `json:"localDeliveryUsd"`
	ChargeTotalUSD           decimal.Decimal `json:"chargeTotalUsd"`
	LandedCostTotalUSD       decimal.Decimal `json:"landedCostTotalUsd"`
}

func (b PriceBreakdown) String() string {
	return fmt.Sprintf("charge=%s landed=%s method=%s", b.ChargeTotalUSD.StringFixed(2), b.LandedCostTotalUSD.StringFixed(2), b.ShippingMethod)
}
