package cache

import "github.com/shopspring/decimal"

// decimalToFloat maps a nullable decimal onto a nullable SQLite REAL
func decimalToFloat(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f, _ := d.Decimal.Float64()
	return &f
}

// floatToDecimal maps a nullable SQLite REAL back onto a nullable decimal
func floatToDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*f), Valid: true}
}
