package position

// Position is a single long holding. Quantity 0 means flat.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

func (p Position) HasPosition() bool {
	return p.Quantity != 0
}

// MarketValue is the position marked at CurrentPrice.
func (p Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}
