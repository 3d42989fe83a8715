package strategy

import (
	"github.com/amirphl/simple-backtest/internal/strategy/position"
	"github.com/amirphl/simple-backtest/internal/utils"
)

// Account keeps capital, the open position and the trade log. Opening while
// positioned and closing while flat are logged no-ops.
type Account struct {
	capital        float64
	initialCapital float64
	position       position.Position
	trades         []Trade
}

// OnInit resets the account to a flat state holding initialCapital.
func (a *Account) OnInit(initialCapital float64) {
	a.capital = initialCapital
	a.initialCapital = initialCapital
	a.position = position.Position{}
	a.trades = nil
}

func (a *Account) OpenPosition(symbol string, quantity, price float64) {
	if a.position.HasPosition() {
		utils.GetLogger().Printf("Strategy | [%s] Already holding %.8f, cannot open %.8f at %.8f",
			a.position.Symbol, a.position.Quantity, quantity, price)
		return
	}
	a.position = position.Position{
		Symbol:       symbol,
		Quantity:     quantity,
		AvgPrice:     price,
		CurrentPrice: price,
	}
	a.capital -= quantity * price
}

// ClosePosition sells the whole position at price and returns the gross PnL.
func (a *Account) ClosePosition(price float64) float64 {
	if !a.position.HasPosition() {
		utils.GetLogger().Printf("Strategy | No open position, cannot close at %.8f", price)
		return 0
	}
	pnl := (price - a.position.AvgPrice) * a.position.Quantity
	a.capital += price * a.position.Quantity
	a.position = position.Position{Symbol: a.position.Symbol}
	return pnl
}

// UpdatePositionPrice marks the position at price.
func (a *Account) UpdatePositionPrice(price float64) {
	a.position.CurrentPrice = price
	if a.position.HasPosition() {
		a.position.UnrealizedPnL = (price - a.position.AvgPrice) * a.position.Quantity
	}
}

func (a *Account) Capital() float64 { return a.capital }

func (a *Account) InitialCapital() float64 { return a.initialCapital }

// TotalEquity is capital plus the marked value of the open position.
func (a *Account) TotalEquity() float64 {
	equity := a.capital
	if a.position.HasPosition() {
		equity += a.position.MarketValue()
	}
	return equity
}

// TotalReturn is the return on initial capital in percent.
func (a *Account) TotalReturn() float64 {
	if a.initialCapital == 0 {
		return 0
	}
	return (a.TotalEquity() - a.initialCapital) / a.initialCapital * 100
}

func (a *Account) Position() position.Position { return a.position }

func (a *Account) AddTrade(t Trade) {
	a.trades = append(a.trades, t)
}

// Trades returns a copy of the trade log.
func (a *Account) Trades() []Trade {
	out := make([]Trade, len(a.trades))
	copy(out, a.trades)
	return out
}
