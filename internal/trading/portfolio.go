package trading

import (
	"nse-backtester/internal/models"
)

// Position is a signed holding in one symbol: positive long, negative short.
type Position struct {
	Quantity int
	AvgPrice float64
}

// Ledger tracks per-symbol positions and realized PnL.
type Ledger struct {
	initialCapital float64
	realized       float64
	daily          float64
	day            string
	byDay          map[string]float64
	positions      map[string]*Position
}

// NewLedger creates a ledger with the given starting capital.
func NewLedger(initialCapital float64) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		byDay:          make(map[string]float64),
		positions:      make(map[string]*Position),
	}
}

func (l *Ledger) position(symbol string) *Position {
	p, ok := l.positions[symbol]
	if !ok {
		p = &Position{}
		l.positions[symbol] = p
	}
	return p
}

// Position returns a copy of the symbol's position (zero when never traded).
func (l *Ledger) Position(symbol string) Position {
	if p, ok := l.positions[symbol]; ok {
		return *p
	}
	return Position{}
}

// UpdateFill applies a fill. A fill against a non-zero position of the other
// sign closes the whole position at the fill price and realizes its PnL;
// otherwise the fill opens or adds, and the average price becomes the fill price.
func (l *Ledger) UpdateFill(fill models.Fill) {
	p := l.position(fill.Symbol)
	delta := fill.Quantity * fill.Side.Sign()

	if p.Quantity != 0 && (p.Quantity > 0) != (delta > 0) {
		pnl := (fill.Price - p.AvgPrice) * float64(p.Quantity)
		l.realized += pnl
		l.daily += pnl
		l.byDay[l.day] += pnl
		p.Quantity = 0
		p.AvgPrice = 0
		return
	}

	p.Quantity += delta
	p.AvgPrice = fill.Price
}

// SetDay sets the calendar date that subsequent realized PnL is attributed to.
func (l *Ledger) SetDay(date string) {
	l.day = date
}

// ResetDaily zeroes the current-day realized PnL used by the daily loss breaker.
func (l *Ledger) ResetDaily() {
	l.daily = 0
}

// Equity returns initial capital plus realized PnL. Open positions are not marked.
func (l *Ledger) Equity() float64 {
	return l.initialCapital + l.realized
}

// RealizedPnL returns cumulative realized PnL.
func (l *Ledger) RealizedPnL() float64 {
	return l.realized
}

// DailyRealized returns realized PnL since the last ResetDaily.
func (l *Ledger) DailyRealized() float64 {
	return l.daily
}

// DailyBreakdown returns realized PnL per calendar date.
func (l *Ledger) DailyBreakdown() map[string]float64 {
	out := make(map[string]float64, len(l.byDay))
	for d, v := range l.byDay {
		out[d] = v
	}
	return out
}
