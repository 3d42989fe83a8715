package signal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Signal is a strategy's recommended action for the current bar.
type Signal int8

const (
	None Signal = iota
	Buy
	Sell
	Hold
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	default:
		return "NONE"
	}
}

// IsTrade reports whether the signal asks the engine to fill an order.
func (s Signal) IsTrade() bool {
	return s == Buy || s == Sell
}

// Parse converts a case-insensitive name back into a Signal.
func Parse(name string) (Signal, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	case "HOLD":
		return Hold, nil
	case "NONE", "":
		return None, nil
	default:
		return None, fmt.Errorf("unknown signal %q", name)
	}
}

func (s Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := Parse(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
