package exec

import (
	"fmt"
	"strings"
)

// Kind classifies how an open or close ended.
type Kind int

const (
	KindNone Kind = iota
	KindTransport
	KindSigning
	KindDrawdownHalt
	KindPositionAlreadyOpen
	KindLeverageSetFailed
	KindPriceFetchFailed
	KindZeroQuantity
	KindOrderRejected
	KindBracketFailed
	KindNoOpenPosition
	KindCloseOrderRejected
	KindQueryRejected
)

var kindNames = map[Kind]string{
	KindNone:                "none",
	KindTransport:           "transport",
	KindSigning:             "signing",
	KindDrawdownHalt:        "drawdown_halt",
	KindPositionAlreadyOpen: "position_already_open",
	KindLeverageSetFailed:   "leverage_set_failed",
	KindPriceFetchFailed:    "price_fetch_failed",
	KindZeroQuantity:        "zero_quantity",
	KindOrderRejected:       "order_rejected",
	KindBracketFailed:       "bracket_failed",
	KindNoOpenPosition:      "no_open_position",
	KindCloseOrderRejected:  "close_order_rejected",
	KindQueryRejected:       "query_rejected",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Category is the coarse error class of a Kind.
type Category string

const (
	CategoryNone                Category = ""
	CategoryTransport           Category = "Transport"
	CategorySigningPrecondition Category = "SigningPrecondition"
	CategoryExchangeRejection   Category = "ExchangeRejection"
	CategoryInvariantViolation  Category = "InvariantViolation"
	CategoryDrawdownHalt        Category = "DrawdownHalt"
	CategoryPartialSuccess      Category = "PartialSuccess"
)

func (k Kind) Category() Category {
	switch k {
	case KindTransport, KindPriceFetchFailed:
		return CategoryTransport
	case KindSigning:
		return CategorySigningPrecondition
	case KindLeverageSetFailed, KindOrderRejected, KindCloseOrderRejected, KindQueryRejected:
		return CategoryExchangeRejection
	case KindPositionAlreadyOpen, KindNoOpenPosition, KindZeroQuantity:
		return CategoryInvariantViolation
	case KindDrawdownHalt:
		return CategoryDrawdownHalt
	case KindBracketFailed:
		return CategoryPartialSuccess
	default:
		return CategoryNone
	}
}

// Outcome is the result of Open or Close. Message is the operator-facing
// text; the remaining fields are filled as far as the flow got.
type Outcome struct {
	Success bool
	Kind    Kind
	Message string
	Err     error

	Side        string
	Qty         string
	EntryPrice  float64
	LiqPrice    float64
	Leverage    int
	TakeProfit  string
	StopLoss    string
	EntryFee    float64
	OrderLinkID string

	ClosePrice float64
	PnLPercent float64
	Gross      float64
	ExitFee    float64
	Net        float64
	Drawdown   *float64
}

func (o Outcome) String() string { return o.Message }

func failure(kind Kind, err error, format string, args ...any) Outcome {
	return Outcome{Kind: kind, Err: err, Message: fmt.Sprintf(format, args...)}
}

func directionLabel(side string) string {
	if side == "Buy" {
		return "LONG"
	}
	return "SHORT"
}

func (o Outcome) openMessage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s position opened\n", directionLabel(o.Side))
	fmt.Fprintf(&b, "Qty: %s\n", o.Qty)
	fmt.Fprintf(&b, "Entry price: %v\n", o.EntryPrice)
	if o.LiqPrice > 0 {
		fmt.Fprintf(&b, "Liq price: %v\n", o.LiqPrice)
	} else {
		b.WriteString("Liq price: N/A\n")
	}
	fmt.Fprintf(&b, "Leverage: %dx\n", o.Leverage)
	fmt.Fprintf(&b, "TP: %s\n", o.TakeProfit)
	fmt.Fprintf(&b, "SL: %s\n", o.StopLoss)
	fmt.Fprintf(&b, "Fee (entry): %.4f USDT", o.EntryFee)
	return b.String()
}

func (o Outcome) closeMessage() string {
	trend := "down"
	if o.PnLPercent > 0 {
		trend = "up"
	}
	var b strings.Builder
	b.WriteString("Position closed\n")
	fmt.Fprintf(&b, "Qty: %s\n", o.Qty)
	fmt.Fprintf(&b, "Entry price: %v\n", o.EntryPrice)
	fmt.Fprintf(&b, "Close price: %v\n", o.ClosePrice)
	fmt.Fprintf(&b, "PNL: %.2f%% (%s)\n", o.PnLPercent, trend)
	fmt.Fprintf(&b, "Gross received: %.2f USDT\n", o.Gross)
	fmt.Fprintf(&b, "Fee (exit): %.2f USDT\n", o.ExitFee)
	fmt.Fprintf(&b, "Net received: %.2f USDT", o.Net)
	return b.String()
}
