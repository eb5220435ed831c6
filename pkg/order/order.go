// Package order turns a finished conversation into a priced Order and
// hands it to a fulfillment sink.
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
)

// Sentinel errors for the order package.
var (
	// ErrExtraction indicates the transcript did not yield a valid order.
	ErrExtraction = errors.New("order: extraction failed")

	// ErrNoSummary indicates no agent utterance itemized the order.
	ErrNoSummary = errors.New("order: no order summary found")

	// ErrTotalMismatch indicates the spoken total disagrees with the priced
	// lines, so some line was misheard or lost.
	ErrTotalMismatch = errors.New("order: stated total does not match items")

	// ErrCouponIneligible indicates a mentioned coupon does not fit the items.
	ErrCouponIneligible = errors.New("order: coupon not eligible")

	// ErrDispatch indicates the order could not be handed off.
	ErrDispatch = errors.New("order: dispatch failed")
)

// Customer holds the contact details collected during the call.
type Customer struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Payment string `json:"payment,omitempty"`
}

// LineItem is one product on the order.
type LineItem struct {
	Product   string        `json:"product"`
	Size      catalog.Size  `json:"size,omitempty"`
	Toppings  []string      `json:"toppings,omitempty"`
	Options   []string      `json:"options,omitempty"`
	Quantity  int           `json:"quantity"`
	UnitPrice catalog.Price `json:"unit_price_cents"`
}

// Total returns UnitPrice times Quantity.
func (li LineItem) Total() catalog.Price {
	return li.UnitPrice * catalog.Price(li.Quantity)
}

// String renders the line the way the agent reads it back.
func (li LineItem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d ", li.Quantity)
	if li.Size != catalog.SizeRegular {
		b.WriteString(string(li.Size))
		b.WriteByte(' ')
	}
	b.WriteString(li.Product)
	if len(li.Toppings) > 0 {
		b.WriteString(" with ")
		b.WriteString(strings.Join(li.Toppings, ", "))
	}
	if len(li.Options) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(li.Options, ", "))
	}
	return b.String()
}

// Order is the structured result of a completed conversation. It is not
// modified after extraction.
type Order struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Customer  Customer      `json:"customer"`
	Items     []LineItem    `json:"items"`
	Coupon    string        `json:"coupon,omitempty"`
	Subtotal  catalog.Price `json:"subtotal_cents"`
	Discount  catalog.Price `json:"discount_cents"`
	Total     catalog.Price `json:"total_cents"`
	CreatedAt time.Time     `json:"created_at"`
}

// Ack confirms a dispatched order.
type Ack struct {
	OrderID   string `json:"order_id"`
	Sink      string `json:"sink"`
	Reference string `json:"reference,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// ExtractionError describes why an order could not be extracted.
type ExtractionError struct {
	Reason string
	Line   string
	Cause  error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	msg := "order: extraction failed: " + e.Reason
	if e.Line != "" {
		msg += fmt.Sprintf(" in %q", e.Line)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Is makes every ExtractionError match ErrExtraction.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

func extractionErr(reason, line string, cause error) error {
	return &ExtractionError{Reason: reason, Line: line, Cause: cause}
}

// IsExtractionError reports whether err came from extraction.
func IsExtractionError(err error) bool {
	return errors.Is(err, ErrExtraction)
}
