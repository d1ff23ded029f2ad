// Package dataset generates the synthetic records a restore run is checked against and
// converts them to and from the JSON payload published on the topic.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Record is one unit of data under test. Key is unique within a generated batch and is the
// join column for comparison; Timestamp is informational.
type Record struct {
	Key       string
	Group     string
	Label     string
	Amount    decimal.Decimal
	Timestamp string
}

// wireRecord is the payload layout on the bus. Amount travels as a JSON number with two
// decimals so the backup tool sees the same bytes a non-Go producer would write.
type wireRecord struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Product    string      `json:"product"`
	Amount     json.Number `json:"amount"`
	Timestamp  string      `json:"timestamp"`
}

var ErrMalformedPayload = errors.New("malformed record payload")

func Encode(r Record) ([]byte, error) {
	return json.Marshal(wireRecord{
		OrderID:    r.Key,
		CustomerID: r.Group,
		Product:    r.Label,
		Amount:     json.Number(r.Amount.StringFixed(2)),
		Timestamp:  r.Timestamp,
	})
}

// Decode parses a bus payload. Errors wrap ErrMalformedPayload.
func Decode(payload []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(payload, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(w.OrderID) == "" {
		return Record{}, fmt.Errorf("%w: missing order_id", ErrMalformedPayload)
	}
	if w.Amount == "" {
		return Record{}, fmt.Errorf("%w: missing amount for %s", ErrMalformedPayload, w.OrderID)
	}
	amount, err := decimal.NewFromString(w.Amount.String())
	if err != nil {
		return Record{}, fmt.Errorf("%w: amount for %s: %v", ErrMalformedPayload, w.OrderID, err)
	}
	return Record{
		Key:       w.OrderID,
		Group:     w.CustomerID,
		Label:     w.Product,
		Amount:    amount,
		Timestamp: w.Timestamp,
	}, nil
}
