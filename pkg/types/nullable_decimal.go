package types

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// NullableDecimal tracks whether an amount field was present in JSON and
// whether it was an explicit null. Amounts may be sent as strings or numbers.
type NullableDecimal struct {
	Set   bool
	Value *decimal.Decimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	n.Set = true
	if bytes.Equal(trimmed, []byte("null")) {
		n.Value = nil
		return nil
	}

	var parsed decimal.Decimal
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	n.Value = &parsed
	return nil
}

// IsNull reports an explicit JSON null.
func (n NullableDecimal) IsNull() bool {
	return n.Set && n.Value == nil
}
