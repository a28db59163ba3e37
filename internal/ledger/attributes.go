package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Attributes is the open, role-specific payload of a record.
// Values must be JSON-serialisable; nested maps stay nested.
//
// Documented keys by role:
//
//	Producer      product_name
//	Intermediary  notes
//	Consumer      customer_name, phone, email, address
type Attributes map[string]any

const (
	AttrProductName  = "product_name"
	AttrNotes        = "notes"
	AttrCustomerName = "customer_name"
	AttrPhone        = "phone"
	AttrEmail        = "email"
	AttrAddress      = "address"
)

// String returns the value under key rendered as a string, or def when the
// key is missing, nil, or an empty string.
func (a Attributes) String(key, def string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return def
		}
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Clone returns a deep copy. Nested maps and slices are copied too, so
// neither side can reach the other's values.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Attributes:
		return t.Clone()
	case map[string]any:
		return map[string]any(Attributes(t).Clone())
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// normalize returns a copy of a in the shape a load produces: nested
// objects as map[string]any, arrays as []any and numbers as json.Number.
// The copy shares nothing with a.
func (a Attributes) normalize() (Attributes, error) {
	if len(a) == 0 {
		return Attributes{}, nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out Attributes
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// invalidUTF8 returns the path of the first key or string value that is not
// valid UTF-8, or "" when every string is valid.
func invalidUTF8(v any, path string) string {
	switch t := v.(type) {
	case string:
		if !utf8.ValidString(t) {
			return path
		}
	case Attributes:
		return invalidUTF8(map[string]any(t), path)
	case map[string]any:
		for k, e := range t {
			if !utf8.ValidString(k) {
				return path
			}
			if bad := invalidUTF8(e, path+"."+k); bad != "" {
				return bad
			}
		}
	case map[string]string:
		for k, e := range t {
			if !utf8.ValidString(k) || !utf8.ValidString(e) {
				return path + "." + k
			}
		}
	case []string:
		for i, e := range t {
			if !utf8.ValidString(e) {
				return fmt.Sprintf("%s[%d]", path, i)
			}
		}
	case []any:
		for i, e := range t {
			if bad := invalidUTF8(e, fmt.Sprintf("%s[%d]", path, i)); bad != "" {
				return bad
			}
		}
	}
	return ""
}

// CreationAttributes is the payload recorded when a producer creates a product.
type CreationAttributes struct {
	ProductName string
}

// Map converts the payload to record attributes.
func (c CreationAttributes) Map() Attributes {
	return Attributes{AttrProductName: c.ProductName}
}

// TransitAttributes is the payload recorded by an intermediary hand-off.
type TransitAttributes struct {
	Notes string
}

// Map converts the payload to record attributes.
func (t TransitAttributes) Map() Attributes {
	return Attributes{AttrNotes: t.Notes}
}

// ConsumptionAttributes is the payload recorded when the consumer confirms.
type ConsumptionAttributes struct {
	CustomerName string
	Phone        string
	Email        string
	Address      string
}

// Map converts the payload to record attributes.
func (c ConsumptionAttributes) Map() Attributes {
	return Attributes{
		AttrCustomerName: c.CustomerName,
		AttrPhone:        c.Phone,
		AttrEmail:        c.Email,
		AttrAddress:      c.Address,
	}
}
