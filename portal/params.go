package portal

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Params is the flat parameter map sent with every REST request. The output
// format key f=json is always present; optional parameters with empty values
// are omitted entirely, matching the vendor API's expectations.
type Params map[string]string

// NewParams returns a parameter map primed with f=json.
func NewParams() Params {
	return Params{"f": "json"}
}

// Set stores value under key unless value is empty.
func (p Params) Set(key, value string) Params {
	if value != "" {
		p[key] = value
	}
	return p
}

// SetBool stores the boolean unconditionally. The API distinguishes an
// explicit false from an absent key for flags like returnGeometry.
func (p Params) SetBool(key string, value bool) Params {
	p[key] = strconv.FormatBool(value)
	return p
}

// SetInt stores the integer unconditionally.
func (p Params) SetInt(key string, value int) Params {
	p[key] = strconv.Itoa(value)
	return p
}

// SetFloat stores the float unconditionally.
func (p Params) SetFloat(key string, value float64) Params {
	p[key] = strconv.FormatFloat(value, 'f', -1, 64)
	return p
}

// SetJSON marshals value and stores it, or returns an error for values that
// cannot be represented as JSON. Nil values are omitted.
func (p Params) SetJSON(key string, value any) error {
	if value == nil {
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode parameter %s: %w", key, err)
	}
	p[key] = string(b)
	return nil
}

// Values converts the map to url.Values for encoding.
func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for key, value := range p {
		v.Set(key, value)
	}
	return v
}

// Clone returns a copy so callers can reuse a base parameter set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
