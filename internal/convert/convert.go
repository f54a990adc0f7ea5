// Package convert implements the per-attribute-type read/write transforms
// applied at the storage boundary: write-side transforms run just before
// CQL parameter binding, read-side transforms run just after a row is
// fetched from the driver.
package convert

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	gocql "github.com/apache/cassandra-gocql-driver/v2"
	"github.com/shopspring/decimal"
	"gopkg.in/inf.v0"
)

// Conversion holds the optional read/write transform functions for one
// attribute. Either func may be nil, meaning "use the value unchanged".
type Conversion struct {
	Write func(interface{}) (interface{}, error)
	Read  func(interface{}) (interface{}, error)
}

func identity(v interface{}) (interface{}, error) { return v, nil }

// scalarConversions maps each base type name to its conversion. Set-of
// forms are derived from these by liftSet.
var scalarConversions = map[string]Conversion{
	"json": {
		Write: func(v interface{}) (interface{}, error) {
			if v == nil {
				return nil, nil
			}
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("convert: json write: %w", err)
			}
			return string(b), nil
		},
		Read: func(v interface{}) (interface{}, error) {
			s, ok := asString(v)
			if !ok || s == "" {
				return nil, nil
			}
			var out interface{}
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, fmt.Errorf("convert: json read: %w", err)
			}
			return out, nil
		},
	},
	"decimal": {
		Write: func(v interface{}) (interface{}, error) {
			if v == nil {
				return nil, nil
			}
			s, ok := asString(v)
			if !ok {
				return nil, fmt.Errorf("convert: decimal write expects a string, got %T", v)
			}
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("convert: invalid decimal %q: %w", s, err)
			}
			return decimalToInf(d), nil
		},
		Read: func(v interface{}) (interface{}, error) {
			if v == nil {
				return nil, nil
			}
			id, ok := v.(*inf.Dec)
			if !ok {
				return nil, fmt.Errorf("convert: decimal read expects *inf.Dec, got %T", v)
			}
			return decimalFromInf(id).String(), nil
		},
	},
	"varint": {
		Read: func(v interface{}) (interface{}, error) {
			return fmt.Sprintf("%v", v), nil
		},
	},
	"timeuuid": {
		Read: func(v interface{}) (interface{}, error) {
			switch t := v.(type) {
			case gocql.UUID:
				return t.String(), nil
			default:
				return fmt.Sprintf("%v", v), nil
			}
		},
	},
	"uuid": {
		Read: func(v interface{}) (interface{}, error) {
			switch t := v.(type) {
			case gocql.UUID:
				return t.String(), nil
			default:
				return fmt.Sprintf("%v", v), nil
			}
		},
	},
	"long": {
		Read: func(v interface{}) (interface{}, error) {
			return fmt.Sprintf("%v", v), nil
		},
	},
	"timestamp": {
		Read: func(v interface{}) (interface{}, error) {
			switch t := v.(type) {
			case time.Time:
				return t.UTC().Format(time.RFC3339Nano), nil
			default:
				return v, nil
			}
		},
	},
	"blob": {
		Write: func(v interface{}) (interface{}, error) {
			switch t := v.(type) {
			case []byte:
				return t, nil
			case string:
				return []byte(t), nil
			case nil:
				return nil, nil
			default:
				return nil, fmt.Errorf("convert: blob write expects []byte or string, got %T", v)
			}
		},
		Read: identity,
	},
	"string": {},
	"int":    {},
	"double": {},
	"float":  {},
	"boolean": {},
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func decimalToInf(d decimal.Decimal) *inf.Dec {
	return new(inf.Dec).SetUnscaledBig(d.Coefficient(), inf.Scale(-d.Exponent()))
}

func decimalFromInf(d *inf.Dec) decimal.Decimal {
	unscaled := d.UnscaledBig()
	return decimal.NewFromBigInt(unscaled, int32(-d.Scale()))
}

// Lookup returns the conversion for a base attribute type, lifted to the
// set-of form when isSet is true. The second return is false for an
// unrecognized base type.
func Lookup(base string, isSet bool) (Conversion, bool) {
	c, ok := scalarConversions[base]
	if !ok {
		return Conversion{}, false
	}
	if !isSet {
		return c, true
	}
	return liftSet(c), true
}

// liftSet adapts a scalar conversion to operate element-wise over a set,
// treating a null/empty collection as equivalent to no value at all: the
// write side always returns nil for an empty or absent set, since the store
// treats null and empty sets identically.
func liftSet(elem Conversion) Conversion {
	return Conversion{
		Write: func(v interface{}) (interface{}, error) {
			if isEmptyCollection(v) {
				return nil, nil
			}
			items, err := toSlice(v)
			if err != nil {
				return nil, err
			}
			if elem.Write == nil {
				return items, nil
			}
			out := make([]interface{}, 0, len(items))
			for _, item := range items {
				cv, err := elem.Write(item)
				if err != nil {
					return nil, err
				}
				out = append(out, cv)
			}
			if len(out) == 0 {
				return nil, nil
			}
			return out, nil
		},
		Read: func(v interface{}) (interface{}, error) {
			if isEmptyCollection(v) {
				return nil, nil
			}
			items, err := toSlice(v)
			if err != nil {
				return nil, err
			}
			out := make([]interface{}, 0, len(items))
			for _, item := range items {
				if elem.Read == nil {
					out = append(out, item)
					continue
				}
				cv, err := elem.Read(item)
				if err != nil {
					return nil, err
				}
				out = append(out, cv)
			}
			return out, nil
		},
	}
}

func isEmptyCollection(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func toSlice(v interface{}) ([]interface{}, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("convert: expected a collection, got %T", v)
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
