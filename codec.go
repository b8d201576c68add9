package trino

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Date is a calendar date native value, decoded from DATE columns and
// encoded as a DATE literal. The time-of-day portion is ignored.
type Date time.Time

// String returns the ISO-8601 date.
func (d Date) String() string {
	return time.Time(d).Format("2006-01-02")
}

// Time is a time-of-day native value, decoded from TIME and TIME WITH TIME
// ZONE columns. A value in a non-UTC fixed-offset location carries the
// offset of the time zone variant.
type Time time.Time

// String returns the wall-clock time with millisecond precision.
func (t Time) String() string {
	return time.Time(t).Format("15:04:05.000")
}

const (
	timestampLayout = "2006-01-02 15:04:05.000"
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.000"
)

// DecodeValue converts one wire column value into its native Go
// representation, keyed by the parsed type signature. Array, map and row
// signatures decode recursively. A nil wire value decodes to nil for every
// type.
//
// Non-finite doubles arrive as the JSON strings "NaN", "Infinity" and
// "-Infinity" and decode to the corresponding float64 values.
//
// Go has no naive time.Time, so a plain timestamp decodes into a
// UTC-located value. Re-encoding such a value with EncodeValue yields a
// zoned TIMESTAMP '... UTC' literal, not a naive one.
func DecodeValue(sig TypeSignature, val any) (any, error) {
	if val == nil {
		return nil, nil
	}

	switch sig.Base {
	case "varchar", "char", "json":
		if s, ok := val.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", val), nil

	case "boolean":
		if b, ok := val.(bool); ok {
			return b, nil
		}
		return nil, decodeTypeError(val, sig)

	case "tinyint", "smallint", "integer", "bigint":
		switch v := val.(type) {
		case json.Number:
			return v.Int64()
		case float64:
			return int64(v), nil
		case int64:
			return v, nil
		}
		return nil, decodeTypeError(val, sig)

	case "real", "double":
		switch v := val.(type) {
		case json.Number:
			return v.Float64()
		case float64:
			return v, nil
		case string:
			return parseNonFinite(v, sig)
		}
		return nil, decodeTypeError(val, sig)

	case "decimal":
		switch v := val.(type) {
		case string:
			return decimal.NewFromString(v)
		case json.Number:
			return decimal.NewFromString(v.String())
		case float64:
			return decimal.NewFromFloat(v), nil
		}
		return nil, decodeTypeError(val, sig)

	case "date":
		s, ok := val.(string)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("cannot parse date %q: %w", s, err)
		}
		return Date(t), nil

	case "time":
		s, ok := val.(string)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		t, err := parseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		return Time(t), nil

	case "time with time zone":
		s, ok := val.(string)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		t, err := parseTimeOfDayWithOffset(s)
		if err != nil {
			return nil, err
		}
		return Time(t), nil

	case "timestamp":
		s, ok := val.(string)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		return parseTimestamp(s)

	case "timestamp with time zone":
		s, ok := val.(string)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		return parseTimestampWithZone(s)

	case "varbinary":
		s, ok := val.(string)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("cannot decode varbinary %q: %w", s, err)
		}
		return b, nil

	case "array":
		items, ok := val.([]any)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		elem := sig.Arguments[0]
		out := make([]any, len(items))
		for i, item := range items {
			decoded, err := DecodeValue(elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil

	case "map":
		entries, ok := val.(map[string]any)
		if !ok {
			return nil, decodeTypeError(val, sig)
		}
		out := make(map[string]any, len(entries))
		for k, v := range entries {
			decoded, err := DecodeValue(sig.Arguments[1], v)
			if err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil

	case "row":
		switch v := val.(type) {
		case []any:
			if len(v) != len(sig.Fields) {
				return nil, fmt.Errorf("row value has %d fields, signature %q declares %d", len(v), sig.Raw, len(sig.Fields))
			}
			out := make([]any, len(v))
			for i, item := range v {
				decoded, err := DecodeValue(sig.Fields[i].Type, item)
				if err != nil {
					return nil, err
				}
				out[i] = decoded
			}
			return out, nil
		case map[string]any:
			// Newer servers may send rows as objects keyed by field name.
			out := make([]any, len(sig.Fields))
			for i, field := range sig.Fields {
				decoded, err := DecodeValue(field.Type, v[field.Name])
				if err != nil {
					return nil, err
				}
				out[i] = decoded
			}
			return out, nil
		}
		return nil, decodeTypeError(val, sig)

	default:
		// Unknown types pass through as their JSON form, matching the
		// fallback the server-side JSON representation implies.
		return val, nil
	}
}

func decodeTypeError(val any, sig TypeSignature) error {
	return fmt.Errorf("cannot decode %T as %s", val, sig.Raw)
}

// parseNonFinite handles the wire strings used for IEEE non-finite
// doubles.
func parseNonFinite(s string, sig TypeSignature) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return 0, fmt.Errorf("cannot decode string %q as %s", s, sig.Raw)
}

// parseTimestamp parses a naive timestamp at up to nanosecond precision.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05.000000000",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

// parseTimestampWithZone parses a "timestamp with time zone" wire value.
// The zone suffix is either a fixed offset ("+05:30") or an IANA zone name
// ("UTC", "America/Los_Angeles"); both round-trip through EncodeValue.
func parseTimestampWithZone(s string) (time.Time, error) {
	idx := strings.LastIndexByte(s, ' ')
	if idx < 0 {
		return time.Time{}, fmt.Errorf("cannot parse timestamp with time zone %q", s)
	}
	stamp, zone := s[:idx], s[idx+1:]

	if zone != "" && (zone[0] == '+' || zone[0] == '-') {
		for _, f := range []string{"2006-01-02 15:04:05.000 -07:00", "2006-01-02 15:04:05 -07:00"} {
			if t, err := time.Parse(f, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse timestamp with offset %q", s)
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown time zone %q in %q", zone, s)
	}
	t, err := parseTimestamp(stamp)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
}

func parseTimeOfDay(s string) (time.Time, error) {
	for _, f := range []string{"15:04:05.000", "15:04:05.000000000", "15:04:05"} {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

func parseTimeOfDayWithOffset(s string) (time.Time, error) {
	for _, f := range []string{"15:04:05.000 -07:00", "15:04:05 -07:00"} {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time with time zone %q", s)
}

// EncodeValue converts a native Go parameter value into its SQL literal
// form for the EXECUTE ... USING wrapper. Unsupported types fail with an
// UnsupportedParameterTypeError before any network call.
//
// A time.Time always encodes as a zoned timestamp literal carrying its
// location. Values decoded from a naive timestamp column are UTC-located,
// so their round trip comes back as TIMESTAMP '... UTC'; wrap date-only
// and time-of-day values in Date or Time to get DATE and TIME literals.
func EncodeValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case string:
		return quoteLiteral(val), nil
	case int:
		return strconv.FormatInt(int64(val), 10), nil
	case int8:
		return strconv.FormatInt(int64(val), 10), nil
	case int16:
		return strconv.FormatInt(int64(val), 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float32:
		return encodeFloat(float64(val)), nil
	case float64:
		return encodeFloat(val), nil
	case decimal.Decimal:
		return "DECIMAL " + quoteLiteral(val.String()), nil
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'", nil
	case Date:
		return "DATE " + quoteLiteral(time.Time(val).Format(dateLayout)), nil
	case Time:
		return encodeTime(time.Time(val)), nil
	case time.Time:
		return encodeTimestamp(val), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return encodeArray(rv)
	case reflect.Map:
		return encodeMap(rv)
	}
	return "", &UnsupportedParameterTypeError{Value: v}
}

// quoteLiteral wraps s in single quotes, doubling embedded quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func encodeFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan()"
	case math.IsInf(f, 1):
		return "infinity()"
	case math.IsInf(f, -1):
		return "-infinity()"
	}
	// DOUBLE literal syntax keeps the value from being typed as decimal.
	return "DOUBLE " + quoteLiteral(strconv.FormatFloat(f, 'g', -1, 64))
}

func encodeTime(t time.Time) string {
	if t.Location() == time.UTC {
		return "TIME " + quoteLiteral(t.Format(timeLayout))
	}
	return "TIME " + quoteLiteral(t.Format(timeLayout+" -07:00"))
}

func encodeTimestamp(t time.Time) string {
	loc := t.Location()
	name := loc.String()
	if name == "Local" || name == "" {
		return "TIMESTAMP " + quoteLiteral(t.Format(timestampLayout+" -07:00"))
	}
	if strings.ContainsAny(name, "+-") && !strings.Contains(name, "/") {
		// Fixed-offset location created by time.FixedZone or offset parsing.
		return "TIMESTAMP " + quoteLiteral(t.Format(timestampLayout+" -07:00"))
	}
	return "TIMESTAMP " + quoteLiteral(t.Format(timestampLayout)+" "+name)
}

func encodeArray(rv reflect.Value) (string, error) {
	parts := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		lit, err := EncodeValue(rv.Index(i).Interface())
		if err != nil {
			return "", err
		}
		parts[i] = lit
	}
	return "ARRAY[" + strings.Join(parts, ", ") + "]", nil
}

// encodeMap emits the MAP(ARRAY[...], ARRAY[...]) constructor. Keys are
// sorted by their literal form so encoding is deterministic.
func encodeMap(rv reflect.Value) (string, error) {
	type entry struct {
		key, value string
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := EncodeValue(iter.Key().Interface())
		if err != nil {
			return "", err
		}
		v, err := EncodeValue(iter.Value().Interface())
		if err != nil {
			return "", err
		}
		entries = append(entries, entry{key: k, value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	keys := make([]string, len(entries))
	values := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
		values[i] = e.value
	}
	return "MAP(ARRAY[" + strings.Join(keys, ", ") + "], ARRAY[" + strings.Join(values, ", ") + "])", nil
}

// TypeCategory is the DB-API style type grouping derived from a column's
// signature, used for cursor description and driver metadata.
type TypeCategory string

const (
	CategoryString    TypeCategory = "STRING"
	CategoryBoolean   TypeCategory = "BOOLEAN"
	CategoryNumber    TypeCategory = "NUMBER"
	CategoryDecimal   TypeCategory = "DECIMAL"
	CategoryDate      TypeCategory = "DATE"
	CategoryTime      TypeCategory = "TIME"
	CategoryTimestamp TypeCategory = "TIMESTAMP"
	CategoryBinary    TypeCategory = "BINARY"
	CategoryArray     TypeCategory = "ARRAY"
	CategoryMap       TypeCategory = "MAP"
	CategoryRow       TypeCategory = "ROW"
	CategoryOther     TypeCategory = "OTHER"
)

// CategoryForType maps a parsed signature to its type category. Time zone
// variants keep their base name visible through TypeSignature.Base, so
// "timestamp with time zone" still reports a timestamp category while
// Description exposes the full raw signature.
func CategoryForType(sig TypeSignature) TypeCategory {
	switch sig.Base {
	case "varchar", "char", "json":
		return CategoryString
	case "boolean":
		return CategoryBoolean
	case "tinyint", "smallint", "integer", "bigint", "real", "double":
		return CategoryNumber
	case "decimal":
		return CategoryDecimal
	case "date":
		return CategoryDate
	case "time", "time with time zone":
		return CategoryTime
	case "timestamp", "timestamp with time zone":
		return CategoryTimestamp
	case "varbinary":
		return CategoryBinary
	case "array":
		return CategoryArray
	case "map":
		return CategoryMap
	case "row":
		return CategoryRow
	}
	return CategoryOther
}
