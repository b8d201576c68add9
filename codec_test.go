package trino

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSig(t *testing.T, raw string) TypeSignature {
	t.Helper()
	sig, err := ParseTypeSignature(raw)
	require.NoError(t, err)
	return sig
}

// --- Segment 1: Wire Value Decoding ---

func TestDecodeValue_Scalars(t *testing.T) {
	t.Run("Null decodes to nil for every type", func(t *testing.T) {
		for _, raw := range []string{"varchar", "bigint", "array(integer)", "row(a bigint)"} {
			v, err := DecodeValue(mustSig(t, raw), nil)
			require.NoError(t, err)
			assert.Nil(t, v, raw)
		}
	})

	t.Run("Varchar", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "varchar"), "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	})

	t.Run("Boolean", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "boolean"), true)
		require.NoError(t, err)
		assert.Equal(t, true, v)

		_, err = DecodeValue(mustSig(t, "boolean"), "yes")
		assert.Error(t, err)
	})

	t.Run("Bigint keeps the full 64-bit range", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "bigint"), json.Number("9223372036854775807"))
		require.NoError(t, err)
		assert.Equal(t, int64(math.MaxInt64), v)

		v, err = DecodeValue(mustSig(t, "bigint"), json.Number("-9223372036854775808"))
		require.NoError(t, err)
		assert.Equal(t, int64(math.MinInt64), v)
	})

	t.Run("Double", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "double"), json.Number("1.25"))
		require.NoError(t, err)
		assert.Equal(t, 1.25, v)
	})

	t.Run("Non-finite doubles arrive as strings", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "double"), "NaN")
		require.NoError(t, err)
		assert.True(t, math.IsNaN(v.(float64)))

		v, err = DecodeValue(mustSig(t, "double"), "Infinity")
		require.NoError(t, err)
		assert.True(t, math.IsInf(v.(float64), 1))

		v, err = DecodeValue(mustSig(t, "double"), "-Infinity")
		require.NoError(t, err)
		assert.True(t, math.IsInf(v.(float64), -1))

		_, err = DecodeValue(mustSig(t, "double"), "bogus")
		assert.Error(t, err)
	})

	t.Run("Decimal is exact", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "decimal(20,2)"), "123456789012345678.91")
		require.NoError(t, err)
		want := decimal.RequireFromString("123456789012345678.91")
		assert.True(t, want.Equal(v.(decimal.Decimal)))
	})

	t.Run("Varbinary is base64 on the wire", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "varbinary"), "3q2+7w==")
		require.NoError(t, err)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, v)
	})
}

func TestDecodeValue_Temporal(t *testing.T) {
	t.Run("Date", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "date"), "2020-06-15")
		require.NoError(t, err)
		assert.Equal(t, "2020-06-15", v.(Date).String())
	})

	t.Run("Time", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "time"), "13:45:30.123")
		require.NoError(t, err)
		assert.Equal(t, "13:45:30.123", v.(Time).String())
	})

	t.Run("Time with offset", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "time with time zone"), "13:45:30.123 +05:30")
		require.NoError(t, err)
		_, offset := time.Time(v.(Time)).Zone()
		assert.Equal(t, 5*3600+30*60, offset)
	})

	t.Run("Timestamp without zone", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "timestamp"), "2020-01-01 00:00:00.000")
		require.NoError(t, err)
		ts := v.(time.Time)
		assert.Equal(t, 2020, ts.Year())
		assert.Equal(t, time.UTC, ts.Location())
	})

	t.Run("Timestamp with named zone", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "timestamp(3) with time zone"), "2020-01-01 00:00:00.000 UTC")
		require.NoError(t, err)
		ts := v.(time.Time)
		assert.Equal(t, "UTC", ts.Location().String())
		assert.Equal(t, 2020, ts.Year())
	})

	t.Run("Timestamp with offset zone", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "timestamp(3) with time zone"), "2020-01-01 08:30:00.000 -07:00")
		require.NoError(t, err)
		ts := v.(time.Time)
		_, offset := ts.Zone()
		assert.Equal(t, -7*3600, offset)
		assert.Equal(t, 8, ts.Hour())
	})

	t.Run("Garbage timestamp", func(t *testing.T) {
		_, err := DecodeValue(mustSig(t, "timestamp"), "not-a-timestamp")
		assert.Error(t, err)
	})
}

func TestDecodeValue_Composites(t *testing.T) {
	t.Run("Array of integers", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "array(integer)"), []any{json.Number("1"), json.Number("2"), nil})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1), int64(2), nil}, v)
	})

	t.Run("Map of varchar to bigint", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "map(varchar, bigint)"), map[string]any{"a": json.Number("10")})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": int64(10)}, v)
	})

	t.Run("Row as positional array", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "row(id bigint, name varchar)"), []any{json.Number("7"), "x"})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(7), "x"}, v)
	})

	t.Run("Row field count mismatch", func(t *testing.T) {
		_, err := DecodeValue(mustSig(t, "row(id bigint, name varchar)"), []any{json.Number("7")})
		assert.Error(t, err)
	})

	t.Run("Nested array of arrays", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "array(array(varchar))"), []any{[]any{"a"}, []any{"b", "c"}})
		require.NoError(t, err)
		assert.Equal(t, []any{[]any{"a"}, []any{"b", "c"}}, v)

		_, err = DecodeValue(mustSig(t, "array(array(varchar))"), []any{"flat"})
		assert.Error(t, err)
	})

	t.Run("Unknown type passes through", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "ipaddress"), "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1", v)
	})
}

// --- Segment 2: Parameter Literal Encoding ---

func TestEncodeValue_Scalars(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"Nil", nil, "NULL"},
		{"True", true, "TRUE"},
		{"False", false, "FALSE"},
		{"String", "hello", "'hello'"},
		{"String with quote", "O'Brien", "'O''Brien'"},
		{"Int64 max", int64(math.MaxInt64), "9223372036854775807"},
		{"Int64 min", int64(math.MinInt64), "-9223372036854775808"},
		{"Plain int", 42, "42"},
		{"Float", 1.5, "DOUBLE '1.5'"},
		{"NaN", math.NaN(), "nan()"},
		{"Positive infinity", math.Inf(1), "infinity()"},
		{"Negative infinity", math.Inf(-1), "-infinity()"},
		{"Bytes", []byte{0xde, 0xad}, "X'dead'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeValue(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("Decimal", func(t *testing.T) {
		got, err := EncodeValue(decimal.RequireFromString("12.34"))
		require.NoError(t, err)
		assert.Equal(t, "DECIMAL '12.34'", got)
	})

	t.Run("Unsupported type", func(t *testing.T) {
		_, err := EncodeValue(struct{ X int }{1})
		var unsupported *UnsupportedParameterTypeError
		assert.ErrorAs(t, err, &unsupported)
	})
}

func TestEncodeValue_Temporal(t *testing.T) {
	t.Run("Date", func(t *testing.T) {
		got, err := EncodeValue(Date(time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, err)
		assert.Equal(t, "DATE '2020-01-02'", got)
	})

	t.Run("Time in UTC", func(t *testing.T) {
		got, err := EncodeValue(Time(time.Date(0, 1, 1, 13, 45, 30, 123000000, time.UTC)))
		require.NoError(t, err)
		assert.Equal(t, "TIME '13:45:30.123'", got)
	})

	t.Run("Timestamp in UTC", func(t *testing.T) {
		got, err := EncodeValue(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "TIMESTAMP '2020-01-01 00:00:00.000 UTC'", got)
	})

	t.Run("Timestamp in fixed-offset zone", func(t *testing.T) {
		loc := time.FixedZone("+05:30", 5*3600+30*60)
		got, err := EncodeValue(time.Date(2020, 1, 1, 12, 0, 0, 0, loc))
		require.NoError(t, err)
		assert.Equal(t, "TIMESTAMP '2020-01-01 12:00:00.000 +05:30'", got)
	})

	t.Run("Timestamp round trip through decode", func(t *testing.T) {
		orig := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		lit, err := EncodeValue(orig)
		require.NoError(t, err)

		// Strip the "TIMESTAMP '...'" wrapper and decode the body the way
		// the server would echo it back.
		body := lit[len("TIMESTAMP '") : len(lit)-1]
		v, err := DecodeValue(mustSig(t, "timestamp(3) with time zone"), body)
		require.NoError(t, err)
		assert.True(t, orig.Equal(v.(time.Time)))
	})

	t.Run("Naive timestamp re-encodes as a zoned UTC literal", func(t *testing.T) {
		v, err := DecodeValue(mustSig(t, "timestamp(3)"), "2020-01-01 00:00:00.000")
		require.NoError(t, err)

		lit, err := EncodeValue(v)
		require.NoError(t, err)
		assert.Equal(t, "TIMESTAMP '2020-01-01 00:00:00.000 UTC'", lit)
	})
}

func TestEncodeValue_Composites(t *testing.T) {
	t.Run("Array", func(t *testing.T) {
		got, err := EncodeValue([]int64{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, "ARRAY[1, 2, 3]", got)
	})

	t.Run("Nested array", func(t *testing.T) {
		got, err := EncodeValue([][]string{{"a"}, {"b", "c"}})
		require.NoError(t, err)
		assert.Equal(t, "ARRAY[ARRAY['a'], ARRAY['b', 'c']]", got)
	})

	t.Run("Map keys are sorted", func(t *testing.T) {
		got, err := EncodeValue(map[string]int64{"b": 2, "a": 1, "c": 3})
		require.NoError(t, err)
		assert.Equal(t, "MAP(ARRAY['a', 'b', 'c'], ARRAY[1, 2, 3])", got)
	})

	t.Run("Array with unsupported element", func(t *testing.T) {
		_, err := EncodeValue([]any{struct{}{}})
		assert.Error(t, err)
	})
}
