package trino

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeSignature_Scalars(t *testing.T) {
	t.Run("Bare base type", func(t *testing.T) {
		sig, err := ParseTypeSignature("bigint")
		require.NoError(t, err)
		assert.Equal(t, "bigint", sig.Base)
		assert.Equal(t, "bigint", sig.Raw)
		assert.False(t, sig.HasPrecision)
	})

	t.Run("Case is normalized", func(t *testing.T) {
		sig, err := ParseTypeSignature("VARCHAR")
		require.NoError(t, err)
		assert.Equal(t, "varchar", sig.Base)
		assert.Equal(t, "VARCHAR", sig.Raw)
	})

	t.Run("Varchar length", func(t *testing.T) {
		sig, err := ParseTypeSignature("varchar(255)")
		require.NoError(t, err)
		assert.Equal(t, "varchar", sig.Base)
		assert.True(t, sig.HasPrecision)
		assert.Equal(t, 255, sig.Precision)
		assert.False(t, sig.HasScale)
	})

	t.Run("Decimal precision and scale", func(t *testing.T) {
		sig, err := ParseTypeSignature("decimal(38, 10)")
		require.NoError(t, err)
		assert.Equal(t, "decimal", sig.Base)
		assert.Equal(t, 38, sig.Precision)
		assert.Equal(t, 10, sig.Scale)
		assert.True(t, sig.HasScale)
	})
}

func TestParseTypeSignature_TimeZoneSuffix(t *testing.T) {
	t.Run("Timestamp with precision and zone", func(t *testing.T) {
		sig, err := ParseTypeSignature("timestamp(3) with time zone")
		require.NoError(t, err)
		assert.Equal(t, "timestamp with time zone", sig.Base)
		assert.Equal(t, 3, sig.Precision)
	})

	t.Run("Time with zone, no precision", func(t *testing.T) {
		sig, err := ParseTypeSignature("time with time zone")
		require.NoError(t, err)
		assert.Equal(t, "time with time zone", sig.Base)
		assert.False(t, sig.HasPrecision)
	})
}

func TestParseTypeSignature_Composites(t *testing.T) {
	t.Run("Array of scalars", func(t *testing.T) {
		sig, err := ParseTypeSignature("array(integer)")
		require.NoError(t, err)
		assert.Equal(t, "array", sig.Base)
		require.Len(t, sig.Arguments, 1)
		assert.Equal(t, "integer", sig.Arguments[0].Base)
	})

	t.Run("Nested array of maps", func(t *testing.T) {
		sig, err := ParseTypeSignature("array(map(varchar, bigint))")
		require.NoError(t, err)
		require.Len(t, sig.Arguments, 1)
		inner := sig.Arguments[0]
		assert.Equal(t, "map", inner.Base)
		require.Len(t, inner.Arguments, 2)
		assert.Equal(t, "varchar", inner.Arguments[0].Base)
		assert.Equal(t, "bigint", inner.Arguments[1].Base)
	})

	t.Run("Row with named fields", func(t *testing.T) {
		sig, err := ParseTypeSignature("row(id bigint, name varchar(10))")
		require.NoError(t, err)
		assert.Equal(t, "row", sig.Base)
		require.Len(t, sig.Fields, 2)
		assert.Equal(t, "id", sig.Fields[0].Name)
		assert.Equal(t, "bigint", sig.Fields[0].Type.Base)
		assert.Equal(t, "name", sig.Fields[1].Name)
		assert.Equal(t, 10, sig.Fields[1].Type.Precision)
	})

	t.Run("Row with quoted field names", func(t *testing.T) {
		sig, err := ParseTypeSignature(`row("full name" varchar, "a,b" integer)`)
		require.NoError(t, err)
		require.Len(t, sig.Fields, 2)
		assert.Equal(t, "full name", sig.Fields[0].Name)
		assert.Equal(t, "a,b", sig.Fields[1].Name)
		assert.Equal(t, "integer", sig.Fields[1].Type.Base)
	})

	t.Run("Row with anonymous fields", func(t *testing.T) {
		sig, err := ParseTypeSignature("row(bigint, varchar)")
		require.NoError(t, err)
		require.Len(t, sig.Fields, 2)
		assert.Empty(t, sig.Fields[0].Name)
		assert.Equal(t, "bigint", sig.Fields[0].Type.Base)
	})

	t.Run("Row nested in row", func(t *testing.T) {
		sig, err := ParseTypeSignature("row(inner row(x double, y double), label varchar)")
		require.NoError(t, err)
		require.Len(t, sig.Fields, 2)
		assert.Equal(t, "inner", sig.Fields[0].Name)
		require.Len(t, sig.Fields[0].Type.Fields, 2)
		assert.Equal(t, "x", sig.Fields[0].Type.Fields[0].Name)
	})
}

func TestParseTypeSignature_Errors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"Empty input", ""},
		{"Unbalanced parentheses", "array(integer"},
		{"Array with two arguments", "array(integer, varchar)"},
		{"Map with one argument", "map(varchar)"},
		{"Non-numeric precision", "varchar(abc)"},
		{"Too many numeric arguments", "decimal(1,2,3)"},
		{"Trailing garbage", "bigint extra"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTypeSignature(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestCategoryForType(t *testing.T) {
	cases := map[string]TypeCategory{
		"varchar(10)":                  CategoryString,
		"boolean":                      CategoryBoolean,
		"bigint":                       CategoryNumber,
		"double":                       CategoryNumber,
		"decimal(10,2)":                CategoryDecimal,
		"date":                         CategoryDate,
		"time with time zone":          CategoryTime,
		"timestamp(6) with time zone":  CategoryTimestamp,
		"varbinary":                    CategoryBinary,
		"array(integer)":               CategoryArray,
		"map(varchar, varchar)":        CategoryMap,
		"row(a bigint)":                CategoryRow,
		"ipaddress":                    CategoryOther,
	}
	for raw, want := range cases {
		sig, err := ParseTypeSignature(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, CategoryForType(sig), raw)
	}
}
