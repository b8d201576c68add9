package trino

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeSignature is the parsed form of the textual type description the
// server attaches to each result column, e.g. "array(integer)",
// "map(varchar,varchar)", "timestamp(3) with time zone", "decimal(10,2)".
type TypeSignature struct {
	// Raw is the original signature string as sent by the server.
	Raw string

	// Base is the lowercased base type name with any parenthesized
	// arguments removed but time zone suffixes preserved,
	// e.g. "timestamp with time zone" for "timestamp(3) with time zone".
	Base string

	// Precision is the first numeric argument (decimal precision,
	// varchar length, or timestamp/time sub-second precision).
	// Valid only when HasPrecision is true.
	Precision    int
	HasPrecision bool

	// Scale is the second numeric argument (decimal scale).
	// Valid only when HasScale is true.
	Scale    int
	HasScale bool

	// Arguments are the element signatures for array(T) and map(K,V).
	Arguments []TypeSignature

	// Fields are the named member signatures for row(...) types. The
	// field count is fixed by the signature and drives tuple decoding.
	Fields []RowField
}

// RowField is one member of a row(...) signature. Name may be empty for
// anonymous fields.
type RowField struct {
	Name string
	Type TypeSignature
}

// ParseTypeSignature parses a server type signature string. It accepts the
// textual grammar the statement protocol emits: a base name, an optional
// parenthesized argument list (numeric, type, or "name type" for rows),
// and an optional "with time zone" suffix.
func ParseTypeSignature(raw string) (TypeSignature, error) {
	sig, rest, err := parseSignature(strings.TrimSpace(raw))
	if err != nil {
		return TypeSignature{}, err
	}
	if rest != "" {
		return TypeSignature{}, fmt.Errorf("unexpected trailing input %q in type signature %q", rest, raw)
	}
	sig.Raw = strings.TrimSpace(raw)
	return sig, nil
}

// parseSignature consumes one signature from the front of s and returns
// the unconsumed remainder.
func parseSignature(s string) (TypeSignature, string, error) {
	name, rest := scanTypeName(s)
	if name == "" {
		return TypeSignature{}, s, fmt.Errorf("empty type name in signature %q", s)
	}

	sig := TypeSignature{Base: strings.ToLower(name)}

	if strings.HasPrefix(rest, "(") {
		args, remainder, err := scanArgumentList(rest)
		if err != nil {
			return TypeSignature{}, s, err
		}
		rest = remainder

		switch sig.Base {
		case "array":
			if len(args) != 1 {
				return TypeSignature{}, s, fmt.Errorf("array signature needs exactly one element type, got %d", len(args))
			}
			elem, err := ParseTypeSignature(args[0])
			if err != nil {
				return TypeSignature{}, s, err
			}
			sig.Arguments = []TypeSignature{elem}
		case "map":
			if len(args) != 2 {
				return TypeSignature{}, s, fmt.Errorf("map signature needs exactly two types, got %d", len(args))
			}
			for _, arg := range args {
				sub, err := ParseTypeSignature(arg)
				if err != nil {
					return TypeSignature{}, s, err
				}
				sig.Arguments = append(sig.Arguments, sub)
			}
		case "row":
			for _, arg := range args {
				field, err := parseRowField(arg)
				if err != nil {
					return TypeSignature{}, s, err
				}
				sig.Fields = append(sig.Fields, field)
			}
		default:
			// Numeric arguments: decimal(p,s), varchar(n), char(n),
			// timestamp(p), time(p).
			if err := sig.applyNumericArguments(args); err != nil {
				return TypeSignature{}, s, err
			}
		}
	}

	// "timestamp(3) with time zone" / "time with time zone"
	trimmed := strings.TrimLeft(rest, " ")
	if strings.HasPrefix(trimmed, "with time zone") {
		sig.Base += " with time zone"
		rest = trimmed[len("with time zone"):]
	}

	return sig, rest, nil
}

// scanTypeName reads the leading identifier of a signature. It stops at
// '(' or ',' or ')' and trims surrounding whitespace; multi-word names
// ("with time zone" suffixes) are handled by the caller.
func scanTypeName(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', ')', ',', ' ':
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// scanArgumentList splits a parenthesized argument list at top-level
// commas. s must begin with '('. Returns the raw argument strings and the
// input following the matching ')'.
func scanArgumentList(s string) ([]string, string, error) {
	depth := 0
	start := 1
	inQuote := false
	var args []string
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inQuote {
			if ch == '"' {
				inQuote = false
			}
			continue
		}
		switch ch {
		case '"':
			inQuote = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				if arg := strings.TrimSpace(s[start:i]); arg != "" {
					args = append(args, arg)
				}
				return args, s[i+1:], nil
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return nil, s, fmt.Errorf("unbalanced parentheses in type signature %q", s)
}

// parseRowField parses one "name type" or bare "type" row member. Field
// names may be double-quoted to allow spaces and keywords.
func parseRowField(s string) (RowField, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		end := strings.Index(s[1:], `"`)
		if end < 0 {
			return RowField{}, fmt.Errorf("unterminated quoted field name in %q", s)
		}
		name := s[1 : end+1]
		sig, err := ParseTypeSignature(s[end+2:])
		if err != nil {
			return RowField{}, err
		}
		return RowField{Name: name, Type: sig}, nil
	}

	// A bare member is ambiguous between "name type" and "type". Try the
	// whole string as a type first; on failure, split off the first word
	// as the field name.
	if sig, err := ParseTypeSignature(s); err == nil {
		return RowField{Type: sig}, nil
	}
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return RowField{}, fmt.Errorf("cannot parse row field %q", s)
	}
	sig, err := ParseTypeSignature(s[idx+1:])
	if err != nil {
		return RowField{}, err
	}
	return RowField{Name: s[:idx], Type: sig}, nil
}

// applyNumericArguments records decimal/varchar/timestamp style numeric
// arguments on the signature.
func (sig *TypeSignature) applyNumericArguments(args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("type %s accepts at most two numeric arguments, got %d", sig.Base, len(args))
	}
	for i, arg := range args {
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return fmt.Errorf("invalid numeric argument %q for type %s", arg, sig.Base)
		}
		if i == 0 {
			sig.Precision, sig.HasPrecision = n, true
		} else {
			sig.Scale, sig.HasScale = n, true
		}
	}
	return nil
}
