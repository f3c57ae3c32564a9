package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuckview/tuckview/pkg/errors"
)

func TestCoerce(t *testing.T) {
	intCol := ColumnDef{Name: "n", Type: TypeInt}
	floatCol := ColumnDef{Name: "f", Type: TypeFloat}
	boolCol := ColumnDef{Name: "b", Type: TypeBool}
	strCol := ColumnDef{Name: "s", Type: TypeString}
	nullable := ColumnDef{Name: "o", Type: TypeInt, Nullable: true}

	tests := []struct {
		name    string
		col     ColumnDef
		in      interface{}
		want    interface{}
		wantErr bool
	}{
		{"int64 passes", intCol, int64(7), int64(7), false},
		{"integral float becomes int", intCol, float64(7), int64(7), false},
		{"fractional float rejected for int", intCol, 7.5, nil, true},
		{"string rejected for int", intCol, "7", nil, true},
		{"int widens to float", floatCol, int64(2), float64(2), false},
		{"float passes", floatCol, 2.5, 2.5, false},
		{"bool passes", boolCol, true, true, false},
		{"string rejected for bool", boolCol, "true", nil, true},
		{"string passes", strCol, "hi", "hi", false},
		{"int rejected for string", strCol, int64(1), nil, true},
		{"null on nullable", nullable, nil, nil, false},
		{"null on non-nullable", intCol, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.col)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareTotalOrder(t *testing.T) {
	// Null < Bool < numeric < String, deterministic within each kind.
	ordered := []interface{}{nil, false, true, int64(-3), 1.5, int64(2), "a", "b"}

	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Negative(t, got, "expected %v < %v", ordered[i], ordered[j])
			case i > j:
				assert.Positive(t, got, "expected %v > %v", ordered[i], ordered[j])
			default:
				assert.Zero(t, got)
			}
		}
	}
}

func TestCompareMixedNumerics(t *testing.T) {
	assert.Zero(t, Compare(int64(2), float64(2)))
	assert.Negative(t, Compare(int64(2), 2.5))
}

func TestCompareHugeIntsExactly(t *testing.T) {
	// Adjacent int64 values above 2^53 collapse to the same float64;
	// integer pairs must still order exactly.
	big := int64(1) << 62
	assert.Negative(t, Compare(big, big+1))
	assert.Positive(t, Compare(big+1, big))
	assert.Zero(t, Compare(big, big))
	assert.Negative(t, Compare(int64(-1)<<62-1, int64(-1)<<62))
}

func TestInferScalarType(t *testing.T) {
	assert.Equal(t, TypeInt, InferScalarType("42"))
	assert.Equal(t, TypeFloat, InferScalarType("3.14"))
	assert.Equal(t, TypeBool, InferScalarType("true"))
	assert.Equal(t, TypeString, InferScalarType("hello"))
	assert.Equal(t, TypeString, InferScalarType(""))
}

func TestWidenType(t *testing.T) {
	assert.Equal(t, TypeInt, WidenType(TypeInt, TypeInt))
	assert.Equal(t, TypeFloat, WidenType(TypeInt, TypeFloat))
	assert.Equal(t, TypeFloat, WidenType(TypeFloat, TypeInt))
	assert.Equal(t, TypeString, WidenType(TypeBool, TypeInt))
}

func TestParseFormatScalarRoundTrip(t *testing.T) {
	assert.Equal(t, int64(5), ParseScalar("5", TypeInt))
	assert.Equal(t, 5.5, ParseScalar("5.5", TypeFloat))
	assert.Equal(t, true, ParseScalar("true", TypeBool))
	assert.Nil(t, ParseScalar("", TypeInt))
	// Unparseable text survives as a string instead of failing the read.
	assert.Equal(t, "n/a", ParseScalar("n/a", TypeInt))

	assert.Equal(t, "5", FormatScalar(int64(5)))
	assert.Equal(t, "5.5", FormatScalar(5.5))
	assert.Equal(t, "true", FormatScalar(true))
	assert.Equal(t, "", FormatScalar(nil))
}

func TestSignatureToken(t *testing.T) {
	sig := Signature{Size: 1234, ModTime: 1700000000123456789, Hash: 0xdeadbeef}

	parsed, err := ParseToken(sig.Token())
	require.NoError(t, err)
	assert.True(t, sig.Equal(parsed))

	_, err = ParseToken("garbage")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}
