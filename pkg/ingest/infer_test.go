package ingest

import (
	"testing"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(s ...string) [][]byte {
	out := make([][]byte, len(s))
	for i, l := range s {
		out[i] = []byte(l)
	}
	return out
}

func TestInferSchema(t *testing.T) {
	tests := []struct {
		name  string
		input [][]byte
		want  map[string]arrow.DataType
	}{
		{
			name:  "scalars",
			input: lines(`{"a": 1, "b": "x", "c": true, "d": 0.5}`),
			want: map[string]arrow.DataType{
				"a": arrow.PrimitiveTypes.Int64,
				"b": arrow.BinaryTypes.String,
				"c": arrow.FixedWidthTypes.Boolean,
				"d": arrow.PrimitiveTypes.Float64,
			},
		},
		{
			name:  "int widens to float",
			input: lines(`{"a": 1}`, `{"a": 2.5}`),
			want:  map[string]arrow.DataType{"a": arrow.PrimitiveTypes.Float64},
		},
		{
			name:  "null only becomes string",
			input: lines(`{"a": null}`, `{}`),
			want:  map[string]arrow.DataType{"a": arrow.BinaryTypes.String},
		},
		{
			name:  "null then typed",
			input: lines(`{"a": null}`, `{"a": 3}`),
			want:  map[string]arrow.DataType{"a": arrow.PrimitiveTypes.Int64},
		},
		{
			name:  "lists",
			input: lines(`{"a": []}`, `{"a": [1, null, 2]}`),
			want:  map[string]arrow.DataType{"a": arrow.ListOf(arrow.PrimitiveTypes.Int64)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, err := InferSchema(tt.input)
			require.NoError(t, err)
			require.Equal(t, len(tt.want), schema.NumFields())
			for _, f := range schema.Fields() {
				want, ok := tt.want[f.Name]
				require.True(t, ok, f.Name)
				assert.True(t, arrow.TypeEqual(want, f.Type), "%s: got %s", f.Name, f.Type)
				assert.True(t, f.Nullable)
			}
		})
	}
}

func TestInferSchemaSortsFields(t *testing.T) {
	schema, err := InferSchema(lines(`{"zeta": 1, "alpha": 2, "mid": 3}`))
	require.NoError(t, err)
	assert.Equal(t, "alpha", schema.Field(0).Name)
	assert.Equal(t, "mid", schema.Field(1).Name)
	assert.Equal(t, "zeta", schema.Field(2).Name)
}

func TestInferSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   [][]byte
		errType pqerrors.ErrorType
	}{
		{"not json", lines(`nope`), pqerrors.ErrorTypeUsage},
		{"not an object", lines(`[1, 2]`), pqerrors.ErrorTypeUsage},
		{"no fields", lines(`{}`), pqerrors.ErrorTypeUsage},
		{"nested object", lines(`{"a": {"b": 1}}`), pqerrors.ErrorTypeUnsupported},
		{"nested list", lines(`{"a": [[1]]}`), pqerrors.ErrorTypeUnsupported},
		{"type change", lines(`{"a": 1}`, `{"a": "x"}`), pqerrors.ErrorTypeSchemaMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InferSchema(tt.input)
			require.Error(t, err)
			assert.True(t, pqerrors.IsType(err, tt.errType), err.Error())
		})
	}
}

func TestParseLines(t *testing.T) {
	rec, err := parseLines(lines(`{"id": 7, "tags": ["a"]}`, `{"id": 8}`))
	require.NoError(t, err)
	require.NotNil(t, rec)
	defer rec.Release()

	assert.Equal(t, int64(2), rec.NumRows())
	assert.True(t, rec.Column(1).IsNull(1))
}
