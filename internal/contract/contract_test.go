package contract

import (
	"testing"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersContract = `
columns:
  - name: id
    type: integer
    required: true
  - name: status
    type: string
    allowed_values: [open, closed]
  - name: amount
    type: number
    max_null_fraction: 0.25
  - name: shipped_on
    type: date
allow_extra_columns: false
`

func table(cols []string, rows ...[]string) *normalize.Table {
	return &normalize.Table{Columns: cols, Rows: rows}
}

func TestParseYAMLAndJSON(t *testing.T) {
	c, err := Parse([]byte(ordersContract))
	require.NoError(t, err)
	assert.Len(t, c.Columns, 4)
	assert.Equal(t, TypeInteger, c.Columns[0].Type)
	assert.True(t, c.Columns[0].Required)
	assert.Len(t, c.SHA256(), 64)

	j, err := Parse([]byte(`{"columns":[{"name":"id","type":"integer"}],"allow_extra_columns":true}`))
	require.NoError(t, err)
	assert.True(t, j.AllowExtraColumns)
	assert.NotEqual(t, c.SHA256(), j.SHA256())
}

func TestParseRejectsInvalidContracts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: "   "},
		{name: "no columns", raw: "allow_extra_columns: true"},
		{name: "unknown type", raw: "columns:\n  - name: id\n    type: uuid"},
		{name: "unknown field", raw: "columns:\n  - name: id\n    type: string\n    nullable: true"},
		{name: "bad fraction", raw: "columns:\n  - name: id\n    type: string\n    max_null_fraction: 2"},
		{name: "duplicate column", raw: "columns:\n  - name: id\n    type: string\n  - name: id\n    type: integer"},
		{name: "not yaml", raw: "columns: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
		})
	}
}

func TestValidatePass(t *testing.T) {
	c, err := Parse([]byte(ordersContract))
	require.NoError(t, err)

	r := Validate(c, table(
		[]string{"id", "status", "amount", "shipped_on"},
		[]string{"1", "open", "9.5", "2024-01-02"},
		[]string{"2", "closed", "10", ""},
	))
	assert.Equal(t, domain.ValidationPass, r.Status)
	assert.Empty(t, r.Messages())
	assert.NoError(t, r.Err())
}

func TestValidateWarn(t *testing.T) {
	c, err := Parse([]byte(ordersContract))
	require.NoError(t, err)

	r := Validate(c, table(
		[]string{"id", "status", "amount"},
		[]string{"1", "pending", ""},
		[]string{"2", "open", ""},
	))
	assert.Equal(t, domain.ValidationWarn, r.Status)
	assert.NoError(t, r.Err())
	msgs := r.Messages()
	assert.Contains(t, msgs, `optional column "shipped_on" is missing`)
	assert.Contains(t, msgs, `column "amount" null fraction 1.00 exceeds 0.25`)
	assert.Contains(t, msgs, `column "status" has values outside allowed_values: pending`)
}

func TestValidateFailNamesColumns(t *testing.T) {
	c, err := Parse([]byte(ordersContract))
	require.NoError(t, err)

	r := Validate(c, table(
		[]string{"status", "amount", "extra"},
		[]string{"open", "abc", "x"},
	))
	assert.Equal(t, domain.ValidationFail, r.Status)

	err = r.Err()
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	assert.Contains(t, err.Error(), `required column "id" is missing`)
	assert.Contains(t, err.Error(), `column "amount" expects number values (row 1 does not parse)`)
	assert.Contains(t, err.Error(), `column "extra" is not declared`)
}

func TestValidateRequiredNulls(t *testing.T) {
	c, err := Parse([]byte("columns:\n  - name: id\n    type: integer\n    required: true\n"))
	require.NoError(t, err)

	r := Validate(c, table([]string{"id"}, []string{"1"}, []string{""}))
	assert.Equal(t, domain.ValidationFail, r.Status)
	assert.Contains(t, r.Failures[0], "1 null value(s)")
}

func TestInferType(t *testing.T) {
	assert.Equal(t, TypeInteger, InferType([]string{"1", "", "42"}))
	assert.Equal(t, TypeNumber, InferType([]string{"1", "2.5"}))
	assert.Equal(t, TypeBoolean, InferType([]string{"true", "FALSE"}))
	assert.Equal(t, TypeDate, InferType([]string{"2024-01-01", "2024-02-29T10:00:00Z"}))
	assert.Equal(t, TypeString, InferType([]string{"1", "x"}))
	assert.Equal(t, TypeString, InferType([]string{"", ""}))
}

func TestFingerprintDrift(t *testing.T) {
	v1 := table([]string{"id", "name"}, []string{"1", "a"})
	same := table([]string{"ID ", "name"}, []string{"7", "b"})
	added := table([]string{"id", "name", "email"}, []string{"1", "a", "a@x"})
	retyped := table([]string{"id", "name"}, []string{"one", "a"})

	fp := Fingerprint(v1)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(same))
	assert.NotEqual(t, fp, Fingerprint(added))
	assert.NotEqual(t, fp, Fingerprint(retyped))

	assert.False(t, Drifted("", fp))
	assert.False(t, Drifted(fp, fp))
	assert.True(t, Drifted(fp, Fingerprint(added)))
}
