// Package contract validates tabular sources against a declared column contract and
// fingerprints their schema for drift detection.
package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ColumnType is the declared type of a contract column
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeNumber  ColumnType = "number"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
)

// Column is one declared column.
type Column struct {
	Name            string     `yaml:"name" json:"name"`
	Type            ColumnType `yaml:"type" json:"type"`
	Required        bool       `yaml:"required" json:"required"`
	MaxNullFraction *float64   `yaml:"max_null_fraction,omitempty" json:"max_null_fraction,omitempty"`
	AllowedValues   []string   `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
}

// Contract is the parsed YAML or JSON contract document.
type Contract struct {
	Columns           []Column `yaml:"columns" json:"columns"`
	AllowExtraColumns bool     `yaml:"allow_extra_columns" json:"allow_extra_columns"`
	MaxNullFraction   *float64 `yaml:"max_null_fraction,omitempty" json:"max_null_fraction,omitempty"`

	sha256 string
}

// SHA256 is the hex digest of the raw contract document.
func (c *Contract) SHA256() string {
	return c.sha256
}

// Parse decodes a YAML or JSON contract and validates its structure.
// Structural problems are VALIDATION_ERRORs listing every schema violation.
func Parse(raw []byte) (*Contract, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, domain.NewValidationError("contract is empty")
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "contract is not valid YAML or JSON", err)
	}

	problems, err := validateDocument(doc)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "contract schema check failed", err)
	}
	if len(problems) > 0 {
		return nil, domain.NewValidationError("invalid contract: %s", strings.Join(problems, "; "))
	}

	var c Contract
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "contract could not be decoded", err)
	}

	seen := make(map[string]struct{}, len(c.Columns))
	for _, col := range c.Columns {
		if _, dup := seen[col.Name]; dup {
			return nil, domain.NewValidationError("invalid contract: column %q declared twice", col.Name)
		}
		seen[col.Name] = struct{}{}
	}

	sum := sha256.Sum256(raw)
	c.sha256 = hex.EncodeToString(sum[:])
	return &c, nil
}

func validateDocument(doc any) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(contractSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("validate contract: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}

const contractSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["columns"],
  "additionalProperties": false,
  "properties": {
    "allow_extra_columns": {"type": "boolean"},
    "max_null_fraction": {"type": "number", "minimum": 0, "maximum": 1},
    "columns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"enum": ["string", "integer", "number", "boolean", "date"]},
          "required": {"type": "boolean"},
          "max_null_fraction": {"type": "number", "minimum": 0, "maximum": 1},
          "allowed_values": {"type": "array", "items": {"type": ["string", "number", "boolean"]}}
        }
      }
    }
  }
}`
