// Package schemas provides JSON Schema validation for persisted documents.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	schemafiles "github.com/jonathan/b2b-content-agent/schemas"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// Messages flattens the field errors into "field: message" strings.
func (ve *ValidationError) Messages() []string {
	out := make([]string, len(ve.Errors))
	for i, err := range ve.Errors {
		out[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return out
}

type compiled struct {
	once   sync.Once
	name   string
	source string
	schema *gojsonschema.Schema
	err    error
}

func (c *compiled) get() (*gojsonschema.Schema, error) {
	c.once.Do(func() {
		c.schema, c.err = gojsonschema.NewSchema(gojsonschema.NewStringLoader(c.source))
		if c.err != nil {
			c.err = &SchemaLoadError{Path: c.name, Message: "invalid embedded schema", Cause: c.err}
		}
	})
	return c.schema, c.err
}

var (
	sessionSchema = &compiled{name: "session.schema.json", source: schemafiles.Session}
	configSchema  = &compiled{name: "config.schema.json", source: schemafiles.Config}
)

// ValidateSession validates a raw session document against the session schema.
func ValidateSession(data []byte) error {
	return validateWith(sessionSchema, data)
}

// ValidateConfig validates a raw configuration file against the config schema.
func ValidateConfig(data []byte) error {
	return validateWith(configSchema, data)
}

func validateWith(c *compiled, data []byte) error {
	schema, err := c.get()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &SchemaLoadError{Path: c.name, Message: "document could not be loaded", Cause: err}
	}
	return toValidationError(result)
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schemaLoader := gojsonschema.NewStringLoader(schemaContent)
	documentLoader := gojsonschema.NewStringLoader(jsonContent)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	return toValidationError(result)
}

func toValidationError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
