package http

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"gastos/internal/core"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const maxBodyBytes = 64 << 10

// Schema names, one per request body shape.
const (
	schemaMovement    = "movement"
	schemaTransfer    = "transfer"
	schemaLoan        = "loan"
	schemaRepayment   = "repayment"
	schemaPayment     = "payment"
	schemaPaymentEdit = "payment_edit"
	schemaCompletion  = "completion"
	schemaNavigate    = "navigate"
)

// SchemaError reports a body that failed JSON-schema validation.
type SchemaError struct {
	Details []string
}

func (e *SchemaError) Error() string {
	return "request does not match schema: " + strings.Join(e.Details, "; ")
}

func (e *SchemaError) Unwrap() error { return core.ErrValidation }

// loadSchemas compiles every embedded schema.
func loadSchemas() (map[string]*gojsonschema.Schema, error) {
	names := []string{
		schemaMovement, schemaTransfer, schemaLoan, schemaRepayment,
		schemaPayment, schemaPaymentEdit, schemaCompletion, schemaNavigate,
	}
	out := make(map[string]*gojsonschema.Schema, len(names))
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = schema
	}
	return out, nil
}

// decodeBody reads a JSON body, checks it against the named schema and
// decodes it into dst. Every failure wraps core.ErrValidation.
func (s *Server) decodeBody(r *http.Request, schemaName string, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", core.ErrValidation, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body larger than %d bytes", core.ErrValidation, maxBodyBytes)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", core.ErrValidation)
	}

	schema, ok := s.schemas[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaName)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: malformed JSON: %v", core.ErrValidation, err)
	}
	if !res.Valid() {
		details := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			details = append(details, e.String())
		}
		return &SchemaError{Details: details}
	}

	if err := json.Unmarshal(body, dst); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrValidation, err)
	}
	return nil
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", core.ErrValidation, name, raw)
	}
	return id, nil
}

// parseDueDate reads an optional YYYY-MM-DD date.
func parseDueDate(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(*s), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid due date %q", core.ErrValidation, *s)
	}
	return &t, nil
}

// parseMonth reads a YYYY-MM value from a path segment or query parameter.
func parseMonth(raw string) (core.AccountingMonth, error) {
	return core.ParseAccountingMonth(strings.TrimSpace(raw))
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
