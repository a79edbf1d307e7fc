package functions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/validation"
)

// MaxNameLength leaves room for the "-" plus workload suffix inside a 63 char DNS label.
const MaxNameLength = validation.DNS1123LabelMaxLength - 9

// FunctionSpec is the deploy-time description of a function.
type FunctionSpec struct {
	Name         string   `json:"name"`
	Runtime      string   `json:"runtime"` // base image, e.g. python:3.9-slim
	Handler      string   `json:"handler"` // e.g. sample_function.handle
	Code         string   `json:"code"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Validate rejects a FunctionSpec before any build work starts.
func (s FunctionSpec) Validate() error {
	if _, err := ParseHandlerRef(s.Handler); err != nil {
		return err
	}
	if len(s.Name) > MaxNameLength {
		return fmt.Errorf("%w: name %q is longer than %d characters", ErrInvalidSpec, s.Name, MaxNameLength)
	}
	if errs := validation.IsDNS1123Label(s.Name); len(errs) > 0 {
		return fmt.Errorf("%w: name %q: %s", ErrInvalidSpec, s.Name, strings.Join(errs, "; "))
	}
	if strings.TrimSpace(s.Runtime) == "" {
		return fmt.Errorf("%w: runtime is required", ErrInvalidSpec)
	}
	if s.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidSpec)
	}
	return nil
}

// HandlerRef identifies the entry point as module.symbol.
type HandlerRef struct {
	Module string
	Symbol string
}

// ParseHandlerRef accepts exactly one '.' with non-empty parts on both sides.
func ParseHandlerRef(s string) (HandlerRef, error) {
	if strings.Count(s, ".") != 1 {
		return HandlerRef{}, fmt.Errorf("%w: %q must have the form module.symbol", ErrInvalidHandlerRef, s)
	}
	module, symbol, _ := strings.Cut(s, ".")
	if module == "" || symbol == "" {
		return HandlerRef{}, fmt.Errorf("%w: %q must have the form module.symbol", ErrInvalidHandlerRef, s)
	}
	return HandlerRef{Module: module, Symbol: symbol}, nil
}

func (h HandlerRef) String() string {
	return h.Module + "." + h.Symbol
}

// FunctionRecord is the registry row for the latest deploy of a function.
type FunctionRecord struct {
	Name         string    `gorm:"primaryKey" json:"name"`
	ImageRef     string    `gorm:"not null" json:"image_ref"`
	Handler      string    `gorm:"not null" json:"handler"`
	Runtime      string    `gorm:"not null" json:"runtime"`
	Dependencies []string  `gorm:"type:text;serializer:json" json:"dependencies,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (FunctionRecord) TableName() string { return "functions" }

// Workload is one submitted run of a function image.
type Workload struct {
	Name      string
	Function  string
	Image     string
	Handler   string
	Payload   string // canonical JSON text
	Retention time.Duration
}

// TerminalState is the observed end of a workload.
type TerminalState string

const (
	Succeeded TerminalState = "Succeeded"
	Failed    TerminalState = "Failed"
	TimedOut  TerminalState = "TimedOut"
)

// canonicalPayload compacts the payload; empty or null means {}.
func canonicalPayload(payload json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" || trimmed == "null" {
		return "{}", nil
	}
	if !json.Valid([]byte(trimmed)) {
		return "", fmt.Errorf("%w: payload is not valid JSON", ErrInvalidPayload)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(trimmed)); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return buf.String(), nil
}
