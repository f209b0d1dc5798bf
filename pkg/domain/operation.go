package domain

import (
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// ExecMode declares where a callable operation runs.
type ExecMode string

const (
	// ExecInline runs synchronously within the interactive phase, bounded by
	// the manifest limits.
	ExecInline ExecMode = "inline"
	// ExecJob defers execution to the external job subsystem as an
	// interactive-phase side job.
	ExecJob ExecMode = "job"
)

// OperationLimits bound an inline execution.
type OperationLimits struct {
	Timeout        time.Duration `json:"timeout"`
	MaxResultBytes int           `json:"max_result_bytes"`
}

// OperationManifest declares a callable operation discovered through the
// registry. Input and Result schemas are validated before and after every
// invocation.
type OperationManifest struct {
	Name   string           `json:"name"`
	Mode   ExecMode         `json:"mode"`
	Input  *openapi3.Schema `json:"input,omitempty"`
	Result *openapi3.Schema `json:"result,omitempty"`
	Limits OperationLimits  `json:"limits"`
}
