package service

import (
	"commission-web/internal/codemaps"
	"commission-web/internal/models"
)

// The code table lookup lives in internal/codemaps so the repository
// layer can build it without importing this package. The aliases below
// keep the original service-level names.

// GenericCategory is the bucket alias Sparte codes resolve to.
const GenericCategory = codemaps.GenericCategory

// FallbackProvisionType is applied when a Provisionsart code is unknown;
// the record is warned about, not rejected.
const FallbackProvisionType = codemaps.FallbackProvisionType

// CodeMappings resolves external WIFO codes into internal categories and
// provision types. Built from the mapping tables, falling back to the
// built-in defaults when the tables are empty.
type CodeMappings = codemaps.CodeMappings

// NewCodeMappings builds the lookup from loaded mapping rows.
func NewCodeMappings(categories []models.CategoryMapping, provisions []models.ProvisionTypeMapping) *CodeMappings {
	return codemaps.NewCodeMappings(categories, provisions)
}

// DefaultCodeMappings returns the built-in WIFO code tables.
func DefaultCodeMappings() *CodeMappings {
	return codemaps.DefaultCodeMappings()
}
