package codemaps

import (
	"commission-web/internal/matching"
	"commission-web/internal/models"
)

// GenericCategory is the bucket alias Sparte codes resolve to.
const GenericCategory = "Sonstiges"

// FallbackProvisionType is applied when a Provisionsart code is unknown;
// the record is warned about, not rejected.
const FallbackProvisionType = "Abschlussprovision"

// CodeMappings resolves external WIFO codes into internal categories and
// provision types. Built from the mapping tables, falling back to the
// built-in defaults when the tables are empty.
type CodeMappings struct {
	categories     map[string]string
	aliases        map[string]bool
	provisionTypes map[string]string
}

// NewCodeMappings builds the lookup from loaded mapping rows.
func NewCodeMappings(categories []models.CategoryMapping, provisions []models.ProvisionTypeMapping) *CodeMappings {
	m := &CodeMappings{
		categories:     make(map[string]string),
		aliases:        make(map[string]bool),
		provisionTypes: make(map[string]string),
	}
	for _, c := range categories {
		key := matching.Normalize(c.Code)
		if key == "" {
			continue
		}
		if c.IsAlias {
			m.aliases[key] = true
		} else {
			m.categories[key] = c.Category
		}
	}
	for _, p := range provisions {
		if key := matching.Normalize(p.Code); key != "" {
			m.provisionTypes[key] = p.Name
		}
	}
	return m
}

// DefaultCodeMappings returns the built-in WIFO code tables.
func DefaultCodeMappings() *CodeMappings {
	return NewCodeMappings(defaultCategoryMappings, defaultProvisionTypes)
}

// ResolveCategory looks up a Sparte code. Alias codes resolve to the
// generic bucket; unknown codes report false.
func (m *CodeMappings) ResolveCategory(code string) (string, bool) {
	key := matching.Normalize(code)
	if key == "" {
		return "", false
	}
	if category, ok := m.categories[key]; ok {
		return category, true
	}
	if m.aliases[key] {
		return GenericCategory, true
	}
	return "", false
}

// ResolveProvisionType looks up a Provisionsart code.
func (m *CodeMappings) ResolveProvisionType(code string) (string, bool) {
	key := matching.Normalize(code)
	if key == "" {
		return "", false
	}
	name, ok := m.provisionTypes[key]
	return name, ok
}

var defaultCategoryMappings = []models.CategoryMapping{
	{Code: "LV", Category: "Lebensversicherung"},
	{Code: "KV", Category: "Krankenversicherung"},
	{Code: "SHU", Category: "Sach/Haftpflicht/Unfall"},
	{Code: "KFZ", Category: "Kfz-Versicherung"},
	{Code: "BAV", Category: "Betriebliche Altersvorsorge"},
	{Code: "FIN", Category: "Finanzierung"},
	{Code: "INV", Category: "Investment"},
	{Code: "BU", Category: "Berufsunfähigkeit"},
	// Legacy clearinghouse codes without an own category.
	{Code: "SO", IsAlias: true},
	{Code: "DIV", IsAlias: true},
	{Code: "REST", IsAlias: true},
}

var defaultProvisionTypes = []models.ProvisionTypeMapping{
	{Code: "AP", Name: "Abschlussprovision"},
	{Code: "BP", Name: "Bestandsprovision"},
	{Code: "DP", Name: "Dynamikprovision"},
	{Code: "EP", Name: "Erhöhungsprovision"},
	{Code: "VP", Name: "Verlängerungsprovision"},
}
