package repository

import (
	"github.com/jmoiron/sqlx"

	"commission-web/internal/codemaps"
	"commission-web/internal/models"
)

type MappingRepository struct {
	db *sqlx.DB
}

func NewMappingRepository(db *sqlx.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// GetCodeMappings loads the active code tables. Empty tables fall back to
// the built-in defaults so a fresh install can import immediately.
func (r *MappingRepository) GetCodeMappings() (*codemaps.CodeMappings, error) {
	var categories []models.CategoryMapping
	query := "SELECT * FROM category_mappings WHERE is_active = TRUE"
	if err := r.db.Select(&categories, query); err != nil {
		return nil, err
	}

	var provisions []models.ProvisionTypeMapping
	query = "SELECT * FROM provision_type_mappings WHERE is_active = TRUE"
	if err := r.db.Select(&provisions, query); err != nil {
		return nil, err
	}

	if len(categories) == 0 && len(provisions) == 0 {
		return codemaps.DefaultCodeMappings(), nil
	}
	return codemaps.NewCodeMappings(categories, provisions), nil
}

func (r *MappingRepository) CreateCategoryMapping(mapping *models.CategoryMapping) error {
	query := `INSERT INTO category_mappings (code, category, is_alias, is_active)
	          VALUES (:code, :category, :is_alias, :is_active)`
	result, err := r.db.NamedExec(query, mapping)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	mapping.ID = int(id)
	return nil
}

func (r *MappingRepository) CreateProvisionTypeMapping(mapping *models.ProvisionTypeMapping) error {
	query := `INSERT INTO provision_type_mappings (code, name, is_active)
	          VALUES (:code, :name, :is_active)`
	result, err := r.db.NamedExec(query, mapping)
	if err != nil {
		return err
	}
	id, _ := result.LastInsertId()
	mapping.ID = int(id)
	return nil
}
