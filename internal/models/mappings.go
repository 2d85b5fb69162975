package models

import "time"

// CategoryMapping maps an external WIFO Sparte code to an internal
// category. Alias rows collect legacy or provider-specific codes into the
// generic bucket instead of a dedicated category.
type CategoryMapping struct {
	ID        int       `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Category  string    `db:"category" json:"category"`
	IsAlias   bool      `db:"is_alias" json:"is_alias"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProvisionTypeMapping maps a WIFO Provisionsart code to an internal
// provision type.
type ProvisionTypeMapping struct {
	ID        int       `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
