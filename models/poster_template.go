package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TemplateField describes one editable field of a poster template. Fields with
// Type "image" become image layers when rendering; everything else is text.
type TemplateField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// PosterTemplate represents a row in the poster_templates table. The gateway
// only reads templates: the price and field schema are the source of truth for
// what a poster costs and which inputs are images.
type PosterTemplate struct {
	ID         int64           `json:"id"`
	UUID       string          `json:"uuid"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Fields     []TemplateField `json:"fields,omitempty"` // JSONB
	PreviewURL *string         `json:"preview_url,omitempty"`
	CreatedAt  *time.Time      `json:"created_at,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

// ImageField reports whether the named field is declared as an image field in
// the template's schema.
func (t *PosterTemplate) ImageField(name string) bool {
	for _, f := range t.Fields {
		if f.Name == name && f.Type == "image" {
			return true
		}
	}
	return false
}
