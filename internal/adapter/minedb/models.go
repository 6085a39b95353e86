package minedb

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/couchcryptid/mine-metrics-etl/internal/domain"
)

// productionLogRow maps the production_logs fact table. Value columns are
// pointers so a NULL surfaces as a schema mismatch instead of a silent zero.
type productionLogRow struct {
	ID            int64            `gorm:"column:id;primaryKey"`
	Date          time.Time        `gorm:"column:date"`
	MineID        int64            `gorm:"column:mine_id"`
	Shift         *string          `gorm:"column:shift"`
	TonsExtracted *decimal.Decimal `gorm:"column:tons_extracted"`
	QualityGrade  *decimal.Decimal `gorm:"column:quality_grade"`
}

func (productionLogRow) TableName() string { return "production_logs" }

// toRecord validates the row shape and converts it to the domain type.
// Value-domain violations (negative tons, out-of-range grades) are NOT
// checked here; the classifier owns those so the record stays accounted for.
func (r productionLogRow) toRecord(mineNames map[int64]string) (domain.ProductionRecord, error) {
	if r.TonsExtracted == nil || r.QualityGrade == nil || r.Shift == nil {
		return domain.ProductionRecord{}, fmt.Errorf(
			"production_logs row %d has NULL required columns: %w", r.ID, domain.ErrSchemaMismatch)
	}
	return domain.ProductionRecord{
		Date:          domain.Day(r.Date),
		MineID:        r.MineID,
		MineName:      mineNames[r.MineID],
		Shift:         *r.Shift,
		TonsExtracted: *r.TonsExtracted,
		QualityGrade:  *r.QualityGrade,
	}, nil
}

// mineRow maps the mines reference dimension.
type mineRow struct {
	ID       int64  `gorm:"column:id;primaryKey"`
	Name     string `gorm:"column:name"`
	Location string `gorm:"column:location"`
}

func (mineRow) TableName() string { return "mines" }
