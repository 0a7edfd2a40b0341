package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"procodus.dev/hardwater/pkg/water"
)

// WaterReading is the row layout of the postgres backend.
type WaterReading struct {
	Timestamp  time.Time      `gorm:"index:idx_area_timestamp;not null"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	AreaKey    string         `gorm:"primaryKey;size:128;index:idx_area_timestamp"`
	StorageKey string         `gorm:"primaryKey;size:17"`
	Area       string         `gorm:"not null"`
	Extra      datatypes.JSON `gorm:"column:extra"`
	TDS        float64        `gorm:"column:tds;not null"`
	Ca         float64        `gorm:"column:ca;not null"`
	Mg         float64        `gorm:"column:mg;not null"`
	PH         float64        `gorm:"column:ph;not null"`
	Turbidity  float64        `gorm:"column:turbidity;not null"`
	Chlorine   float64        `gorm:"column:chlorine;not null"`
}

// TableName specifies the table name for WaterReading model.
func (WaterReading) TableName() string {
	return "water_readings"
}

func toRow(area water.AreaID, key string, r water.Reading) (*WaterReading, error) {
	row := &WaterReading{
		AreaKey:    area.String(),
		StorageKey: key,
		Timestamp:  r.Timestamp.Time,
		Area:       r.Area,
		TDS:        r.TDS,
		Ca:         r.Ca,
		Mg:         r.Mg,
		PH:         r.PH,
		Turbidity:  r.Turbidity,
		Chlorine:   r.Chlorine,
	}
	if len(r.Extra) > 0 {
		extra, err := json.Marshal(r.Extra)
		if err != nil {
			return nil, fmt.Errorf("failed to encode extra fields: %w", err)
		}
		row.Extra = datatypes.JSON(extra)
	}
	return row, nil
}

func (w *WaterReading) toStored() (StoredReading, error) {
	r := water.Reading{
		Timestamp: water.NewTimestamp(w.Timestamp),
		Area:      w.Area,
		TDS:       w.TDS,
		Ca:        w.Ca,
		Mg:        w.Mg,
		PH:        w.PH,
		Turbidity: w.Turbidity,
		Chlorine:  w.Chlorine,
	}
	if len(w.Extra) > 0 && string(w.Extra) != "null" {
		if err := json.Unmarshal(w.Extra, &r.Extra); err != nil {
			return StoredReading{}, fmt.Errorf("failed to decode extra fields of %s: %w", w.StorageKey, err)
		}
	}
	return StoredReading{Key: w.StorageKey, Reading: r}, nil
}
