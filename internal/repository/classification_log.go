package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/ecovision/internal/classification"
)

// ErrNotFound is returned when no history entry matches.
var ErrNotFound = errors.New("classification not found")

// StringList stores a []string as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// ClassificationLog is one persisted classification.
type ClassificationLog struct {
	ID                  uint       `gorm:"primaryKey" json:"-"`
	RequestID           string     `gorm:"column:request_id;uniqueIndex;size:64" json:"request_id"`
	Category            string     `gorm:"column:category;size:16;index" json:"category"`
	Confidence          int        `gorm:"column:confidence" json:"confidence"`
	Details             string     `gorm:"column:details;type:text" json:"details"`
	EnvironmentalImpact string     `gorm:"column:environmental_impact;type:text" json:"environmental_impact"`
	Tips                StringList `gorm:"column:tips;type:text" json:"tips"`
	BudsReward          int        `gorm:"column:buds_reward" json:"buds_reward"`
	OfflineMode         bool       `gorm:"column:offline_mode" json:"offline_mode"`
	SHA1Hash            string     `gorm:"column:sha1_hash;size:40;index" json:"sha1_hash"`
	LatencyMs           int64      `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt           time.Time  `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides the default table name.
func (ClassificationLog) TableName() string {
	return "classification_logs"
}

// NewClassificationLog builds a log entry from a result.
func NewClassificationLog(requestID, hash string, result classification.Result, latency time.Duration, createdAt time.Time) *ClassificationLog {
	return &ClassificationLog{
		RequestID:           requestID,
		Category:            string(result.Category),
		Confidence:          result.Confidence,
		Details:             result.Details,
		EnvironmentalImpact: result.EnvironmentalImpact,
		Tips:                StringList(append([]string(nil), result.Tips...)),
		BudsReward:          result.BudsReward,
		OfflineMode:         result.OfflineMode,
		SHA1Hash:            hash,
		LatencyMs:           latency.Milliseconds(),
		CreatedAt:           createdAt,
	}
}

// Result converts the entry back into the canonical result shape.
func (l *ClassificationLog) Result() classification.Result {
	return classification.Result{
		Category:            classification.Category(l.Category),
		Confidence:          l.Confidence,
		Details:             l.Details,
		EnvironmentalImpact: l.EnvironmentalImpact,
		Tips:                append([]string(nil), l.Tips...),
		BudsReward:          l.BudsReward,
		OfflineMode:         l.OfflineMode,
	}
}

// MetricsAggregation holds raw aggregates over the history.
type MetricsAggregation struct {
	TotalCount        int64
	OfflineCount      int64
	AverageConfidence float64
	TotalBuds         int64
	AverageLatencyMs  float64
	CategoryCounts    map[string]int64
}
