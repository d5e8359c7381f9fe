package pipeline

import (
	"context"
	"time"

	"github.com/clinical-ews/platform/pkg/risk"
)

type DashboardStats struct {
	TotalPatients     int64             `json:"total_patients"`
	ReadingsToday     int64             `json:"readings_today"`
	HighRiskToday     int64             `json:"high_risk_patients"`
	RecentPredictions []risk.Prediction `json:"recent_predictions"`
}

// Dashboard aggregates overview numbers for the ward dashboard, cached
// briefly because every open dashboard polls it.
func (c *Coordinator) Dashboard(ctx context.Context, ttl time.Duration) (DashboardStats, error) {
	if c.cache != nil {
		if cached, ok := c.cache.GetDashboard(ctx); ok {
			return *cached, nil
		}
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)

	totalPatients, err := c.store.CountPatients(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	readingsToday, err := c.store.CountRecordsSince(ctx, midnight)
	if err != nil {
		return DashboardStats{}, err
	}
	highRiskToday, err := c.predictions.CountLevelSince(ctx, risk.LevelHigh, midnight)
	if err != nil {
		return DashboardStats{}, err
	}
	recent, err := c.predictions.Recent(ctx, 10)
	if err != nil {
		return DashboardStats{}, err
	}

	stats := DashboardStats{
		TotalPatients:     totalPatients,
		ReadingsToday:     readingsToday,
		HighRiskToday:     highRiskToday,
		RecentPredictions: recent,
	}
	if c.cache != nil {
		c.cache.SetDashboard(ctx, stats, ttl)
	}
	return stats, nil
}
