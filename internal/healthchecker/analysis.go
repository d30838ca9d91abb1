package healthchecker

import (
	"context"

	"github.com/briefcall/marketplace/internal/analysis"
)

func CheckAnalysis() error {
	analysisClient := analysis.NewClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	return analysisClient.Ping(ctx)
}
