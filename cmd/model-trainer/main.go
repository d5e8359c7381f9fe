package main

import (
	"flag"

	"github.com/clinical-ews/platform/pkg/common/logger"
	"github.com/clinical-ews/platform/pkg/risk"
	"github.com/clinical-ews/platform/pkg/risk/forest"
	"github.com/clinical-ews/platform/pkg/simulator"
)

// Trains the deterioration classifier offline and writes the artifact the
// serving process loads at start. Real deployments would train on labeled
// historical vitals; this uses the synthetic generator so the platform runs
// end to end without a clinical data export.
func main() {
	var (
		out          = flag.String("out", "artifacts/risk_model.json", "artifact output path")
		samples      = flag.Int("samples", 1000, "number of training samples")
		positiveRate = flag.Float64("positive-rate", 0.05, "fraction of deteriorating samples")
		trees        = flag.Int("trees", 100, "number of trees in the ensemble")
		depth        = flag.Int("depth", 10, "maximum tree depth")
		seed         = flag.Int64("seed", 42, "random seed")
	)
	flag.Parse()

	logger.Init()

	generator := simulator.NewGenerator(*seed)
	trainSamples, labels := generator.TrainingSet(*samples, *positiveRate)

	f, metrics, err := forest.Train(trainSamples, labels, risk.FeatureNames, forest.Options{
		NumTrees: *trees,
		MaxDepth: *depth,
		Seed:     *seed,
	})
	if err != nil {
		logger.Log.WithError(err).Fatal("training failed")
	}

	if err := forest.WriteArtifact(*out, f, metrics); err != nil {
		logger.Log.WithError(err).Fatal("failed to write model artifact")
	}

	logger.Log.WithFields(map[string]interface{}{
		"path":          *out,
		"trees":         *trees,
		"accuracy":      metrics.Accuracy,
		"positive_rate": metrics.PositiveRate,
	}).Info("risk model trained")
}
