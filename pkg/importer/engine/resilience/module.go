package resilience

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
)

// ChunkWrapperName names the wrapper shared by all chunk consumers.
const ChunkWrapperName = "chunkProcessor"

// NewChunkWrapper is the Fx provider of the shared chunk wrapper.
func NewChunkWrapper(cfg *config.Config, recorder metrics.MetricRecorder) *Wrapper {
	return NewWrapper(ChunkWrapperName, cfg.Importer.Resilience, recorder)
}

// Module provides the chunk resilience wrapper.
var Module = fx.Options(
	fx.Provide(NewChunkWrapper),
)
