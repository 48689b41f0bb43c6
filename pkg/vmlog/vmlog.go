// Package vmlog constructs the structured logger used for the VM host's
// operational diagnostics: image-load summaries, block-save failures, and
// CLI argument errors. The VM's own CSV trace (pkg/trace) is a fixed wire
// format consumed by an external tool and is not routed through this
// logger; both write to stderr in embedvm, interleaved in write order.
package vmlog

import "go.uber.org/zap"

// New builds a console-encoded zap.Logger writing to stderr. Passing
// debug=true lowers the level to Debug; otherwise the logger reports Info
// and above, matching the teacher's non-verbose-by-default CLI posture.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
