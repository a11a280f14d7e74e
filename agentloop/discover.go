package agentloop

import (
	"log/slog"
)

// Source supplies tool descriptors during discovery. A source that fails
// does not prevent other sources from contributing.
type Source interface {
	Name() string
	Tools() ([]ToolDescriptor, error)
}

// StaticSource is a fixed list of tool descriptors.
type StaticSource struct {
	SourceName  string
	Descriptors []ToolDescriptor
}

func (s StaticSource) Name() string { return s.SourceName }

func (s StaticSource) Tools() ([]ToolDescriptor, error) {
	return s.Descriptors, nil
}

// Discover registers the tools of each source into the registry. A failing
// source is logged and skipped; duplicate names are logged and skipped with
// the earlier registration kept. It returns the number of tools registered.
func Discover(registry *ToolRegistry, logger *slog.Logger, sources ...Source) int {
	if logger == nil {
		logger = slog.Default()
	}
	registered := 0
	for _, src := range sources {
		descriptors, err := src.Tools()
		if err != nil {
			logger.Warn("tool source failed, skipping",
				"source", src.Name(),
				"error", err)
			continue
		}
		for _, d := range descriptors {
			if err := registry.Register(d); err != nil {
				logger.Warn("tool registration skipped",
					"source", src.Name(),
					"tool", d.Name,
					"error", err)
				continue
			}
			registered++
		}
	}
	return registered
}

// DiscoverOnce runs Discover at most once per registry, for lazy discovery
// on the first run that needs tools.
func (r *ToolRegistry) DiscoverOnce(logger *slog.Logger, sources ...Source) {
	r.once.Do(func() {
		Discover(r, logger, sources...)
	})
}
