// Package control
// Author: momentics <momentics@gmail.com>
//
// Plane bundles configuration, metrics and debug probes behind api.Control.

package control

import (
	"github.com/momentics/hioload-ring/api"
)

var _ api.Control = (*Plane)(nil)

// Plane is the control surface one process hands to its rings.
type Plane struct {
	Config  *ConfigStore
	Metrics *MetricsRegistry
	Debug   *DebugProbes
}

// NewPlane builds a plane with platform probes registered.
func NewPlane() *Plane {
	p := &Plane{
		Config:  NewConfigStore(),
		Metrics: NewMetricsRegistry(),
		Debug:   NewDebugProbes(),
	}
	RegisterPlatformProbes(p.Debug)
	return p
}

func (p *Plane) GetConfig() map[string]any {
	return p.Config.GetSnapshot()
}

func (p *Plane) SetConfig(cfg map[string]any) error {
	p.Config.SetConfig(cfg)
	return nil
}

// Stats merges metrics with probe output under the "debug." prefix.
func (p *Plane) Stats() map[string]any {
	stats := p.Metrics.GetSnapshot()
	debugStats := p.Debug.DumpState()
	combined := make(map[string]any, len(stats)+len(debugStats))
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range debugStats {
		combined["debug."+k] = v
	}
	return combined
}

func (p *Plane) OnReload(fn func()) {
	p.Config.OnReload(fn)
	RegisterReloadHook(fn)
}

func (p *Plane) SetMetric(key string, value any) {
	p.Metrics.Set(key, value)
}

func (p *Plane) RegisterDebugProbe(name string, fn func() any) {
	p.Debug.RegisterProbe(name, fn)
}

func (p *Plane) UnregisterDebugProbe(name string) {
	p.Debug.UnregisterProbe(name)
}
