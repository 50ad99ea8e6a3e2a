package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz      int     `yaml:"tick_rate_hz"`
	StateEveryTicks int     `yaml:"state_every_ticks"`
	MaxAgents       int     `yaml:"max_agents"`
	MaxAgentRadius  float64 `yaml:"max_agent_radius"`
	FieldBoundaryR  float64 `yaml:"field_boundary_r"`
	OutQueueFrames  int     `yaml:"out_queue_frames"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type RateLimits struct {
	CmdWindowTicks int `yaml:"cmd_window_ticks"`
	CmdMax         int `yaml:"cmd_max"`
}

// Defaults are safe for local runs; production overrides live in
// configs/tuning.yaml.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "0.9",
		TickRateHz:      30,
		StateEveryTicks: 1,
		MaxAgents:       256,
		MaxAgentRadius:  2.0,
		FieldBoundaryR:  1000,
		OutQueueFrames:  64,
		RateLimits: RateLimits{
			CmdWindowTicks: 30,
			CmdMax:         120,
		},
	}
}

// Load reads path over Defaults: keys absent from the file keep their
// default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, t.Validate()
}

func (t Tuning) Validate() error {
	if t.TickRateHz < 1 || t.TickRateHz > 240 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.StateEveryTicks < 1 {
		return fmt.Errorf("state_every_ticks out of range: %d", t.StateEveryTicks)
	}
	if t.MaxAgents < 1 {
		return fmt.Errorf("max_agents out of range: %d", t.MaxAgents)
	}
	if !(t.MaxAgentRadius > 0) {
		return fmt.Errorf("max_agent_radius out of range: %v", t.MaxAgentRadius)
	}
	if t.FieldBoundaryR < 0 {
		return fmt.Errorf("field_boundary_r out of range: %v", t.FieldBoundaryR)
	}
	return nil
}

// Dt is the simulated seconds per tick.
func (t Tuning) Dt() float64 { return 1.0 / float64(t.TickRateHz) }
