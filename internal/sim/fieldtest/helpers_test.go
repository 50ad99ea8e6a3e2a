package fieldtest

import (
	"encoding/json"
	"testing"

	"phalanx.gg/internal/protocol"
	"phalanx.gg/internal/sim/field"
)

func ip(v int) *int { return &v }

func posp(x, y, z float64) *[3]float64 {
	a := [3]float64{x, y, z}
	return &a
}

// resultCode returns "" when the referenced command was accepted, the
// error code when it was rejected, and E_INTERNAL when no result exists.
func resultCode(st protocol.StateMsg, ref string) string {
	for _, e := range st.Events {
		if typ, _ := e["type"].(string); typ != "RESULT" {
			continue
		}
		if got, _ := e["ref"].(string); got != ref {
			continue
		}
		if ok, _ := e["ok"].(bool); ok {
			return ""
		}
		if code, _ := e["code"].(string); code != "" {
			return code
		}
		return protocol.ErrInternal
	}
	return protocol.ErrInternal
}

// resultInt reads a numeric field (agent or formation id) off a RESULT
// event. JSON numbers decode as float64.
func resultInt(t *testing.T, st protocol.StateMsg, ref, key string) int {
	t.Helper()
	for _, e := range st.Events {
		if typ, _ := e["type"].(string); typ != "RESULT" {
			continue
		}
		if got, _ := e["ref"].(string); got != ref {
			continue
		}
		v, ok := e[key].(float64)
		if !ok {
			t.Fatalf("result %q has no numeric %q: %v", ref, key, e)
		}
		return int(v)
	}
	t.Fatalf("no result for %q", ref)
	return 0
}

func findAgent(st protocol.StateMsg, id int) (protocol.AgentObs, bool) {
	for _, a := range st.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return protocol.AgentObs{}, false
}

func findFormation(st protocol.StateMsg, id int) (protocol.FormationObs, bool) {
	for _, f := range st.Formations {
		if f.ID == id {
			return f, true
		}
	}
	return protocol.FormationObs{}, false
}

func jsonRoundTrip(t *testing.T, entry field.TickLogEntry) field.TickLogEntry {
	t.Helper()
	b, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal tick entry: %v", err)
	}
	var out field.TickLogEntry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal tick entry: %v", err)
	}
	return out
}

func stepUntilArrived(t *testing.T, h *Harness, agents []int, maxTicks int) protocol.StateMsg {
	t.Helper()
	st := h.LastState()
	for i := 0; i < maxTicks; i++ {
		done := true
		for _, id := range agents {
			a, ok := findAgent(st, id)
			if !ok || a.State != "ARRIVED" {
				done = false
				break
			}
		}
		if done {
			return st
		}
		st = h.StepNoop()
	}
	t.Fatalf("agents %v did not arrive within %d ticks", agents, maxTicks)
	return st
}
