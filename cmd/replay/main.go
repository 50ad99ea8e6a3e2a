// Command replay re-executes a recorded tick log against a fresh field
// and verifies the per-tick state digests. The field config must match
// the one the recording server ran with, so both read the same
// tuning.yaml.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "phalanx.gg/internal/persistence/log"
	"phalanx.gg/internal/sim/field"
	"phalanx.gg/internal/sim/tuning"
)

func main() {
	var (
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst")
		fieldID    = flag.String("field", "field_1", "field id")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			tune = tuning.Defaults()
		} else {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
	}

	f := field.New(field.Config{
		ID:              *fieldID,
		TickRateHz:      tune.TickRateHz,
		StateEveryTicks: tune.StateEveryTicks,
		MaxAgents:       tune.MaxAgents,
		MaxAgentRadius:  tune.MaxAgentRadius,
		BoundaryR:       tune.FieldBoundaryR,
		CmdWindowTicks:  tune.RateLimits.CmdWindowTicks,
		CmdMax:          tune.RateLimits.CmdMax,
		OutQueueFrames:  tune.OutQueueFrames,
	})

	fmt.Printf("replaying field=%s tick_rate=%dHz events=%s\n", *fieldID, tune.TickRateHz, *eventsDir)

	errDone := errors.New("done")
	var checked uint64
	err = persistlog.ForEachTickEntry(*eventsDir, func(entry field.TickLogEntry) error {
		if *toTick != 0 && entry.Tick > *toTick {
			return errDone
		}
		if entry.Tick != f.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", f.CurrentTick(), entry.Tick)
		}

		joins := make([]field.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			joins = append(joins, field.JoinRequest{ControllerName: j.Name, SessionID: j.SessionID})
		}
		cmds := make([]field.CmdEnvelope, 0, len(entry.Commands))
		for _, rc := range entry.Commands {
			cmds = append(cmds, field.CmdEnvelope{SessionID: rc.SessionID, Cmd: rc.Cmd})
		}

		tick, gotDigest := f.StepOnce(joins, entry.Leaves, cmds)

		// Sanity check: StepOnce should have stepped the same tick.
		if tick != entry.Tick {
			return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
		}

		if tick >= *fromTick {
			checked++
			if gotDigest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
			}
		}
		return nil
	})
	if err != nil && err != errDone {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks\n", checked)
}
