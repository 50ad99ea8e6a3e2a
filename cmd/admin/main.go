// Command admin inspects a field's on-disk artifacts: the data dir
// layout, the JSONL audit trail, and the sqlite read-model index. It
// never drives the simulation; the state subcommand only reads the
// server's loopback admin endpoint.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "phalanx.gg/internal/persistence/log"
	"phalanx.gg/internal/sim/field"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	fieldID := fs.String("field", "", "field id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "fields")
	if *fieldID != "" {
		base = filepath.Join(base, *fieldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// auditCmd scans the raw audit log, bypassing the index, so it works
// even when the server ran with -disable_db.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	fieldID := fs.String("field", "", "field id (required)")
	formation := fs.Int("formation", -1, "formation id filter (optional)")
	action := fs.String("action", "", "action filter, e.g. CREATE_FORMATION (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "only records at or after this tick")
	toTick := fs.Uint64("to_tick", 0, "only records at or before this tick (0 = no limit)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*fieldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -field")
		os.Exit(2)
	}

	dir := filepath.Join(*dataDir, "fields", *fieldID, "audit")
	var total int
	err := persistlog.ForEachAuditEntry(dir, func(e field.AuditEntry) error {
		if e.Tick < *sinceTick {
			return nil
		}
		if *toTick != 0 && e.Tick > *toTick {
			return nil
		}
		if *formation >= 0 && e.Formation != *formation {
			return nil
		}
		if *action != "" && e.Action != *action {
			return nil
		}
		printJSON(e)
		total++
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d records\n", total)
}
