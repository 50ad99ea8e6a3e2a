package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	fieldID := fs.String("field", "", "field id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	session := fs.String("session", "", "session_id filter (commands)")
	action := fs.String("action", "", "action filter (audits)")
	formation := fs.Int("formation", -1, "formation id filter (audits)")
	_ = fs.Parse(args)

	q := "ticks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*fieldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -field or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "fields", *fieldID, "index.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "ticks":
		rows, err := db.Query(`SELECT tick,digest,joins,leaves,commands FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     uint64 `json:"tick"`
				Digest   string `json:"digest"`
				Joins    int    `json:"joins"`
				Leaves   int    `json:"leaves"`
				Commands int    `json:"commands"`
			}
			if err := rows.Scan(&r.Tick, &r.Digest, &r.Joins, &r.Leaves, &r.Commands); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "commands":
		query := `SELECT tick,seq,session_id,cmd_json FROM commands ORDER BY tick DESC,seq DESC LIMIT ?`
		qargs := []any{*limit}
		if strings.TrimSpace(*session) != "" {
			query = `SELECT tick,seq,session_id,cmd_json FROM commands WHERE session_id=? ORDER BY tick DESC,seq DESC LIMIT ?`
			qargs = []any{*session, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    uint64          `json:"tick"`
				Seq     int             `json:"seq"`
				Session string          `json:"session_id"`
				Cmd     json.RawMessage `json:"cmd"`
			}
			var raw string
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Session, &raw); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Cmd = json.RawMessage(raw)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "audits":
		query := `SELECT tick,seq,session_id,action,formation,agent,detail FROM audits`
		var conds []string
		var qargs []any
		if strings.TrimSpace(*action) != "" {
			conds = append(conds, "action=?")
			qargs = append(qargs, *action)
		}
		if *formation >= 0 {
			conds = append(conds, "formation=?")
			qargs = append(qargs, *formation)
		}
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " ORDER BY tick DESC,seq DESC LIMIT ?"
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick      uint64 `json:"tick"`
				Seq       int    `json:"seq"`
				Session   string `json:"session_id"`
				Action    string `json:"action"`
				Formation int    `json:"formation"`
				Agent     int    `json:"agent"`
				Detail    string `json:"detail,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Session, &r.Action, &r.Formation, &r.Agent, &r.Detail); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "sessions":
		rows, err := db.Query(`SELECT tick,session_id,name FROM joins ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick    uint64 `json:"tick"`
				Session string `json:"session_id"`
				Name    string `json:"name"`
			}
			if err := rows.Scan(&r.Tick, &r.Session, &r.Name); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		out := map[string]string{}
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			out[k] = v
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}
		printJSON(out)

	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (want ticks|commands|audits|sessions|meta)\n", q)
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
