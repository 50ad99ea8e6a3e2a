// Command bot is a demo controller: it spawns a squad, forms it up,
// then marches it around a square patrol route.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"phalanx.gg/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "controller name")
		topology = flag.String("topology", "WEDGE", "formation topology")
		agents   = flag.Int("agents", 5, "number of agents to spawn")
		spacing  = flag.Float64("spacing", 2.5, "slot spacing in meters")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ControllerName:  *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	b := &bot{
		conn:      conn,
		logger:    logger,
		topology:  *topology,
		n:         *agents,
		spacing:   *spacing,
		formation: -1,
		pending:   map[string]string{},
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.tickRate = w.FieldParams.TickRateHz
			logger.Printf("WELCOME session=%s field=%s tick_rate=%d max_agents=%d",
				w.SessionID, w.FieldID, w.FieldParams.TickRateHz, w.FieldParams.MaxAgents)

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			b.handleState(&st)

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("ACK rejected: code=%s message=%s", ack.Code, ack.Message)
			}
		}
	}
}

// patrol corners, walked in order and wrapped.
var waypoints = [][3]float64{
	{30, 0, 0},
	{30, 0, 30},
	{0, 0, 30},
	{0, 0, 0},
}

type bot struct {
	conn     *websocket.Conn
	logger   *log.Logger
	topology string
	n        int
	spacing  float64
	tickRate int

	seq       int
	pending   map[string]string // command id -> op, for RESULT matching
	agents    []int
	formation int
	spawned   bool
	enrolled  bool
	wp        int
	prev      [3]float64
	lastMove  uint64
	moved     bool
}

func (b *bot) handleState(st *protocol.StateMsg) {
	b.consumeResults(st)

	switch {
	case !b.spawned:
		// Spawn the squad on a ring so slots start spread out.
		cmds := make([]protocol.CommandReq, 0, b.n)
		for i := 0; i < b.n; i++ {
			ang := 2 * math.Pi * float64(i) / float64(b.n)
			pos := [3]float64{6 * math.Cos(ang), 0, 6 * math.Sin(ang)}
			cmds = append(cmds, protocol.CommandReq{
				ID: b.nextID(protocol.OpSpawnAgent), Op: protocol.OpSpawnAgent, Pos: &pos,
			})
		}
		b.send(cmds)
		b.spawned = true

	case len(b.agents) == b.n && b.formation < 0 && !b.awaiting(protocol.OpCreateFormation):
		b.send([]protocol.CommandReq{{
			ID: b.nextID(protocol.OpCreateFormation), Op: protocol.OpCreateFormation,
			Topology: b.topology, Spacing: b.spacing,
		}})

	case b.formation >= 0 && !b.enrolled:
		cmds := make([]protocol.CommandReq, 0, b.n+1)
		for _, a := range b.agents {
			agent := a
			cmds = append(cmds, protocol.CommandReq{
				ID: b.nextID(protocol.OpAddMember), Op: protocol.OpAddMember,
				Formation: &b.formation, Agent: &agent,
			})
		}
		leader := b.agents[0]
		cmds = append(cmds, protocol.CommandReq{
			ID: b.nextID(protocol.OpSetLeader), Op: protocol.OpSetLeader,
			Formation: &b.formation, Agent: &leader,
		})
		b.send(cmds)
		b.enrolled = true

	case b.enrolled && b.dueForMove(st.Tick):
		b.marchToNextWaypoint(st)
		b.lastMove = st.Tick
	}
}

// consumeResults learns agent handles and the formation id from RESULT
// events matched back to sent command ids.
func (b *bot) consumeResults(st *protocol.StateMsg) {
	for _, ev := range st.Events {
		if ev["type"] != "RESULT" {
			continue
		}
		ref, _ := ev["ref"].(string)
		op, known := b.pending[ref]
		if !known {
			continue
		}
		delete(b.pending, ref)
		if ok, _ := ev["ok"].(bool); !ok {
			b.logger.Printf("%s rejected: code=%v message=%v", op, ev["code"], ev["message"])
			continue
		}
		switch op {
		case protocol.OpSpawnAgent:
			if idx, ok := ev["agent"].(float64); ok {
				b.agents = append(b.agents, int(idx))
			}
		case protocol.OpCreateFormation:
			if id, ok := ev["formation"].(float64); ok {
				b.formation = int(id)
				b.logger.Printf("formation=%d topology=%s spacing=%g", b.formation, b.topology, b.spacing)
			}
		}
	}
}

// dueForMove retargets immediately after enrollment, then every ~10
// seconds of sim time.
func (b *bot) dueForMove(tick uint64) bool {
	if b.tickRate <= 0 {
		return false
	}
	if !b.moved {
		return true
	}
	return tick-b.lastMove >= uint64(10*b.tickRate)
}

func (b *bot) marchToNextWaypoint(st *protocol.StateMsg) {
	next := waypoints[b.wp%len(waypoints)]
	b.wp++

	heading := headingBetween(b.prev, next)
	b.prev = next
	b.moved = true
	b.send([]protocol.CommandReq{{
		ID: b.nextID(protocol.OpSetTarget), Op: protocol.OpSetTarget,
		Formation: &b.formation, Pos: &next, Heading: &heading,
	}})

	arrived := 0
	for _, a := range st.Agents {
		if a.State == "ARRIVED" {
			arrived++
		}
	}
	cohesion := 0.0
	for _, fo := range st.Formations {
		if fo.ID == b.formation {
			cohesion = fo.Cohesion
		}
	}
	b.logger.Printf("tick=%d waypoint=%v arrived=%d/%d cohesion=%.2f",
		st.Tick, next, arrived, len(st.Agents), cohesion)
}

func headingBetween(from, to [3]float64) [3]float64 {
	dx, dz := to[0]-from[0], to[2]-from[2]
	norm := math.Hypot(dx, dz)
	if norm == 0 {
		return [3]float64{0, 0, 1}
	}
	return [3]float64{dx / norm, 0, dz / norm}
}

func (b *bot) awaiting(op string) bool {
	for _, v := range b.pending {
		if v == op {
			return true
		}
	}
	return false
}

func (b *bot) nextID(op string) string {
	b.seq++
	id := fmt.Sprintf("c%d", b.seq)
	b.pending[id] = op
	return id
}

func (b *bot) send(cmds []protocol.CommandReq) {
	msg := protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		Commands:        cmds,
	}
	_ = b.conn.WriteJSON(msg)
}
