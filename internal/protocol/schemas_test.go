package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	cmdSchema := compile("cmd.schema.json")
	stateSchema := compile("state.schema.json")
	ackSchema := compile("ack.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"0.9",
	  "controller_name":"squad-ctl",
	  "capabilities":{"max_queue":8}
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"0.9",
	  "session_id":"7b8a3f2e-1d64-4f0a-9a2b-1c55aa80f001",
	  "field_id":"field-1",
	  "field_params":{
	    "tick_rate_hz":30,
	    "state_every_ticks":1,
	    "max_agents":256,
	    "max_agent_radius":2.0,
	    "field_boundary_r":1000,
	    "topologies":["LINE","COLUMN","WEDGE","BOX","CIRCLE"]
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var cmd any
	_ = json.Unmarshal([]byte(`{
	  "type":"CMD",
	  "protocol_version":"0.9",
	  "commands":[
	    {"id":"c1","op":"SPAWN_AGENT","pos":[0,0,0],"params":{"radius":0.6,"max_speed":3.5}},
	    {"id":"c2","op":"CREATE_FORMATION","topology":"LINE","spacing":2.0},
	    {"id":"c3","op":"ADD_MEMBER","formation":0,"agent":0},
	    {"id":"c4","op":"SET_TARGET","formation":0,"pos":[50,0,50],"heading":[0,0,1]},
	    {"id":"c5","op":"MOVE_AGENT","agent":0,"pos":[1,0,1]},
	    {"id":"c6","op":"SET_LEADER","formation":0,"agent":0}
	  ]
	}`), &cmd)
	validate(cmdSchema, cmd)

	var state any
	_ = json.Unmarshal([]byte(`{
	  "type":"STATE",
	  "protocol_version":"0.9",
	  "tick":421,
	  "field_id":"field-1",
	  "agents":[
	    {"id":0,"pos":[48.2,0,49.5],"vel":[1.2,0,0.4],"state":"MOVING","target":[46,0,50]}
	  ],
	  "formations":[
	    {"id":0,"topology":"LINE","spacing":2.0,"leader":-1,"members":[0],
	     "target":{"pos":[50,0,50],"heading":[0,0,1]},"cohesion":2.31}
	  ],
	  "events":[
	    {"t":420,"type":"RESULT","ref":"c4","ok":true},
	    {"t":420,"type":"RESULT","ref":"c5","ok":false,"code":"E_AGENT_NOT_FOUND","message":"agent 7 not in crowd"}
	  ]
	}`), &state)
	validate(stateSchema, state)

	var ack any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACK",
	  "protocol_version":"0.9",
	  "accepted":false,
	  "code":"E_PROTO_BAD_REQUEST",
	  "message":"expected CMD"
	}`), &ack)
	validate(ackSchema, ack)
}

func TestSchemas_RejectBadCommand(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "cmd.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var cmd any
	_ = json.Unmarshal([]byte(`{
	  "type":"CMD",
	  "protocol_version":"0.9",
	  "commands":[{"id":"c1","op":"TELEPORT_AGENT"}]
	}`), &cmd)
	if err := s.Validate(cmd); err == nil {
		t.Fatalf("unknown op passed schema validation")
	}
}
