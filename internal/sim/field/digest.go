package field

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"phalanx.gg/internal/sim/geom"
)

// stateDigest hashes the simulation state after a tick. Two fields fed
// the same boundary inputs from tick 0 must produce identical digests;
// session bookkeeping stays out of the hash on purpose.
func (f *Field) stateDigest(tick uint64) string {
	h := sha256.New()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeI64 := func(v int) { writeU64(uint64(int64(v))) }
	writeF64 := func(v float64) { writeU64(math.Float64bits(v)) }
	writeVec := func(v geom.Vec3) {
		writeF64(v.X)
		writeF64(v.Y)
		writeF64(v.Z)
	}
	writeBool := func(b bool) {
		if b {
			writeU64(1)
		} else {
			writeU64(0)
		}
	}

	writeU64(tick)

	agents := f.herd.ActiveAgents()
	writeI64(len(agents))
	for _, idx := range agents {
		snap, ok := f.herd.AgentSnapshot(idx)
		if !ok {
			continue
		}
		writeI64(snap.Index)
		writeVec(snap.Pos)
		writeVec(snap.Vel)
		writeBool(snap.HasTarget)
		writeVec(snap.Target)
		writeI64(int(snap.State))
		writeF64(snap.Params.Radius)
		writeF64(snap.Params.Height)
		writeF64(snap.Params.MaxSpeed)
		writeF64(snap.Params.MaxAccel)
	}

	ids := f.coord.IDs()
	writeI64(len(ids))
	for _, id := range ids {
		info, err := f.coord.Info(id)
		if err != nil {
			continue
		}
		writeI64(info.ID)
		writeI64(int(info.Topology))
		writeF64(info.Spacing)
		writeI64(info.Leader)
		members, _ := f.coord.Members(id)
		writeI64(len(members))
		for _, m := range members {
			writeI64(m)
		}
		writeBool(info.HasTarget)
		writeVec(info.TargetPos)
		writeVec(info.TargetDir)
	}

	return hex.EncodeToString(h.Sum(nil))
}
