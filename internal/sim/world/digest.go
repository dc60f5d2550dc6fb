package world

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"

	"lukechampine.com/blake3"

	"ghostround.io/internal/sim/geom"
)

// stateDigest hashes the authoritative state in a fixed order. Replays
// compare it tick by tick.
func (w *World) stateDigest(nowTick uint64) string {
	h := blake3.New(32, nil)
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(w.round.Number()))
	digestWriteU64(h, &tmp, uint64(w.round.State()))
	digestWriteU64(h, &tmp, uint64(w.round.Collected()))
	digestWriteU64(h, &tmp, uint64(w.round.Threshold()))
	digestWriteF64(h, &tmp, w.round.TimeRemaining())
	digestWriteU64(h, &tmp, w.countdownAt)
	h.Write([]byte{boolByte(w.consoleActive)})
	digestWriteString(h, &tmp, w.hostID)

	for _, p := range w.sortedPlayers() {
		digestWriteString(h, &tmp, p.ID)
		digestWriteVec(h, &tmp, p.Pos)
		digestWriteF64(h, &tmp, p.Yaw)
		digestWriteF64(h, &tmp, p.vit.Health())
		h.Write([]byte{boolByte(w.downed[p.ID])})
		digestWriteString(h, &tmp, p.carrying)
	}
	for _, a := range w.pop.Live() {
		digestWriteString(h, &tmp, a.ID)
		digestWriteU64(h, &tmp, uint64(a.State()))
		digestWriteF64(h, &tmp, a.Health())
		digestWriteVec(h, &tmp, a.Pos())
		digestWriteString(h, &tmp, a.CarrierID())
		digestWriteString(h, &tmp, a.TargetID())
	}
	for _, b := range w.sortedProjectiles() {
		digestWriteString(h, &tmp, b.ID)
		digestWriteVec(h, &tmp, b.Pos)
	}
	for _, r := range w.sortedRevives() {
		digestWriteString(h, &tmp, r.ReviverID)
		digestWriteString(h, &tmp, r.TargetID)
		digestWriteF64(h, &tmp, r.Elapsed)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h io.Writer, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h io.Writer, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h io.Writer, tmp *[8]byte, v geom.Vec3) {
	digestWriteF64(h, tmp, v.X)
	digestWriteF64(h, tmp, v.Y)
	digestWriteF64(h, tmp, v.Z)
}

func digestWriteString(h io.Writer, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
