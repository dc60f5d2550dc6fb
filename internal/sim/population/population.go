// Package population spawns adversary agents for a round and tracks which
// of them are still alive.
package population

import (
	"fmt"
	"math/rand"
	"sort"

	"ghostround.io/internal/sim/geom"
	"ghostround.io/internal/sim/ghost"
	"ghostround.io/internal/sim/round"
	"ghostround.io/internal/sim/tuning"
)

type Manager struct {
	ghostTuning tuning.Ghost
	prefabs     []tuning.Prefab
	spawns      []geom.Vec3
	routes      []tuning.Route
	scaling     round.Scaling

	live   map[string]*ghost.Agent
	nextID uint64
}

func New(t tuning.Tuning) *Manager {
	return &Manager{
		ghostTuning: t.Ghost,
		prefabs:     append([]tuning.Prefab(nil), t.Prefabs...),
		spawns:      append([]geom.Vec3(nil), t.Spawns...),
		routes:      append([]tuning.Route(nil), t.Routes...),
		scaling:     round.ScalingFrom(t.Round),
		live:        map[string]*ghost.Agent{},
	}
}

// Count is the number of agents a round spawns.
func (m *Manager) Count(n int) int { return m.scaling.GhostCount(n) }

// CanSpawn reports whether the configuration allows any spawn at all.
func (m *Manager) CanSpawn() bool { return len(m.prefabs) > 0 && len(m.spawns) > 0 }

// ParamsFor resolves behavior parameters for a prefab id, falling back to the
// shared tuning when the prefab is unknown.
func (m *Manager) ParamsFor(prefabID string) ghost.Params {
	for _, p := range m.prefabs {
		if p.ID == prefabID {
			return ghost.ParamsFor(m.ghostTuning, p)
		}
	}
	return ghost.ParamsFor(m.ghostTuning, tuning.Prefab{ID: prefabID, Tier: 1})
}

// SpawnRound creates and spawns the agents for round n. With no prefabs or no
// spawn points it spawns nothing.
func (m *Manager) SpawnRound(n int, env ghost.Env) []*ghost.Agent {
	if !m.CanSpawn() {
		return nil
	}
	rng := env.Rand()
	count := m.Count(n)
	out := make([]*ghost.Agent, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, m.spawnOne(rng, env))
	}
	return out
}

func (m *Manager) spawnOne(rng *rand.Rand, env ghost.Env) *ghost.Agent {
	prefab := m.prefabs[rng.Intn(len(m.prefabs))]
	pos := m.spawns[rng.Intn(len(m.spawns))]
	var route []geom.Vec3
	if len(m.routes) > 0 {
		route = m.routes[rng.Intn(len(m.routes))].Waypoints
	}
	m.nextID++
	a := ghost.New(fmt.Sprintf("G%06d", m.nextID), prefab, ghost.ParamsFor(m.ghostTuning, prefab), pos, route)
	m.live[a.ID] = a
	a.Spawn(env)
	return a
}

// Add registers an existing agent, e.g. one restored from a snapshot.
func (m *Manager) Add(a *ghost.Agent) {
	m.live[a.ID] = a
	var n uint64
	if _, err := fmt.Sscanf(a.ID, "G%d", &n); err == nil && n > m.nextID {
		m.nextID = n
	}
}

func (m *Manager) Get(id string) *ghost.Agent { return m.live[id] }

func (m *Manager) Remove(id string) bool {
	if _, ok := m.live[id]; !ok {
		return false
	}
	delete(m.live, id)
	return true
}

// DespawnAll drops every live agent and returns their ids in order.
func (m *Manager) DespawnAll() []string {
	ids := m.ids()
	m.live = map[string]*ghost.Agent{}
	return ids
}

func (m *Manager) Len() int { return len(m.live) }

// Live returns live agents sorted by id.
func (m *Manager) Live() []*ghost.Agent {
	ids := m.ids()
	out := make([]*ghost.Agent, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.live[id])
	}
	return out
}

func (m *Manager) ids() []string {
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) NextID() uint64     { return m.nextID }
func (m *Manager) SetNextID(n uint64) { m.nextID = n }
