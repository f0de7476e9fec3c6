package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/domain/ports"
	"go.uber.org/zap"
)

// RelationshipObserver is notified when a relationship starts or ends.
type RelationshipObserver func(rel *entities.Relationship)

// ConsummationObserver is notified once per coital act.
type ConsummationObserver func(rel *entities.Relationship, usedCondom bool)

// RelationshipManager is the per-node registry of relationships and of their
// transmission pool membership.
type RelationshipManager struct {
	nodeID     entities.Suid
	arena      *Arena
	population ports.Population
	terminated ports.TerminatedSet
	logger     *zap.Logger

	registry *sparseSet[entities.Suid]
	pools    map[string]*sparseSet[entities.Suid]
	poolOf   map[entities.Suid]string

	condomOverrides map[entities.RelationshipType]entities.Sigmoid

	newObservers         []RelationshipObserver
	terminatedObservers  []RelationshipObserver
	consummatedObservers []ConsummationObserver
}

// NewRelationshipManager creates the registry of one node.
func NewRelationshipManager(
	nodeID entities.Suid,
	arena *Arena,
	population ports.Population,
	terminated ports.TerminatedSet,
	logger *zap.Logger,
) *RelationshipManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationshipManager{
		nodeID:          nodeID,
		arena:           arena,
		population:      population,
		terminated:      terminated,
		logger:          logger.With(zap.Uint64("node_id", uint64(nodeID))),
		registry:        newSparseSet[entities.Suid](),
		pools:           make(map[string]*sparseSet[entities.Suid]),
		poolOf:          make(map[entities.Suid]string),
		condomOverrides: make(map[entities.RelationshipType]entities.Sigmoid),
	}
}

// NodeID returns the node the manager belongs to.
func (m *RelationshipManager) NodeID() entities.Suid { return m.nodeID }

// OnNew registers an observer for newly formed relationships.
func (m *RelationshipManager) OnNew(o RelationshipObserver) {
	m.newObservers = append(m.newObservers, o)
}

// OnTerminated registers an observer for terminated relationships.
func (m *RelationshipManager) OnTerminated(o RelationshipObserver) {
	m.terminatedObservers = append(m.terminatedObservers, o)
}

// OnConsummated registers an observer for coital acts.
func (m *RelationshipManager) OnConsummated(o ConsummationObserver) {
	m.consummatedObservers = append(m.consummatedObservers, o)
}

// Update runs the per-step dissolution pass over every registered relationship.
// A record shared with another node's registry is advanced only once per step.
func (m *RelationshipManager) Update(ctx context.Context, step int64, dt float64) error {
	for _, id := range m.registry.Values() {
		rel, ok := m.arena.Lookup(id)
		if !ok {
			m.registry.Remove(id)
			m.removeFromPool(id)
			continue
		}
		if rel.State() == entities.StateTerminated {
			if rel.OpenSide() == entities.NilSuid {
				m.drop(id)
				continue
			}
			gone, err := m.terminated.WasTerminatedLastStep(ctx, id)
			if err != nil {
				return fmt.Errorf("checking terminated set for relationship %s: %w", id, err)
			}
			if gone {
				m.finishSide(rel)
			}
			continue
		}
		if !rel.MarkUpdated(step) {
			continue
		}

		if rel.State() == entities.StatePaused {
			gone, err := m.terminated.WasTerminatedLastStep(ctx, id)
			if err != nil {
				return fmt.Errorf("checking terminated set for relationship %s: %w", id, err)
			}
			if gone {
				if err := m.Terminate(ctx, rel, entities.ReasonPartnerTerminated); err != nil {
					return err
				}
				continue
			}
		}

		if !rel.Update(dt) {
			if err := m.Terminate(ctx, rel, entities.ReasonBrokeUp); err != nil {
				return err
			}
		}
	}
	return nil
}

// Terminate ends rel and deregisters it from this node. Partners living in this
// node are unlinked at once. When a PAUSED relationship ends, the partner in the
// other node keeps the record until that node sees the termination in the
// terminated set on the next step.
func (m *RelationshipManager) Terminate(ctx context.Context, rel *entities.Relationship, reason entities.TerminationReason) error {
	shared := rel.State() == entities.StatePaused &&
		reason != entities.ReasonPartnerTerminated &&
		m.arena.References(rel.ID()) > 1
	if !rel.Terminate(reason) {
		return nil
	}
	for _, id := range []entities.Suid{rel.MaleID(), rel.FemaleID()} {
		ind, ok := m.population.Individual(id)
		if !ok {
			continue
		}
		if shared && ind.NodeID != m.nodeID && rel.OpenSide() == entities.NilSuid {
			if err := rel.KeepSideOpen(id); err != nil {
				return err
			}
			continue
		}
		ind.RemoveRelationship(rel)
	}
	m.logger.Debug("relationship terminated",
		zap.Uint64("relationship_id", uint64(rel.ID())),
		zap.Stringer("type", rel.Type()),
		zap.Stringer("reason", reason),
		zap.Float64("duration", rel.Duration()),
		zap.Uint64("open_side", uint64(rel.OpenSide())),
	)
	return m.RemoveRelationship(ctx, rel, true)
}

// finishSide ends the side of a relationship whose partner's node terminated
// it during the previous step.
func (m *RelationshipManager) finishSide(rel *entities.Relationship) {
	openID := rel.OpenSide()
	if !rel.FinishSide(entities.ReasonPartnerTerminated) {
		m.drop(rel.ID())
		return
	}
	if ind, ok := m.population.Individual(openID); ok {
		ind.RemoveRelationship(rel)
	}
	m.logger.Debug("relationship terminated",
		zap.Uint64("relationship_id", uint64(rel.ID())),
		zap.Stringer("type", rel.Type()),
		zap.Stringer("reason", rel.TerminationReason()),
		zap.Float64("duration", rel.Duration()),
	)
	for _, o := range m.terminatedObservers {
		o(rel)
	}
	m.drop(rel.ID())
}

// AddRelationship registers rel. NORMAL relationships join their transmission pool.
func (m *RelationshipManager) AddRelationship(rel *entities.Relationship, isNew bool) {
	id := rel.ID()
	m.arena.Insert(rel)
	if m.registry.Add(id) {
		m.arena.Retain(id)
	}
	if rel.State() == entities.StateNormal {
		m.addToPool(rel)
	}
	if isNew {
		m.logger.Debug("relationship started",
			zap.Uint64("relationship_id", uint64(id)),
			zap.Stringer("type", rel.Type()),
			zap.Uint64("male_id", uint64(rel.MaleID())),
			zap.Uint64("female_id", uint64(rel.FemaleID())),
		)
		for _, o := range m.newObservers {
			o(rel)
		}
	}
}

// RemoveRelationship deregisters rel from its pool and, when leavingNode is set,
// from this node's registry. Terminations of paused relationships are posted
// to the terminated set for the partner's node.
func (m *RelationshipManager) RemoveRelationship(ctx context.Context, rel *entities.Relationship, leavingNode bool) error {
	id := rel.ID()
	if !m.registry.Contains(id) {
		return nil
	}
	terminated := rel.State() == entities.StateTerminated
	if terminated {
		for _, o := range m.terminatedObservers {
			o(rel)
		}
	}
	m.removeFromPool(id)
	if leavingNode {
		m.registry.Remove(id)
		m.arena.Release(id)
	}
	if terminated && rel.PreviousState() == entities.StatePaused && rel.TerminationReason() != entities.ReasonPartnerTerminated {
		if err := m.terminated.Add(ctx, m.nodeID, id); err != nil {
			return fmt.Errorf("posting terminated relationship %s: %w", id, err)
		}
	}
	return nil
}

// ConsummateRelationship notifies the consummation observers once per act.
// The first condomActs acts are reported as protected.
func (m *RelationshipManager) ConsummateRelationship(rel *entities.Relationship, acts, condomActs int) {
	for i := 0; i < acts; i++ {
		for _, o := range m.consummatedObservers {
			o(rel, i < condomActs)
		}
	}
}

// Emigrate hands rel over to the node the partners are leaving for.
func (m *RelationshipManager) Emigrate(rel *entities.Relationship) *entities.Relationship {
	return rel
}

// Immigrate registers an arriving relationship. When a record with the same id
// is already known, that record is returned and the incoming one must be discarded.
func (m *RelationshipManager) Immigrate(rel *entities.Relationship) *entities.Relationship {
	canonical := rel
	if existing, ok := m.arena.Lookup(rel.ID()); ok {
		canonical = existing
	} else {
		m.arena.Insert(rel)
	}
	if m.registry.Add(canonical.ID()) {
		m.arena.Retain(canonical.ID())
	}
	return canonical
}

// Leave deregisters rel from this node without terminating it.
func (m *RelationshipManager) Leave(rel *entities.Relationship) {
	id := rel.ID()
	m.removeFromPool(id)
	if m.registry.Remove(id) {
		m.arena.Release(id)
	}
}

// Rejoin puts a registered relationship back into its pool once it is NORMAL again.
func (m *RelationshipManager) Rejoin(rel *entities.Relationship) {
	if rel.State() == entities.StateNormal && m.registry.Contains(rel.ID()) {
		m.addToPool(rel)
	}
}

// SetCondomUsageOverride installs a node-level condom-usage curve for a relationship type.
func (m *RelationshipManager) SetCondomUsageOverride(t entities.RelationshipType, s entities.Sigmoid) {
	m.condomOverrides[t] = s
}

// ClearCondomUsageOverride removes the node-level curve of a relationship type.
func (m *RelationshipManager) ClearCondomUsageOverride(t entities.RelationshipType) {
	delete(m.condomOverrides, t)
}

// CondomProbability returns the per-act condom probability of rel in the given year.
func (m *RelationshipManager) CondomProbability(rel *entities.Relationship, year float64) float64 {
	if o := rel.CondomOverride(); o != nil {
		return o.At(year)
	}
	if o, ok := m.condomOverrides[rel.Type()]; ok {
		return o.At(year)
	}
	if p := rel.Parameters(); p != nil {
		return p.CondomUsage.At(year)
	}
	return 0
}

// Relationship returns a relationship registered in this node.
func (m *RelationshipManager) Relationship(id entities.Suid) (*entities.Relationship, bool) {
	if !m.registry.Contains(id) {
		m.logger.Debug("relationship not registered", zap.Uint64("relationship_id", uint64(id)))
		return nil, false
	}
	return m.arena.Lookup(id)
}

// Relationships returns every registered relationship.
func (m *RelationshipManager) Relationships() []*entities.Relationship {
	ids := m.registry.Values()
	out := make([]*entities.Relationship, 0, len(ids))
	for _, id := range ids {
		if rel, ok := m.arena.Lookup(id); ok {
			out = append(out, rel)
		}
	}
	return out
}

// Count returns the number of registered relationships.
func (m *RelationshipManager) Count() int {
	return m.registry.Len()
}

// Contains reports whether id is registered in this node.
func (m *RelationshipManager) Contains(id entities.Suid) bool {
	return m.registry.Contains(id)
}

// PoolKeys returns the property keys that have members, sorted.
func (m *RelationshipManager) PoolKeys() []string {
	keys := make([]string, 0, len(m.pools))
	for k, members := range m.pools {
		if members.Len() > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// PoolMembers returns the relationship ids of one property key.
func (m *RelationshipManager) PoolMembers(key string) []entities.Suid {
	members, ok := m.pools[key]
	if !ok {
		return nil
	}
	return members.Values()
}

// InPool reports whether id is a member of a transmission pool.
func (m *RelationshipManager) InPool(id entities.Suid) bool {
	_, ok := m.poolOf[id]
	return ok
}

func (m *RelationshipManager) addToPool(rel *entities.Relationship) {
	id := rel.ID()
	if _, ok := m.poolOf[id]; ok {
		return
	}
	key := rel.PropertyKey()
	members, ok := m.pools[key]
	if !ok {
		members = newSparseSet[entities.Suid]()
		m.pools[key] = members
	}
	members.Add(id)
	m.poolOf[id] = key
}

func (m *RelationshipManager) removeFromPool(id entities.Suid) {
	key, ok := m.poolOf[id]
	if !ok {
		return
	}
	if members, ok := m.pools[key]; ok {
		members.Remove(id)
		if members.Len() == 0 {
			delete(m.pools, key)
		}
	}
	delete(m.poolOf, id)
}

// drop removes a record that was terminated through another registry.
func (m *RelationshipManager) drop(id entities.Suid) {
	m.removeFromPool(id)
	if m.registry.Remove(id) {
		m.arena.Release(id)
	}
}
