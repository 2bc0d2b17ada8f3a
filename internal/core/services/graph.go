package services

import (
	"fmt"
	"math"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/clock"
	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Ensure DocumentGraph implements the interface.
var _ driving.GraphService = (*DocumentGraph)(nil)

// pageRankKey is the single scheduler key for graph recomputation.
const pageRankKey = "pagerank"

type graphNode struct {
	out map[string]struct{}
	in  map[string]struct{}

	// linkKeys are the normalised targets of this node's links, resolved or not.
	linkKeys []string
}

// importanceSnapshot is an immutable set of published scores.
type importanceSnapshot struct {
	scores     map[string]float64
	raw        map[string]float64
	modified   map[string]time.Time
	computedAt time.Time
}

// GraphOption configures a DocumentGraph.
type GraphOption func(*DocumentGraph)

// WithGraphClock sets the clock used for recomputation timers and timestamps.
func WithGraphClock(c clock.Clock) GraphOption {
	return func(g *DocumentGraph) { g.clock = c }
}

// WithPageRankSettings sets the power iteration parameters.
func WithPageRankSettings(p domain.PageRankSettings) GraphOption {
	return func(g *DocumentGraph) { g.params = p }
}

// WithRecomputeSchedule sets the throttle and debounce for incremental recomputation.
func WithRecomputeSchedule(s domain.SchedulerSettings) GraphOption {
	return func(g *DocumentGraph) { g.schedule = s }
}

// WithRecomputeHook registers a function called after each scheduled recomputation.
func WithRecomputeHook(fn func(domain.PageRankResult)) GraphOption {
	return func(g *DocumentGraph) { g.onRecompute = fn }
}

// DocumentGraph maintains the link graph of the corpus and its PageRank scores.
//
// Mutations update nodes and edges immediately and schedule a recomputation.
// Score reads are lock-free and always see the last published snapshot.
type DocumentGraph struct {
	clock       clock.Clock
	params      domain.PageRankSettings
	schedule    domain.SchedulerSettings
	onRecompute func(domain.PageRankResult)
	scheduler   *UpdateScheduler[string]

	mu       sync.RWMutex
	infos    map[string]domain.DocumentInfo
	nodes    map[string]*graphNode
	resolver *linkResolver
	// linkers maps a normalised link target to the documents linking to it.
	linkers map[string]map[string]struct{}
	dirty   bool

	computeMu sync.Mutex
	published atomic.Pointer[importanceSnapshot]
}

// NewDocumentGraph creates an empty graph.
func NewDocumentGraph(opts ...GraphOption) *DocumentGraph {
	defaults := domain.DefaultSettings()
	g := &DocumentGraph{
		clock:    clock.New(),
		params:   defaults.PageRank,
		schedule: defaults.Scheduler,
		infos:    make(map[string]domain.DocumentInfo),
		nodes:    make(map[string]*graphNode),
		resolver: newLinkResolver(),
		linkers:  make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.scheduler = NewUpdateScheduler(
		"graph", g.clock, g.schedule.Throttle, g.schedule.Debounce,
		func([]string) error {
			res := g.ComputePageRank()
			if g.onRecompute != nil {
				g.onRecompute(res)
			}
			return nil
		},
	)
	g.published.Store(&importanceSnapshot{})
	return g
}

// Build replaces the whole graph with the given documents.
// Every link target is remembered so that a later document can satisfy it,
// or take it over from a weaker match.
func (g *DocumentGraph) Build(docs []domain.DocumentInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.infos = make(map[string]domain.DocumentInfo, len(docs))
	g.nodes = make(map[string]*graphNode, len(docs))
	g.resolver = newLinkResolver()
	g.linkers = make(map[string]map[string]struct{})

	for i := range docs {
		g.infos[docs[i].ID] = docs[i]
		g.nodes[docs[i].ID] = newGraphNode()
		g.resolver.add(docs[i])
	}
	for id := range g.nodes {
		g.resolveLinksLocked(id)
	}
	g.dirty = true
}

// Apply applies a corpus change. info is the new document state and is
// ignored for deletions. Recomputation is scheduled, never run inline.
func (g *DocumentGraph) Apply(event domain.ChangeEvent, info *domain.DocumentInfo) error {
	if event.Type != domain.ChangeDeleted && info == nil {
		return fmt.Errorf("%s event for %s without document: %w", event.Type, event.DocumentID, domain.ErrInvalidInput)
	}

	g.mu.Lock()
	switch event.Type {
	case domain.ChangeCreated:
		g.upsertLocked(*info)
	case domain.ChangeModified:
		g.upsertLocked(*info)
	case domain.ChangeDeleted:
		g.removeLocked(event.DocumentID)
	case domain.ChangeRenamed:
		g.upsertLocked(*info)
		if event.OldID != "" && event.OldID != info.ID {
			g.removeLocked(event.OldID)
		}
	default:
		g.mu.Unlock()
		return fmt.Errorf("change type %d: %w", event.Type, domain.ErrInvalidInput)
	}
	g.dirty = true
	g.mu.Unlock()

	g.scheduler.Schedule(pageRankKey)
	return nil
}

// FlushPending runs a pending scheduled recomputation now.
func (g *DocumentGraph) FlushPending() {
	g.scheduler.Flush()
}

// Close cancels any scheduled recomputation.
func (g *DocumentGraph) Close() {
	g.scheduler.Destroy()
}

// upsertLocked creates or updates a node and re-resolves affected links.
func (g *DocumentGraph) upsertLocked(info domain.DocumentInfo) {
	var affected []string
	if old, ok := g.infos[info.ID]; ok {
		g.resolver.remove(old)
		for src := range g.nodes[info.ID].in {
			affected = append(affected, src)
		}
	} else {
		g.nodes[info.ID] = newGraphNode()
	}
	g.infos[info.ID] = info
	g.resolver.add(info)

	g.resolveLinksLocked(info.ID)
	for _, src := range affected {
		g.resolveLinksLocked(src)
	}

	// Documents linking to any name of this one: dangling links it now
	// satisfies, and links it wins from a lower tier (a title or alias match
	// loses to an id, stem or base name).
	var linking []string
	for _, key := range g.resolver.keysOf(info) {
		for src := range g.linkers[key] {
			linking = append(linking, src)
		}
	}
	for _, src := range linking {
		if _, ok := g.nodes[src]; ok {
			g.resolveLinksLocked(src)
		}
	}
}

// removeLocked deletes a node with back-reference cleanup.
func (g *DocumentGraph) removeLocked(id string) {
	node, ok := g.nodes[id]
	if !ok {
		return
	}
	for dst := range node.out {
		if target, ok := g.nodes[dst]; ok {
			delete(target.in, id)
		}
	}
	g.clearLinkersLocked(id, node)

	g.resolver.remove(g.infos[id])
	delete(g.infos, id)
	delete(g.nodes, id)

	for src := range node.in {
		if _, ok := g.nodes[src]; ok {
			g.resolveLinksLocked(src)
		}
	}
}

// resolveLinksLocked recomputes the outbound edges of one node from its declared links.
func (g *DocumentGraph) resolveLinksLocked(id string) {
	node := g.nodes[id]
	for dst := range node.out {
		if target, ok := g.nodes[dst]; ok {
			delete(target.in, id)
		}
	}
	node.out = make(map[string]struct{})
	g.clearLinkersLocked(id, node)

	for _, link := range g.infos[id].Metadata.Links {
		key := normalizeLinkTarget(link.Target)
		if key == "" {
			continue
		}
		set, exists := g.linkers[key]
		if !exists {
			set = make(map[string]struct{})
			g.linkers[key] = set
		}
		if _, seen := set[id]; !seen {
			set[id] = struct{}{}
			node.linkKeys = append(node.linkKeys, key)
		}

		dst, ok := g.resolver.resolve(key)
		if !ok {
			continue
		}
		if dst == id {
			continue
		}
		node.out[dst] = struct{}{}
		g.nodes[dst].in[id] = struct{}{}
	}
}

func (g *DocumentGraph) clearLinkersLocked(id string, node *graphNode) {
	for _, key := range node.linkKeys {
		if set, ok := g.linkers[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(g.linkers, key)
			}
		}
	}
	node.linkKeys = nil
}

// ComputePageRank runs power iteration over the current graph and publishes
// the result. Readers keep seeing the previous snapshot until it completes.
func (g *DocumentGraph) ComputePageRank() domain.PageRankResult {
	g.computeMu.Lock()
	defer g.computeMu.Unlock()

	g.mu.Lock()
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	inbound := make([][]int, len(ids))
	outDegree := make([]int, len(ids))
	modified := make(map[string]time.Time, len(ids))
	for i, id := range ids {
		node := g.nodes[id]
		outDegree[i] = len(node.out)
		for src := range node.in {
			inbound[i] = append(inbound[i], index[src])
		}
		modified[id] = g.infos[id].ModifiedAt
	}
	g.dirty = false
	g.mu.Unlock()

	raw, res := powerIteration(inbound, outDegree, g.params)

	snap := &importanceSnapshot{
		scores:     make(map[string]float64, len(ids)),
		raw:        make(map[string]float64, len(ids)),
		modified:   modified,
		computedAt: g.clock.Now(),
	}
	maxRaw := 0.0
	for _, s := range raw {
		maxRaw = math.Max(maxRaw, s)
	}
	for i, id := range ids {
		snap.raw[id] = raw[i]
		if maxRaw > 0 {
			snap.scores[id] = raw[i] / maxRaw
		}
	}
	g.published.Store(snap)

	logger.Debug("pagerank: %d nodes, %d iterations, converged=%v, delta=%.2e",
		len(ids), res.Iterations, res.Converged, res.Delta)
	return res
}

// powerIteration computes raw PageRank without redistributing dangling mass:
// new(n) = (1-d)/N + d * sum over m->n of s(m)/out(m).
func powerIteration(inbound [][]int, outDegree []int, p domain.PageRankSettings) ([]float64, domain.PageRankResult) {
	n := len(outDegree)
	if n == 0 {
		return nil, domain.PageRankResult{Converged: true}
	}
	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = domain.DefaultMaxIterations
	}

	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / float64(n)
	}
	base := (1 - p.Damping) / float64(n)

	var res domain.PageRankResult
	for iter := 1; iter <= maxIter; iter++ {
		delta := 0.0
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, src := range inbound[i] {
				sum += scores[src] / float64(outDegree[src])
			}
			next[i] = base + p.Damping*sum
			delta = math.Max(delta, math.Abs(next[i]-scores[i]))
		}
		scores, next = next, scores
		res.Iterations = iter
		res.Delta = delta
		if delta < p.Threshold {
			res.Converged = true
			break
		}
	}
	return scores, res
}

// Score returns the normalised importance of a document in [0,1], 0 if unknown.
func (g *DocumentGraph) Score(id string) float64 {
	return g.published.Load().scores[id]
}

// RawScore returns the un-normalised PageRank of a document.
func (g *DocumentGraph) RawScore(id string) float64 {
	return g.published.Load().raw[id]
}

// ComputedAt returns when the published scores were computed.
func (g *DocumentGraph) ComputedAt() time.Time {
	return g.published.Load().computedAt
}

// Dirty reports whether the graph changed since scores were last published.
func (g *DocumentGraph) Dirty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dirty
}

// Len returns the number of nodes.
func (g *DocumentGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of resolved links.
func (g *DocumentGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := 0
	for _, node := range g.nodes {
		total += len(node.out)
	}
	return total
}

// Info returns the metadata the graph holds for a document.
func (g *DocumentGraph) Info(id string) (domain.DocumentInfo, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	info, ok := g.infos[id]
	return info, ok
}

// Documents returns the metadata of every live document sorted by id.
func (g *DocumentGraph) Documents() []domain.DocumentInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.DocumentInfo, 0, len(g.infos))
	for _, info := range g.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Links returns the sorted outbound and inbound neighbours of a document.
func (g *DocumentGraph) Links(id string) (out, in []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return nil, nil
	}
	return sortedKeys(node.out), sortedKeys(node.in)
}

// Top returns the n highest scored documents, ties broken by id.
func (g *DocumentGraph) Top(n int) []domain.ImportanceScore {
	snap := g.published.Load()

	g.mu.RLock()
	out := make([]domain.ImportanceScore, 0, len(snap.scores))
	for id, score := range snap.scores {
		item := domain.ImportanceScore{DocumentID: id, Score: score, Raw: snap.raw[id]}
		if node, ok := g.nodes[id]; ok {
			item.InLinks = len(node.in)
			item.OutLinks = len(node.out)
		}
		out = append(out, item)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Snapshot returns the published scores in persistable form.
func (g *DocumentGraph) Snapshot() *domain.GraphSnapshot {
	snap := g.published.Load()
	out := &domain.GraphSnapshot{
		Version:    domain.GraphSnapshotVersion,
		ComputedAt: snap.computedAt,
		Entries:    make(map[string]domain.GraphScore, len(snap.scores)),
	}
	for id, score := range snap.scores {
		out.Entries[id] = domain.GraphScore{Score: score, Raw: snap.raw[id], ModifiedAt: snap.modified[id]}
	}
	return out
}

// Restore publishes scores from a persisted snapshot without recomputing.
func (g *DocumentGraph) Restore(s *domain.GraphSnapshot) error {
	if s == nil || s.Version != domain.GraphSnapshotVersion {
		return domain.ErrSnapshotVersion
	}
	snap := &importanceSnapshot{
		scores:     make(map[string]float64, len(s.Entries)),
		raw:        make(map[string]float64, len(s.Entries)),
		modified:   make(map[string]time.Time, len(s.Entries)),
		computedAt: s.ComputedAt,
	}
	for id, e := range s.Entries {
		snap.scores[id] = e.Score
		snap.raw[id] = e.Raw
		snap.modified[id] = e.ModifiedAt
	}
	g.published.Store(snap)

	g.mu.Lock()
	g.dirty = false
	g.mu.Unlock()
	return nil
}

// Validate checks that edges are symmetric and every node has a document.
func (g *DocumentGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) != len(g.infos) {
		return fmt.Errorf("graph has %d nodes for %d documents", len(g.nodes), len(g.infos))
	}
	for id, node := range g.nodes {
		for dst := range node.out {
			target, ok := g.nodes[dst]
			if !ok {
				return fmt.Errorf("edge %s -> %s points at a missing node", id, dst)
			}
			if _, ok := target.in[id]; !ok {
				return fmt.Errorf("edge %s -> %s has no back-reference", id, dst)
			}
		}
		for src := range node.in {
			source, ok := g.nodes[src]
			if !ok {
				return fmt.Errorf("back-reference %s <- %s from a missing node", id, src)
			}
			if _, ok := source.out[id]; !ok {
				return fmt.Errorf("back-reference %s <- %s has no edge", id, src)
			}
		}
	}
	return nil
}

func newGraphNode() *graphNode {
	return &graphNode{
		out: make(map[string]struct{}),
		in:  make(map[string]struct{}),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// normalizeLinkTarget strips fragments and leading path markers and folds case.
func normalizeLinkTarget(target string) string {
	if i := strings.IndexAny(target, "#^"); i >= 0 {
		target = target[:i]
	}
	target = strings.TrimSpace(target)
	target = strings.TrimPrefix(target, "./")
	target = strings.TrimPrefix(target, "/")
	return foldCase(target)
}

// Link resolution tiers, tried in order.
const (
	tierID = iota
	tierStem
	tierBase
	tierTitle
	tierAlias
	tierCount
)

// linkResolver maps normalised link targets to document ids.
type linkResolver struct {
	tiers [tierCount]map[string]map[string]struct{}
}

func newLinkResolver() *linkResolver {
	r := &linkResolver{}
	for i := range r.tiers {
		r.tiers[i] = make(map[string]map[string]struct{})
	}
	return r
}

// tierKeys returns the keys a document is reachable by, per tier.
func tierKeys(info domain.DocumentInfo) [tierCount][]string {
	var keys [tierCount][]string
	id := foldCase(info.ID)
	ext := path.Ext(id)
	stem := strings.TrimSuffix(id, ext)
	base := path.Base(id)

	keys[tierID] = []string{id}
	if stem != id {
		keys[tierStem] = []string{stem}
	}
	keys[tierBase] = []string{base}
	if b := strings.TrimSuffix(base, ext); b != base && b != "" {
		keys[tierBase] = append(keys[tierBase], b)
	}
	if info.Title != "" {
		keys[tierTitle] = []string{foldCase(strings.TrimSpace(info.Title))}
	}
	for _, alias := range info.Metadata.Aliases {
		if a := foldCase(strings.TrimSpace(alias)); a != "" {
			keys[tierAlias] = append(keys[tierAlias], a)
		}
	}
	return keys
}

func (r *linkResolver) keysOf(info domain.DocumentInfo) []string {
	var out []string
	for _, tier := range tierKeys(info) {
		out = append(out, tier...)
	}
	return out
}

func (r *linkResolver) add(info domain.DocumentInfo) {
	for tier, keys := range tierKeys(info) {
		for _, key := range keys {
			set, ok := r.tiers[tier][key]
			if !ok {
				set = make(map[string]struct{})
				r.tiers[tier][key] = set
			}
			set[info.ID] = struct{}{}
		}
	}
}

func (r *linkResolver) remove(info domain.DocumentInfo) {
	for tier, keys := range tierKeys(info) {
		for _, key := range keys {
			if set, ok := r.tiers[tier][key]; ok {
				delete(set, info.ID)
				if len(set) == 0 {
					delete(r.tiers[tier], key)
				}
			}
		}
	}
}

// resolve returns the document a normalised target points at. Within a tier
// the lexicographically smallest id wins.
func (r *linkResolver) resolve(key string) (string, bool) {
	for tier := range r.tiers {
		set, ok := r.tiers[tier][key]
		if !ok || len(set) == 0 {
			continue
		}
		best := ""
		for id := range set {
			if best == "" || id < best {
				best = id
			}
		}
		return best, true
	}
	return "", false
}
