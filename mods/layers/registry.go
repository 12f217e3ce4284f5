package layers

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dualview/dualview/mods/capabilities"
	"github.com/dualview/dualview/mods/logging"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	ErrNotFound      = errors.New("layer not found")
	ErrUnknownSource = errors.New("unknown layer source type")
	ErrNotActive     = errors.New("layer is not active")
)

var (
	ingestedCounter  = gometrics.NewRegisteredCounter("layers.ingested", gometrics.DefaultRegistry)
	mergedCounter    = gometrics.NewRegisteredCounter("layers.merged", gometrics.DefaultRegistry)
	unmatchedCounter = gometrics.NewRegisteredCounter("layers.unmatched", gometrics.DefaultRegistry)
)

// SourceOptions describe an ingested document. DefaultOps are laid over
// every descriptor parsed from it.
type SourceOptions struct {
	Type       SourceKind     `json:"type" yaml:"type"`
	URL        string         `json:"url,omitempty" yaml:"url,omitempty"`
	DefaultOps map[string]any `json:"defaultOps,omitempty" yaml:"defaultOps,omitempty"`
	// FillDefaults lays BaseLayerOps beneath the fields of JSON and
	// tileset layers, so only their gaps are filled.
	FillDefaults bool `json:"fillDefaults,omitempty" yaml:"fillDefaults,omitempty"`
}

// MergeResult reports what one MergeLayers pass did.
type MergeResult struct {
	Added      []*Record    `json:"added"`
	Unmatched  []Descriptor `json:"unmatched"`
	Collisions []string     `json:"collisions"`
}

type Registry struct {
	log            logging.Log
	deletePartials bool

	queueMu  sync.Mutex
	partials []Descriptor

	mu        sync.RWMutex
	groups    map[Type]map[string]*Record
	unmatched []Descriptor
}

type Option func(r *Registry)

// WithDeletePartials discards the whole queue after a merge instead of
// keeping the unmatched descriptors for a later pass.
func WithDeletePartials(flag bool) Option {
	return func(r *Registry) { r.deletePartials = flag }
}

func WithLogger(log logging.Log) Option {
	return func(r *Registry) { r.log = log }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		groups: map[Type]map[string]*Record{},
	}
	for _, t := range GroupTypes {
		r.groups[t] = map[string]*Record{}
	}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = logging.GetLog("layers")
	}
	return r
}

// Ingest parses raw and appends the resulting descriptors to the pending
// queue. A document that cannot be parsed contributes nothing; the error
// is logged and returned for information only.
func (r *Registry) Ingest(raw []byte, opts SourceOptions) ([]Descriptor, error) {
	descs, err := Parse(raw, opts)
	if err != nil {
		r.log.Warnf("ingest %s %s, %s", opts.Type, opts.URL, err.Error())
	}
	if len(descs) == 0 {
		return nil, err
	}
	r.queueMu.Lock()
	for _, d := range descs {
		r.partials = append(r.partials, d.Clone())
	}
	r.queueMu.Unlock()
	ingestedCounter.Inc(int64(len(descs)))
	r.log.Debugf("ingest %s %s, %d partials", opts.Type, opts.URL, len(descs))
	return descs, err
}

// Parse turns one document into descriptors without touching any registry.
func Parse(raw []byte, opts SourceOptions) ([]Descriptor, error) {
	kind := opts.Type
	// tileset metadata arrives as json but has its own shape
	if kind == SourceJSON && opts.DefaultOps["handleAs"] == string(HandleAsVector3DTiles) {
		kind = SourceTileset
	}

	var partials []capabilities.Partial
	var err error
	switch kind {
	case SourceJSON:
		layers, err := capabilities.ParseCatalogue(raw)
		ret := make([]Descriptor, 0, len(layers))
		for _, l := range layers {
			if opts.FillDefaults {
				l = mergeDeep(BaseLayerOps(), l)
			}
			ret = append(ret, Descriptor{
				Fields:   mergeDeep(l, opts.DefaultOps),
				Source:   SourceJSON,
				FromJSON: true,
			})
		}
		return ret, err
	case SourceWMTSXML:
		partials, err = capabilities.ParseWMTS(raw)
	case SourceWMSXML:
		partials, err = capabilities.ParseWMS(raw)
	case SourceTileset:
		partials, err = capabilities.ParseTilesetMetadata(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, opts.Type)
	}

	ops := mergeDeep(DefaultLayerOps(kind), opts.DefaultOps)
	ret := make([]Descriptor, 0, len(partials))
	for _, p := range partials {
		fields, ferr := toFields(p)
		if ferr != nil {
			err = errors.Join(err, ferr)
			continue
		}
		if opts.FillDefaults && kind == SourceTileset {
			fields = mergeDeep(BaseLayerOps(), fields)
		}
		ret = append(ret, Descriptor{
			Fields: mergeDeep(fields, ops),
			Source: kind,
		})
	}
	return ret, err
}

// Pending returns a copy of the descriptors waiting to be merged.
func (r *Registry) Pending() []Descriptor {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	ret := make([]Descriptor, len(r.partials))
	for i, d := range r.partials {
		ret[i] = d.Clone()
	}
	return ret
}

// MergeLayers folds everything queued at call time into the registry.
// The last queued descriptor is taken as reference, every queued
// descriptor with the same id is folded onto it, the layer template fills
// the remaining gaps and the result is committed to its (type, id) slot.
// Results without a valid id and type, or whose slot is taken, are
// reported as unmatched and never overwrite a committed record.
func (r *Registry) MergeLayers() MergeResult {
	r.queueMu.Lock()
	queue := r.partials
	r.partials = nil
	r.queueMu.Unlock()

	result := MergeResult{}
	if len(queue) == 0 {
		return result
	}

	r.mu.Lock()
	for len(queue) > 0 {
		ref := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		id := ref.ID()
		merged := ref
		rest := queue[:0:0]
		for _, d := range queue {
			if d.ID() == id {
				merged = foldPartial(merged, d)
			} else {
				rest = append(rest, d)
			}
		}
		queue = rest

		rec, key, err := r.commitLocked(merged)
		switch {
		case err == nil:
			result.Added = append(result.Added, rec.Clone())
		case errors.Is(err, errSlotTaken):
			result.Collisions = append(result.Collisions, key)
			result.Unmatched = append(result.Unmatched, merged)
		default:
			result.Unmatched = append(result.Unmatched, merged)
		}
		if err != nil {
			r.log.Warnf("merge layer %q, %s", id, err.Error())
		}
	}
	for _, t := range GroupTypes {
		reindexLocked(r.activeLocked(t))
	}
	r.unmatched = result.Unmatched
	r.mu.Unlock()

	mergedCounter.Inc(int64(len(result.Added)))
	unmatchedCounter.Inc(int64(len(result.Unmatched)))
	if len(result.Unmatched) > 0 {
		r.log.Warnf("merge layers, %d unmatched of %d", len(result.Unmatched), len(result.Unmatched)+len(result.Added))
	}

	if !r.deletePartials {
		r.queueMu.Lock()
		kept := make([]Descriptor, 0, len(result.Unmatched)+len(r.partials))
		for _, d := range result.Unmatched {
			kept = append(kept, d.Clone())
		}
		r.partials = append(kept, r.partials...)
		r.queueMu.Unlock()
	}
	return result
}

var errSlotTaken = errors.New("slot already taken")

func (r *Registry) commitLocked(merged Descriptor) (*Record, string, error) {
	fields := mergeDeep(layerTemplate(), merged.Fields)
	id := merged.ID()
	typ := merged.Type()
	key := string(typ) + "/" + id
	if id == "" {
		return nil, key, errors.New("missing id")
	}
	group, ok := r.groups[typ]
	if !ok {
		return nil, key, fmt.Errorf("missing or invalid type %q", typ)
	}
	if _, exists := group[id]; exists {
		return nil, key, fmt.Errorf("%w: %s", errSlotTaken, key)
	}
	rec, err := decodeRecord(fields)
	if err != nil {
		return nil, key, err
	}
	group[id] = rec
	return rec, key, nil
}

// Get returns a clone of the record in the (typ, id) slot.
func (r *Registry) Get(typ Type, id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.groups[typ][id]; ok {
		return rec.Clone(), true
	}
	return nil, false
}

// Find looks id up in basemap, data and reference order.
func (r *Registry) Find(id string) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.findLocked(id)
	return rec.Clone(), rec != nil
}

func (r *Registry) findLocked(id string) *Record {
	for _, t := range GroupTypes {
		if rec, ok := r.groups[t][id]; ok {
			return rec
		}
	}
	return nil
}

// List returns the records of typ, or of every group when typ is empty,
// ordered by group, displayIndex and id.
func (r *Registry) List(typ Type) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ret []*Record
	for _, t := range GroupTypes {
		if typ != "" && typ != t {
			continue
		}
		for _, rec := range r.groups[t] {
			ret = append(ret, rec.Clone())
		}
	}
	sortRecords(ret)
	return ret
}

// Active returns the active records of typ bottom first.
func (r *Registry) Active(typ Type) []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ret []*Record
	for _, rec := range r.activeLocked(typ) {
		ret = append(ret, rec.Clone())
	}
	return ret
}

func (r *Registry) activeLocked(typ Type) []*Record {
	var ret []*Record
	for _, rec := range r.groups[typ] {
		if rec.IsActive {
			ret = append(ret, rec)
		}
	}
	sortRecords(ret)
	return ret
}

func sortRecords(list []*Record) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Type.Rank() != b.Type.Rank() {
			return a.Type.Rank() < b.Type.Rank()
		}
		if a.DisplayIndex != b.DisplayIndex {
			return a.DisplayIndex < b.DisplayIndex
		}
		return a.ID < b.ID
	})
}

// reindexLocked numbers the active records of typ 1..n in stack order.
func reindexLocked(active []*Record) {
	for i, rec := range active {
		rec.DisplayIndex = i + 1
	}
}

// SetActive activates or deactivates a layer. A newly activated layer is
// placed on top of its group.
func (r *Registry) SetActive(id string, active bool) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.findLocked(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if rec.IsActive == active {
		return rec.Clone(), nil
	}
	group := r.activeLocked(rec.Type)
	if active {
		rec.IsActive = true
		group = append(group, rec)
	} else {
		rec.IsActive = false
		group = slices.DeleteFunc(group, func(e *Record) bool { return e == rec })
	}
	reindexLocked(group)
	return rec.Clone(), nil
}

// Move reorders an active layer within its group.
func (r *Registry) Move(id string, dir Direction) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.findLocked(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if !rec.IsActive {
		return nil, fmt.Errorf("%w: %q", ErrNotActive, id)
	}
	group := r.activeLocked(rec.Type)
	cur := slices.Index(group, rec)
	target := dir.TargetIndex(cur, 0, len(group)-1)
	if target != cur {
		group = slices.Delete(group, cur, cur+1)
		group = slices.Insert(group, target, rec)
	}
	reindexLocked(group)
	return rec.Clone(), nil
}

func (r *Registry) SetOpacity(id string, opacity float64) (*Record, error) {
	return r.update(id, func(rec *Record) { rec.Opacity = ClampOpacity(opacity) })
}

func (r *Registry) SetSelected(id string, selected bool) (*Record, error) {
	return r.update(id, func(rec *Record) { rec.IsSelected = selected })
}

func (r *Registry) SetDisabled(id string, disabled bool) (*Record, error) {
	return r.update(id, func(rec *Record) { rec.IsDisabled = disabled })
}

func (r *Registry) update(id string, fn func(rec *Record)) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.findLocked(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	fn(rec)
	return rec.Clone(), nil
}

// Unmatched returns the descriptors the last merge could not commit.
func (r *Registry) Unmatched() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]Descriptor, len(r.unmatched))
	for i, d := range r.unmatched {
		ret[i] = d.Clone()
	}
	return ret
}

// ClearSelected unselects every layer of typ, data layers when typ is
// empty, and returns the ones changed.
func (r *Registry) ClearSelected(typ Type) []*Record {
	if typ == "" {
		typ = TypeData
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []*Record
	for _, rec := range r.groups[typ] {
		if rec.IsSelected {
			rec.IsSelected = false
			ret = append(ret, rec.Clone())
		}
	}
	sortRecords(ret)
	return ret
}

// Remove deletes a layer from the registry.
func (r *Registry) Remove(id string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.findLocked(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	ret := rec.Clone()
	delete(r.groups[rec.Type], id)
	if rec.IsActive {
		reindexLocked(r.activeLocked(rec.Type))
	}
	return ret, nil
}

// DefaultBasemap returns the default basemap configured for projection.
func (r *Registry) DefaultBasemap(projection string) (*Record, bool) {
	for _, rec := range r.List(TypeBasemap) {
		if rec.IsDefault && rec.MappingOptions.Projection == projection {
			return rec, true
		}
	}
	return nil, false
}

// Snapshot returns a copy of every committed record by group.
func (r *Registry) Snapshot() map[Type][]*Record {
	ret := map[Type][]*Record{}
	for _, t := range GroupTypes {
		ret[t] = r.List(t)
	}
	return ret
}
