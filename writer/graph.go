package writer

import (
	"sort"

	"github.com/wudi/pdfcodec/ir/raw"
)

// maxGen is the generation at which an object number is retired for good.
const maxGen = 65535

// Graph is the object table a writer serializes. Objects assigned through
// Add, Set and Delete are tracked for incremental updates; filling Objects
// directly, as a loader does, leaves them clean.
type Graph struct {
	Objects map[raw.ObjectRef]raw.Object
	Trailer *raw.DictObj
	Version PDFVersion
	// Freed maps deleted object numbers to the generation a reuse must carry.
	Freed map[int]int
	// Reserved is the object count of a lazily loaded source: numbers below
	// it may belong to objects not yet in Objects and are never handed out.
	Reserved int

	changed map[raw.ObjectRef]bool
	deleted map[int]bool
}

func NewGraph() *Graph {
	return &Graph{
		Objects: make(map[raw.ObjectRef]raw.Object),
		Trailer: raw.Dict(),
		Freed:   make(map[int]int),
	}
}

func (g *Graph) init() {
	if g.Objects == nil {
		g.Objects = make(map[raw.ObjectRef]raw.Object)
	}
	if g.Freed == nil {
		g.Freed = make(map[int]int)
	}
	if g.changed == nil {
		g.changed = make(map[raw.ObjectRef]bool)
	}
	if g.deleted == nil {
		g.deleted = make(map[int]bool)
	}
	if g.Trailer == nil {
		g.Trailer = raw.Dict()
	}
}

// Add stores obj under a new identifier. The lowest freed number is reused
// with its bumped generation; otherwise the number after the highest in use.
func (g *Graph) Add(obj raw.Object) raw.ObjectRef {
	g.init()
	ref := raw.ObjectRef{Num: g.MaxNum() + 1}
	reuse := -1
	for num, gen := range g.Freed {
		if gen >= maxGen {
			continue
		}
		if reuse < 0 || num < reuse {
			reuse = num
		}
	}
	if reuse > 0 {
		ref = raw.ObjectRef{Num: reuse, Gen: g.Freed[reuse]}
		delete(g.Freed, reuse)
		delete(g.deleted, reuse)
	}
	g.Objects[ref] = obj
	g.changed[ref] = true
	return ref
}

// Set replaces the object at ref, or creates it.
func (g *Graph) Set(ref raw.ObjectRef, obj raw.Object) {
	g.init()
	g.Objects[ref] = obj
	g.changed[ref] = true
	delete(g.Freed, ref.Num)
	delete(g.deleted, ref.Num)
}

// Get returns the object stored under ref.
func (g *Graph) Get(ref raw.ObjectRef) (raw.Object, bool) {
	obj, ok := g.Objects[ref]
	return obj, ok
}

// Delete frees ref. Its number may be reused with the next generation.
func (g *Graph) Delete(ref raw.ObjectRef) bool {
	g.init()
	if _, ok := g.Objects[ref]; !ok {
		return false
	}
	delete(g.Objects, ref)
	delete(g.changed, ref)
	gen := ref.Gen + 1
	if gen > maxGen {
		gen = maxGen
	}
	g.Freed[ref.Num] = gen
	g.deleted[ref.Num] = true
	return true
}

// MaxNum is the highest object number in use, freed or reserved.
func (g *Graph) MaxNum() int {
	max := 0
	for ref := range g.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	for num := range g.Freed {
		if num > max {
			max = num
		}
	}
	if g.Reserved-1 > max {
		max = g.Reserved - 1
	}
	return max
}

// Refs returns the identifiers of all objects in object-number order.
func (g *Graph) Refs() []raw.ObjectRef {
	refs := make([]raw.ObjectRef, 0, len(g.Objects))
	for ref := range g.Objects {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs
}

// Changed returns objects stored through Add or Set since the last MarkClean.
func (g *Graph) Changed() []raw.ObjectRef {
	var refs []raw.ObjectRef
	for ref := range g.changed {
		if _, ok := g.Objects[ref]; ok {
			refs = append(refs, ref)
		}
	}
	sortRefs(refs)
	return refs
}

// Deleted returns numbers freed since the last MarkClean.
func (g *Graph) Deleted() []int {
	var nums []int
	for num := range g.deleted {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	return nums
}

// Dirty reports whether there is anything to append.
func (g *Graph) Dirty() bool { return len(g.changed) > 0 || len(g.deleted) > 0 }

// MarkClean forgets tracked changes, typically after a save.
func (g *Graph) MarkClean() {
	g.changed = make(map[raw.ObjectRef]bool)
	g.deleted = make(map[int]bool)
}

func sortRefs(refs []raw.ObjectRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
}
