package machine

import (
	"hash/fnv"

	"github.com/dolthub/swiss"
)

// interner deduplicates String objects by content so that two script values
// with the same text are always the same pointer, letting Value.Equal (and
// the IS/IS_NOT opcodes) compare strings by identity rather than content.
// Backed by the same swiss.Map the globals table uses.
type interner struct {
	strings *swiss.Map[string, *String]
}

func newInterner() *interner {
	return &interner{strings: swiss.NewMap[string, *String](64)}
}

func fnv1a(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// intern returns the canonical String object for s, allocating and
// registering one through alloc if none exists yet.
func (in *interner) intern(s string, alloc func(s string, hash uint32) *String) *String {
	if existing, ok := in.strings.Get(s); ok {
		return existing
	}
	str := alloc(s, fnv1a(s))
	in.strings.Put(s, str)
	return str
}

// sweep drops interned entries whose String object did not survive the
// collector's mark phase, run before the general object sweep so the
// dangling entries never point at a String the sweep is about to free.
func (in *interner) sweep() {
	var dead []string
	it := in.strings.Iterator()
	for it.Next() {
		k, v := it.Pair()
		if v.isMarked() {
			continue
		}
		dead = append(dead, k)
	}
	for _, k := range dead {
		in.strings.Delete(k)
	}
}

func (in *interner) count() int { return in.strings.Count() }
