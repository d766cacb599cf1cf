package payload

import "strings"

// Resolve walks a dot-separated path through nested mappings. Only mapping
// traversal is supported: a segment never indexes into a sequence. Absence is
// reported with ok == false and is not an error.
func Resolve(tree Value, path string) (Value, bool) {
	cur := tree
	for _, seg := range strings.Split(path, ".") {
		next, ok := cur.Get(seg)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}
