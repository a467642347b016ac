package minimise

// AliasTable records, for every entry of a minimised table, the original
// entry indices it stands for. Each original index appears under exactly
// one surviving entry; lists are in ascending original order.
type AliasTable struct {
	start []int32 // start[i]..start[i+1] bounds entry i's slice of idx
	idx   []int32
	owner []int32 // owner[o] = surviving entry holding original o
}

// Identity is the alias table of a table nothing was merged in.
func Identity(n int) *AliasTable {
	a := &AliasTable{start: make([]int32, n+1), idx: make([]int32, n), owner: make([]int32, n)}
	for i := 0; i < n; i++ {
		a.start[i+1] = int32(i + 1)
		a.idx[i] = int32(i)
		a.owner[i] = int32(i)
	}
	return a
}

// Len is the number of surviving entries.
func (a *AliasTable) Len() int { return len(a.start) - 1 }

// Originals is the number of original entries covered.
func (a *AliasTable) Originals() int { return len(a.idx) }

// Of returns the original indices surviving entry i subsumes. The slice
// aliases the table.
func (a *AliasTable) Of(i int) []int32 { return a.idx[a.start[i]:a.start[i+1]] }

// Owner returns the surviving entry that original index o was folded into.
func (a *AliasTable) Owner(o int) int { return int(a.owner[o]) }
