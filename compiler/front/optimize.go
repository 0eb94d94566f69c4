package front

import (
	"github.com/eliminmax/eambfc-sub000/compiler/ir"
)

// Static knowledge about the current cell while scanning for dead loops.
const (
	stUnknown = iota
	stZeroAll // nothing written yet: every cell still holds zero
	stZero    // current cell known zero
)

// deadLoops removes loops opening on a cell that is statically known
// zero: at program start and right after any loop close, until a Read or
// cell write invalidates that. Removing a loop can make formerly
// separated records adjacent, so the boundary is re-merged and the scan
// restarted; the cell stays known-zero since the loop never ran.
func deadLoops(ops []ir.Op) []ir.Op {
	for {
		i, ok := findDead(ops)
		if !ok {
			break
		}

		j := matchClose(ops, i)

		ops = append(ops[:i], ops[j+1:]...)
		ops = remerge(ops, i)
	}

	return ops
}

func findDead(ops []ir.Op) (int, bool) {
	st := stZeroAll

	for i, op := range ops {
		switch op := op.(type) {
		case ir.Add:
			st = stUnknown
		case ir.Set:
			if op.V == 0 {
				st = stZero
			} else {
				st = stUnknown
			}
		case ir.Right:
			if st == stZero {
				st = stUnknown
			}
		case ir.Read:
			st = stUnknown
		case ir.Write:
		case ir.Open:
			if st == stZeroAll || st == stZero {
				return i, true
			}

			st = stUnknown
		case ir.Close:
			st = stZero
		default:
			panic(op)
		}
	}

	return 0, false
}

// matchClose finds the close matching the open at i. The balance check
// already passed, so a missing match is a contract violation.
func matchClose(ops []ir.Op, i int) int {
	depth := 0

	for j := i; j < len(ops); j++ {
		switch ops[j].(type) {
		case ir.Open:
			depth++
		case ir.Close:
			depth--

			if depth == 0 {
				return j
			}
		}
	}

	panic("unbalanced ir")
}

// remerge joins the records on both sides of a removed loop. A pair
// cancelling to zero is dropped, which exposes the next pair outward.
func remerge(ops []ir.Op, i int) []ir.Op {
	for i > 0 && i < len(ops) {
		if a, ok := ops[i-1].(ir.Add); ok {
			if b, ok := ops[i].(ir.Add); ok {
				n := a.N + b.N
				if n == 0 {
					ops = append(ops[:i-1], ops[i+1:]...)
					i--

					continue
				}

				a.N = n
				a.End = b.End

				ops[i-1] = a
				ops = append(ops[:i], ops[i+1:]...)

				continue
			}
		}

		if a, ok := ops[i-1].(ir.Right); ok {
			if b, ok := ops[i].(ir.Right); ok {
				n := a.N + b.N
				if n == 0 {
					ops = append(ops[:i-1], ops[i+1:]...)
					i--

					continue
				}

				a.N = n
				a.End = b.End

				ops[i-1] = a
				ops = append(ops[:i], ops[i+1:]...)

				continue
			}
		}

		break
	}

	return ops
}

// fuseSet rewrites [ Add(odd) ] into Set(0): an odd step walks the cell
// through every residue mod 256, so the loop always terminates at zero.
// An Add right after is absorbed into the set value.
func fuseSet(ops []ir.Op) []ir.Op {
	out := make([]ir.Op, 0, len(ops))

	for i := 0; i < len(ops); i++ {
		open, ok := ops[i].(ir.Open)
		if !ok || i+2 >= len(ops) {
			out = append(out, ops[i])
			continue
		}

		add, ok := ops[i+1].(ir.Add)
		if !ok || add.N%2 == 0 {
			out = append(out, ops[i])
			continue
		}

		cl, ok := ops[i+2].(ir.Close)
		if !ok {
			out = append(out, ops[i])
			continue
		}

		sp := open.Span
		sp.End = cl.End

		v := byte(0)
		i += 2

		if i+1 < len(ops) {
			if nx, ok := ops[i+1].(ir.Add); ok {
				v = nx.N
				sp.End = nx.End
				i++
			}
		}

		out = append(out, ir.Set{Span: sp, V: v})
	}

	return out
}

// trimTail drops records after the last read, write or loop close; they
// only touch the tape and nothing observes the tape after that point.
func trimTail(ops []ir.Op) []ir.Op {
	last := -1

	for i, op := range ops {
		switch op.(type) {
		case ir.Read, ir.Write, ir.Close:
			last = i
		}
	}

	return ops[:last+1]
}

// signs rewrites records whose count is negative under signed
// interpretation into the opposite tag with the absolute magnitude;
// backends expose unsigned-magnitude primitives only.
func signs(ops []ir.Op) []ir.Op {
	for i, op := range ops {
		switch op := op.(type) {
		case ir.Add:
			if int8(op.N) < 0 {
				ops[i] = ir.Sub{Span: op.Span, N: -op.N}
			}
		case ir.Right:
			if op.N < 0 {
				ops[i] = ir.Left{Span: op.Span, N: -op.N}
			}
		}
	}

	return ops
}
