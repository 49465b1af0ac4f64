package siopm

// pipeID names the buffers an operator can read from or write to inside
// a channel. They are resolved to cursors at the start of every Buffer.
type pipeID int

const (
	pipeZero pipeID = iota
	pipeSink
	pipeIn
	pipe0
	pipe1
	pipeOut
	pipeBase
)

func (p pipeID) String() string {
	return [...]string{"zero", "sink", "in", "pipe0", "pipe1", "out", "base"}[p]
}

// connection is the wiring of one operator.
type connection struct {
	in, out, base pipeID
	final         bool
}

type algorithm []connection

// mod writes a private pipe.
func mod(in, out pipeID) connection { return connection{in: in, out: out, base: pipeZero} }

// modAdd adds into a private pipe.
func modAdd(in, out pipeID) connection { return connection{in: in, out: out, base: out} }

// car is the first carrier.
func car(in pipeID) connection { return connection{in: in, out: pipeOut, base: pipeBase, final: true} }

// carAdd is a carrier summed onto an earlier one.
func carAdd(in pipeID) connection {
	return connection{in: in, out: pipeOut, base: pipeOut, final: true}
}

var algorithms1 = []algorithm{
	{car(pipeIn)},
}

var algorithms2 = []algorithm{
	// 1>2
	{mod(pipeIn, pipe0), car(pipe0)},
	// 1+2
	{car(pipeIn), carAdd(pipeZero)},
}

var algorithms3 = []algorithm{
	// 1>2>3
	{mod(pipeIn, pipe0), mod(pipe0, pipe0), car(pipe0)},
	// (1+2)>3
	{mod(pipeIn, pipe0), modAdd(pipeZero, pipe0), car(pipe0)},
	// 1+(2>3)
	{car(pipeIn), mod(pipeZero, pipe0), carAdd(pipe0)},
	// (1>2)+3
	{mod(pipeIn, pipe0), car(pipe0), carAdd(pipeZero)},
	// 1>(2+3)
	{mod(pipeIn, pipe0), car(pipe0), carAdd(pipe0)},
	// 1+2+3
	{car(pipeIn), carAdd(pipeZero), carAdd(pipeZero)},
}

var algorithms4 = []algorithm{
	// 1>2>3>4
	{mod(pipeIn, pipe0), mod(pipe0, pipe0), mod(pipe0, pipe0), car(pipe0)},
	// (1+2)>3>4
	{mod(pipeIn, pipe0), modAdd(pipeZero, pipe0), mod(pipe0, pipe0), car(pipe0)},
	// (1+(2>3))>4
	{mod(pipeIn, pipe0), mod(pipeZero, pipe1), modAdd(pipe1, pipe0), car(pipe0)},
	// ((1>2)+3)>4
	{mod(pipeIn, pipe0), mod(pipe0, pipe1), modAdd(pipeZero, pipe1), car(pipe1)},
	// (1>2)+(3>4)
	{mod(pipeIn, pipe0), car(pipe0), mod(pipeZero, pipe1), carAdd(pipe1)},
	// 1>(2+3+4)
	{mod(pipeIn, pipe0), car(pipe0), carAdd(pipe0), carAdd(pipe0)},
	// (1>2)+3+4
	{mod(pipeIn, pipe0), car(pipe0), carAdd(pipeZero), carAdd(pipeZero)},
	// 1+2+3+4
	{car(pipeIn), carAdd(pipeZero), carAdd(pipeZero), carAdd(pipeZero)},
	// (1>2>3)+4
	{mod(pipeIn, pipe0), mod(pipe0, pipe0), car(pipe0), carAdd(pipeZero)},
	// 1+(2>3>4)
	{car(pipeIn), mod(pipeZero, pipe0), mod(pipe0, pipe0), carAdd(pipe0)},
	// 1+(2>3)+4
	{car(pipeIn), mod(pipeZero, pipe0), carAdd(pipe0), carAdd(pipeZero)},
	// 1>(2+3)>4
	{mod(pipeIn, pipe0), mod(pipe0, pipe1), modAdd(pipe0, pipe1), car(pipe1)},
	// (1+2+3)>4
	{mod(pipeIn, pipe0), modAdd(pipeZero, pipe0), modAdd(pipeZero, pipe0), car(pipe0)},
}

// algorithmSpecial wires the two-operator special modes: the first
// operator carries the channel envelope and output, the second only
// supplies phase or wave.
var algorithmSpecial = algorithm{car(pipeIn), {in: pipeZero, out: pipeSink, base: pipeZero}}

// algorithmTable returns the wiring table for an operator count.
func algorithmTable(opCount int) []algorithm {
	switch opCount {
	case 1:
		return algorithms1
	case 2:
		return algorithms2
	case 3:
		return algorithms3
	case 4:
		return algorithms4
	}
	return nil
}

// AlgorithmCount returns the number of algorithms for an operator count.
func AlgorithmCount(opCount int) int { return len(algorithmTable(opCount)) }

// opmSlotOrder maps OPM register slots (M1, M2, C1, C2) to operators.
var opmSlotOrder = [4]int{0, 2, 1, 3}
