package plan

// next is the splitmix64 step: pure state-in, value+state-out. Everything
// random in the core flows through it so a draw sequence is a function of
// the seed alone.
func next(state uint64) (uint64, uint64) {
	state += 0x9e3779b97f4a7c15
	z := state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31), state
}

// Rand is a seedable deterministic generator over next. The zero value is
// usable but every entity should get its own stream via NewStream.
type Rand struct {
	state uint64
}

// NewRand starts a generator at an explicit state. Passing a state captured
// with State resumes the stream exactly where it left off.
func NewRand(state uint64) *Rand {
	return &Rand{state: state}
}

// NewStream derives an independent stream from a shared seed and an entity
// ordinal, so entities never consume each other's draws.
func NewStream(seed int64, ordinal uint64) *Rand {
	v := uint64(seed) ^ ((ordinal + 1) * 0xbf58476d1ce4e5b9)
	z := (v ^ (v >> 30)) * 0x94d049bb133111eb
	return &Rand{state: z ^ (z >> 27)}
}

func (r *Rand) Uint64() uint64 {
	v, s := next(r.state)
	r.state = s
	return v
}

// Float64 returns a uniform value in [0,1) with a billion buckets, the same
// resolution the weighted pick uses.
func (r *Rand) Float64() float64 {
	return float64(r.Uint64()%1_000_000_000) / 1_000_000_000.0
}

// IntN returns a uniform int in [0,n). n <= 0 yields 0.
func (r *Rand) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Range returns a uniform value in [min,max].
func (r *Rand) Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + (max-min)*r.Float64()
}

// State exposes the current stream position for snapshot persistence.
func (r *Rand) State() uint64 {
	return r.state
}
