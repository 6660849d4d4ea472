package poll

// RetryBudget counts consecutive failed status queries. Any successful query
// resets it to its maximum.
type RetryBudget struct {
	max  int
	left int
}

// NewRetryBudget returns a full budget of max consecutive failures.
func NewRetryBudget(max int) *RetryBudget {
	if max < 1 {
		max = 1
	}
	return &RetryBudget{max: max, left: max}
}

// Consume records one failure and returns the failures still tolerated.
// exhausted is true once the budget has reached zero.
func (b *RetryBudget) Consume() (left int, exhausted bool) {
	if b.left > 0 {
		b.left--
	}
	return b.left, b.left == 0
}

// Reset restores the budget after a successful query.
func (b *RetryBudget) Reset() { b.left = b.max }

// Left returns the number of failures still tolerated.
func (b *RetryBudget) Left() int { return b.left }

// Used returns the number of consecutive failures recorded since the last reset.
func (b *RetryBudget) Used() int { return b.max - b.left }
