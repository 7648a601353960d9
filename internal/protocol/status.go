package protocol

// Integer status ABI for callers without native error values.
const (
	StatusOK    = 0
	StatusError = -1
	StatusEOF   = -2
)

// Status folds a (count, error) result into the integer ABI: a non-negative
// count on success, StatusEOF at end of stream, StatusError otherwise.
func Status(n int, err error) int {
	if err == nil {
		if n < 0 {
			return StatusOK
		}
		return n
	}
	if KindOf(err) == KindEOF {
		return StatusEOF
	}
	return StatusError
}
