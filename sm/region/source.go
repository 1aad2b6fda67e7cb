package region

//go:generate mockgen -source source.go -destination ./mocks/source.go -package mock_region

// Source obtains and releases the contiguous memory that backs a single pool. A region returned
// from Allocate must not move for as long as it is held, and is handed back to Release exactly once.
type Source interface {
	Allocate(size int) ([]byte, error)
	Release(region []byte) error
}
