package bench

import "fmt"

const (
	// MinItemSize is the smallest item size the form accepts.
	MinItemSize = 1024
	// MinChunkSize is the smallest chunk size the form accepts.
	MinChunkSize = 1024

	DefaultItemSize       = 32 * 1024
	DefaultChunkSize      = 25 * 1024
	DefaultMaxTotalChunks = 5000
	DefaultNumItems       = 1
)

// Form holds the user-adjustable benchmark parameters.
type Form struct {
	ItemSize       int
	ChunkSize      int
	MaxTotalChunks int
	NumItems       int
}

// DefaultForm returns the form defaults.
func DefaultForm() Form {
	return Form{
		ItemSize:       DefaultItemSize,
		ChunkSize:      DefaultChunkSize,
		MaxTotalChunks: DefaultMaxTotalChunks,
		NumItems:       DefaultNumItems,
	}
}

// Validate reports the first out-of-range field.
func (f Form) Validate() error {
	switch {
	case f.ItemSize < MinItemSize:
		return fmt.Errorf("bench: item size %d is below %d bytes", f.ItemSize, MinItemSize)
	case f.ChunkSize < MinChunkSize:
		return fmt.Errorf("bench: chunk size %d is below %d bytes", f.ChunkSize, MinChunkSize)
	case f.MaxTotalChunks < 1:
		return fmt.Errorf("bench: max total chunks must be at least 1, got %d", f.MaxTotalChunks)
	case f.NumItems < 1:
		return fmt.Errorf("bench: number of items must be at least 1, got %d", f.NumItems)
	}
	return nil
}

// ChunksPerItem returns how many chunks one item of the form occupies.
func (f Form) ChunksPerItem() int {
	if f.ChunkSize <= 0 {
		return 0
	}
	return (f.ItemSize + f.ChunkSize - 1) / f.ChunkSize
}
