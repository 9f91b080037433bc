package candidates

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/brianvoe/gofakeit/v7"
)

// DefaultCount is how many names Generate produces when asked for zero.
const DefaultCount = 10

// Generate returns count random full names. A zero seed picks a random one;
// any other seed is reproducible.
func Generate(count int, seed uint64) []string {
	if count <= 0 {
		count = DefaultCount
	}

	faker := gofakeit.New(seed)
	names := make([]string, count)
	for i := range names {
		names[i] = faker.Name()
	}
	return names
}

// WriteFile writes names as a compact JSON array, creating parent
// directories as needed.
func WriteFile(path string, names []string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create candidates directory: %w", err)
		}
	}

	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write candidates file: %w", err)
	}
	return nil
}
