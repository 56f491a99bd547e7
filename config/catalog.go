package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"papertrader/internal/engine"
	"papertrader/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Instruments []models.Instrument `yaml:"instruments"`
}

// LoadCatalog reads the instrument catalog from path, or the built-in
// catalog when path is empty.
func LoadCatalog(path string) ([]models.Instrument, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]models.Instrument, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("catalog has no instruments")
	}

	seen := make(map[string]bool, len(f.Instruments))
	for i := range f.Instruments {
		inst := &f.Instruments[i]
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
		if inst.Symbol == "" {
			return nil, fmt.Errorf("catalog entry %d: empty symbol", i)
		}
		if seen[inst.Symbol] {
			return nil, fmt.Errorf("catalog entry %d: duplicate symbol %s", i, inst.Symbol)
		}
		if !engine.ValidPrice(inst.InitialPrice) {
			return nil, fmt.Errorf("catalog entry %s: initial price must be positive and finite", inst.Symbol)
		}
		if inst.DisplayName == "" {
			inst.DisplayName = inst.Symbol
		}
		seen[inst.Symbol] = true
	}
	return f.Instruments, nil
}

// MarshalCatalog renders instruments in the catalog file format.
func MarshalCatalog(instruments []models.Instrument) ([]byte, error) {
	return yaml.Marshal(catalogFile{Instruments: instruments})
}
