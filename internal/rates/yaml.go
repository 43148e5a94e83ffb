package rates

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Simplici0/dtf.works/internal/pricing"
)

// DecodeYAML reads a price sheet. Keys missing from the document keep their
// default values; unknown keys are rejected.
func DecodeYAML(r io.Reader) (pricing.Settings, error) {
	out := pricing.DefaultSettings()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return pricing.Settings{}, errors.New("decode price sheet: document is empty")
		}
		return pricing.Settings{}, fmt.Errorf("decode price sheet: %w", err)
	}
	if err := out.Validate(); err != nil {
		return pricing.Settings{}, fmt.Errorf("validate price sheet: %w", err)
	}
	return out, nil
}

// LoadFile reads a YAML price sheet from path.
func LoadFile(path string) (pricing.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return pricing.Settings{}, fmt.Errorf("open price sheet: %w", err)
	}
	defer f.Close()
	return DecodeYAML(f)
}

// EncodeYAML writes s as a YAML document.
func EncodeYAML(w io.Writer, s pricing.Settings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode price sheet: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush price sheet: %w", err)
	}
	return nil
}
