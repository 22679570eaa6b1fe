package derive

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// RatioSpec is a user-supplied ratio definition loaded from YAML. Custom
// variables cover the long tail of study-specific ratios without code
// changes; numerator and denominator may name raw fields or other derived
// variables.
type RatioSpec struct {
	Name        string `yaml:"name"`
	Numerator   string `yaml:"numerator"`
	Denominator string `yaml:"denominator"`
	Citation    string `yaml:"citation"`
}

// specFile is the YAML document shape.
type specFile struct {
	Variables []RatioSpec `yaml:"variables"`
}

// LoadSpecs parses ratio definitions from YAML.
func LoadSpecs(r io.Reader) ([]Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "derive: read variable specs")
	}
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "derive: parse variable specs")
	}

	defs := make([]Definition, 0, len(f.Variables))
	for _, s := range f.Variables {
		if s.Name == "" || s.Numerator == "" || s.Denominator == "" {
			return nil, eris.Errorf("derive: variable spec %q needs name, numerator, and denominator", s.Name)
		}
		num, den := s.Numerator, s.Denominator
		defs = append(defs, Definition{
			Name:     s.Name,
			Inputs:   []string{num, den},
			Citation: s.Citation,
			Compute: func(in map[string]float64) (float64, bool) {
				if in[den] == 0 {
					return 0, false
				}
				return in[num] / in[den], true
			},
		})
	}
	return defs, nil
}

// LoadSpecsFile parses ratio definitions from a YAML file.
func LoadSpecsFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "derive: open variable specs %s", path)
	}
	defer f.Close()
	return LoadSpecs(f)
}
