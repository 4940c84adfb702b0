package scenario

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spachava753/convergence/internal/config"
	"github.com/spachava753/convergence/internal/models"
)

// Load resolves scenario references into validated specs, in order. Relative
// paths are taken relative to baseDir.
func Load(g *Generator, refs []models.ScenarioRef, baseDir string) ([]models.ScenarioSpec, error) {
	specs := make([]models.ScenarioSpec, 0, len(refs))
	seen := make(map[string]bool)

	for i, ref := range refs {
		var spec models.ScenarioSpec
		switch {
		case ref.Builtin != "":
			s, ok := Builtin(ref.Builtin)
			if !ok {
				return nil, fmt.Errorf("scenarios[%d]: unknown built-in scenario %q", i, ref.Builtin)
			}
			spec = s
		case ref.Path != "":
			p := ref.Path
			if !filepath.IsAbs(p) && baseDir != "" {
				p = filepath.Join(baseDir, p)
			}
			s, err := config.LoadScenarioConfig(os.DirFS(filepath.Dir(p)), filepath.Base(p))
			if err != nil {
				return nil, fmt.Errorf("scenarios[%d]: %w", i, err)
			}
			spec = s
		default:
			return nil, fmt.Errorf("scenarios[%d]: must specify either 'builtin' or 'path'", i)
		}

		resolved, err := g.Resolve(spec)
		if err != nil {
			return nil, fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		if seen[resolved.Name] {
			return nil, fmt.Errorf("scenarios[%d]: duplicate scenario name %q", i, resolved.Name)
		}
		seen[resolved.Name] = true
		specs = append(specs, resolved)
	}
	return specs, nil
}
