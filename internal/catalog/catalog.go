// Package catalog provides the read-only career, question bank and learning
// resource tables. The tables are loaded once at startup and never mutated.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/ashureev/skill-worlds/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

type document struct {
	Careers   []domain.Career           `yaml:"careers"`
	Tests     []domain.Test             `yaml:"tests"`
	Resources []domain.LearningResource `yaml:"resources"`
}

// Catalog holds the static data keyed by career id.
type Catalog struct {
	careers     []domain.Career
	byID        map[string]domain.Career
	tests       map[string]domain.Test
	resources   map[string][]domain.LearningResource
	resourceIDs map[string]domain.LearningResource
}

// Default parses the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// Load parses the catalog at path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		careers:     doc.Careers,
		byID:        make(map[string]domain.Career, len(doc.Careers)),
		tests:       make(map[string]domain.Test, len(doc.Tests)),
		resources:   make(map[string][]domain.LearningResource),
		resourceIDs: make(map[string]domain.LearningResource, len(doc.Resources)),
	}

	if len(doc.Careers) < 2 {
		return nil, errors.New("catalog: at least two careers are required")
	}
	for _, career := range doc.Careers {
		if career.ID == "" {
			return nil, errors.New("catalog: career with empty id")
		}
		if _, dup := c.byID[career.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate career %q", career.ID)
		}
		c.byID[career.ID] = career
	}

	for _, test := range doc.Tests {
		if err := validateTest(test); err != nil {
			return nil, err
		}
		if _, ok := c.byID[test.CareerID]; !ok {
			return nil, fmt.Errorf("catalog: test %q references unknown career %q", test.ID, test.CareerID)
		}
		if _, dup := c.tests[test.CareerID]; dup {
			return nil, fmt.Errorf("catalog: career %q has more than one test", test.CareerID)
		}
		c.tests[test.CareerID] = test
	}

	for _, res := range doc.Resources {
		if _, ok := c.byID[res.CareerID]; !ok {
			return nil, fmt.Errorf("catalog: resource %q references unknown career %q", res.ID, res.CareerID)
		}
		if !res.Type.Valid() {
			return nil, fmt.Errorf("catalog: resource %q has unknown type %q", res.ID, res.Type)
		}
		if _, dup := c.resourceIDs[res.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate resource %q", res.ID)
		}
		c.resourceIDs[res.ID] = res
		c.resources[res.CareerID] = append(c.resources[res.CareerID], res)
	}

	return c, nil
}

func validateTest(test domain.Test) error {
	if len(test.Questions) == 0 {
		return fmt.Errorf("catalog: test %q has no questions", test.ID)
	}
	seen := make(map[string]bool, len(test.Questions))
	for _, q := range test.Questions {
		if seen[q.ID] {
			return fmt.Errorf("catalog: test %q repeats question %q", test.ID, q.ID)
		}
		seen[q.ID] = true
		if len(q.Options) < 2 {
			return fmt.Errorf("catalog: question %q needs at least two options", q.ID)
		}
		if !q.HasOption(q.CorrectAnswer) {
			return fmt.Errorf("catalog: question %q correct answer is not an option", q.ID)
		}
	}
	return nil
}

// Careers returns all careers in catalog order.
func (c *Catalog) Careers() []domain.Career {
	out := make([]domain.Career, len(c.careers))
	copy(out, c.careers)
	return out
}

// Career looks up a career by id.
func (c *Catalog) Career(id string) (domain.Career, bool) {
	career, ok := c.byID[id]
	return career, ok
}

// Test returns the question bank for a career.
func (c *Catalog) Test(careerID string) (domain.Test, bool) {
	test, ok := c.tests[careerID]
	return test, ok
}

// Resources returns the learning resources recommended for a career.
func (c *Catalog) Resources(careerID string) []domain.LearningResource {
	return append([]domain.LearningResource(nil), c.resources[careerID]...)
}

// Resource looks up a learning resource by id.
func (c *Catalog) Resource(id string) (domain.LearningResource, bool) {
	res, ok := c.resourceIDs[id]
	return res, ok
}
