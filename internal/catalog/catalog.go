// Package catalog holds the static course/semester to Drive folder mapping
// that drives the upload flow and validates enrollment tokens.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// semesterTokens is the fixed set of recognized semester identifiers.
var semesterTokens = []string{"SEM1", "SEM2", "SEM3", "SEM4", "SEM5", "SEM6", "SEM7", "SEM8"}

type fileFormat struct {
	Courses []struct {
		Name      string            `yaml:"name"`
		Semesters map[string]string `yaml:"semesters"`
	} `yaml:"courses"`
}

// Catalog maps course -> semester -> destination folder id.
type Catalog struct {
	order   []string
	courses map[string]map[string]string
}

// Load reads the catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Catalog from YAML bytes and validates every entry.
func Parse(data []byte) (*Catalog, error) {
	var raw fileFormat
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(raw.Courses) == 0 {
		return nil, fmt.Errorf("catalog defines no courses")
	}

	c := &Catalog{courses: make(map[string]map[string]string, len(raw.Courses))}
	for _, course := range raw.Courses {
		name := strings.ToUpper(strings.TrimSpace(course.Name))
		if name == "" {
			return nil, fmt.Errorf("catalog course with empty name")
		}
		if _, dup := c.courses[name]; dup {
			return nil, fmt.Errorf("catalog course %s listed twice", name)
		}
		if len(course.Semesters) == 0 {
			return nil, fmt.Errorf("catalog course %s has no semesters", name)
		}
		sems := make(map[string]string, len(course.Semesters))
		for sem, folderID := range course.Semesters {
			token := strings.ToUpper(strings.TrimSpace(sem))
			if !isSemesterToken(token) {
				return nil, fmt.Errorf("catalog course %s: invalid semester %q", name, sem)
			}
			if strings.TrimSpace(folderID) == "" {
				return nil, fmt.Errorf("catalog course %s semester %s: empty folder id", name, token)
			}
			sems[token] = strings.TrimSpace(folderID)
		}
		c.order = append(c.order, name)
		c.courses[name] = sems
	}
	return c, nil
}

// Courses returns the course tokens in catalog order.
func (c *Catalog) Courses() []string {
	return append([]string(nil), c.order...)
}

// Semesters returns the valid semester tokens for a course, in SEM order.
func (c *Catalog) Semesters(course string) ([]string, bool) {
	sems, ok := c.courses[normalizeToken(course)]
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(sems))
	for sem := range sems {
		out = append(out, sem)
	}
	sort.Strings(out)
	return out, true
}

// FolderID resolves the destination folder for a course+semester pair.
func (c *Catalog) FolderID(course, semester string) (string, bool) {
	sems, ok := c.courses[normalizeToken(course)]
	if !ok {
		return "", false
	}
	id, ok := sems[normalizeToken(semester)]
	return id, ok
}

// NormalizeCourse validates a course token against the catalog,
// accepting an optional leading slash and any letter case.
func (c *Catalog) NormalizeCourse(token string) (string, bool) {
	normalized := normalizeToken(token)
	_, ok := c.courses[normalized]
	if !ok {
		return "", false
	}
	return normalized, true
}

// NormalizeSemester validates a semester token against the fixed SEM1..SEM8 set,
// accepting an optional leading slash and any letter case.
func NormalizeSemester(token string) (string, bool) {
	normalized := normalizeToken(token)
	if !isSemesterToken(normalized) {
		return "", false
	}
	return normalized, true
}

// SemesterTokens returns the full fixed semester enumeration.
func SemesterTokens() []string {
	return append([]string(nil), semesterTokens...)
}

func isSemesterToken(token string) bool {
	for _, s := range semesterTokens {
		if s == token {
			return true
		}
	}
	return false
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(token), "/"))
}
