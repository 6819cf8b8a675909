package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
courses:
  - name: B.TECH
    semesters:
      SEM1: fld-bt-1
      SEM3: fld-bt-3
  - name: BCA
    semesters:
      SEM2: fld-bca-2
  - name: M.TECH
    semesters:
      SEM1: fld-mt-1
`

func TestParsePreservesCourseOrder(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"B.TECH", "BCA", "M.TECH"}, c.Courses())
}

func TestFolderIDResolution(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	id, ok := c.FolderID("B.TECH", "SEM3")
	require.True(t, ok)
	assert.Equal(t, "fld-bt-3", id)

	// case-insensitive with optional slash prefix
	id, ok = c.FolderID("/b.tech", "/sem1")
	require.True(t, ok)
	assert.Equal(t, "fld-bt-1", id)

	_, ok = c.FolderID("BCA", "SEM5")
	assert.False(t, ok)
	_, ok = c.FolderID("MBA", "SEM1")
	assert.False(t, ok)
}

func TestSemestersSorted(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	sems, ok := c.Semesters("B.TECH")
	require.True(t, ok)
	assert.Equal(t, []string{"SEM1", "SEM3"}, sems)

	_, ok = c.Semesters("MBA")
	assert.False(t, ok)
}

func TestNormalizeCourse(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	got, ok := c.NormalizeCourse("/bca")
	require.True(t, ok)
	assert.Equal(t, "BCA", got)

	_, ok = c.NormalizeCourse("BBA")
	assert.False(t, ok)
}

func TestNormalizeSemester(t *testing.T) {
	got, ok := NormalizeSemester("sem7")
	require.True(t, ok)
	assert.Equal(t, "SEM7", got)

	_, ok = NormalizeSemester("SEM9")
	assert.False(t, ok)
	_, ok = NormalizeSemester("semester1")
	assert.False(t, ok)
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	cases := map[string]string{
		"no courses":       `courses: []`,
		"invalid semester": "courses:\n  - name: BCA\n    semesters:\n      SEM9: x",
		"empty folder":     "courses:\n  - name: BCA\n    semesters:\n      SEM1: \"\"",
		"duplicate course": "courses:\n  - name: BCA\n    semesters:\n      SEM1: a\n  - name: bca\n    semesters:\n      SEM2: b",
	}
	for name, yml := range cases {
		_, err := Parse([]byte(yml))
		assert.Error(t, err, name)
	}
}
