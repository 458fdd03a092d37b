package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvKey_BuiltinsAreDistinctAndStable(t *testing.T) {
	seen := map[string]VariableName{}
	for _, v := range BuiltinVariables {
		key := v.EnvKey()
		assert.Equal(t, key, v.EnvKey(), "env key must be deterministic")
		assert.Regexp(t, `^TASKDECK_[A-Z_]+$`, key)
		if other, dup := seen[key]; dup {
			t.Fatalf("%v and %v share env key %q", v.Name(), other.Name(), key)
		}
		seen[key] = v
	}
	assert.Len(t, seen, 6)
}

func TestEnvKey_Values(t *testing.T) {
	tests := []struct {
		v    VariableName
		want string
	}{
		{VariableFile, "TASKDECK_FILE"},
		{VariableWorktreeRoot, "TASKDECK_WORKTREE_ROOT"},
		{VariableSymbol, "TASKDECK_SYMBOL"},
		{VariableRow, "TASKDECK_ROW"},
		{VariableColumn, "TASKDECK_COLUMN"},
		{VariableSelectedText, "TASKDECK_SELECTED_TEXT"},
		{MustCustomVariable("my var"), "TASKDECK_my var"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.EnvKey())
	}
}

func TestCustomVariable_EmptyName(t *testing.T) {
	_, err := CustomVariable("")
	require.ErrorIs(t, err, ErrEmptyVariableName)
	assert.Panics(t, func() { MustCustomVariable("") })
}

func TestTemplateValue(t *testing.T) {
	assert.Equal(t, "$TASKDECK_ROW", VariableRow.TemplateValue())
	assert.Equal(t, "${TASKDECK_my var}", MustCustomVariable("my var").TemplateValue())
}

func TestParseVariableName(t *testing.T) {
	v, err := ParseVariableName("WorktreeRoot")
	require.NoError(t, err)
	assert.Equal(t, VariableWorktreeRoot, v)

	v, err = ParseVariableName("TASKDECK_SELECTED_TEXT")
	require.NoError(t, err)
	assert.Equal(t, VariableSelectedText, v)

	v, err = ParseVariableName("TASKDECK_branch")
	require.NoError(t, err)
	assert.True(t, v.IsCustom())
	assert.Equal(t, "branch", v.Name())

	_, err = ParseVariableName("")
	assert.ErrorIs(t, err, ErrEmptyVariableName)
}

func TestInsert_ReturnsPreviousValue(t *testing.T) {
	var tv TaskVariables

	prev, ok := tv.Insert(VariableRow, "1")
	assert.False(t, ok)
	assert.Empty(t, prev)

	prev, ok = tv.Insert(VariableRow, "2")
	assert.True(t, ok)
	assert.Equal(t, "1", prev)

	got, _ := tv.Get(VariableRow)
	assert.Equal(t, "2", got)
	assert.Equal(t, 1, tv.Len())
}

func TestExtend_EqualsFoldedInsert(t *testing.T) {
	custom := MustCustomVariable("branch")
	a := NewTaskVariables(map[VariableName]string{
		VariableFile: "/a.go",
		VariableRow:  "3",
	})
	b := NewTaskVariables(map[VariableName]string{
		VariableRow: "7",
		custom:      "main",
	})

	extended := a.Clone()
	extended.Extend(b)

	folded := a.Clone()
	for _, name := range b.Names() {
		v, _ := b.Get(name)
		folded.Insert(name, v)
	}

	assert.True(t, extended.Equal(folded))
	row, _ := extended.Get(VariableRow)
	assert.Equal(t, "7", row, "incoming value wins")
	file, _ := extended.Get(VariableFile)
	assert.Equal(t, "/a.go", file)

	// The source container is left untouched.
	row, _ = a.Get(VariableRow)
	assert.Equal(t, "3", row)
}

func TestEnvVariables(t *testing.T) {
	tv := NewTaskVariables(map[VariableName]string{
		VariableWorktreeRoot:         "/repo",
		MustCustomVariable("BRANCH"): "main",
	})
	assert.Equal(t, map[string]string{
		"TASKDECK_WORKTREE_ROOT": "/repo",
		"TASKDECK_BRANCH":        "main",
	}, tv.EnvVariables())
}

func TestZeroValueTaskVariables(t *testing.T) {
	var tv TaskVariables
	assert.Empty(t, tv.EnvVariables())
	assert.Empty(t, tv.Names())
	_, ok := tv.Get(VariableFile)
	assert.False(t, ok)
}

func TestCustomVariable_RejectsBuiltinSpellings(t *testing.T) {
	for _, name := range []string{"Row", "ROW", "WorktreeRoot", "WORKTREE_ROOT", "SELECTED_TEXT"} {
		_, err := CustomVariable(name)
		assert.ErrorIs(t, err, ErrReservedVariableName, name)
	}
}

func TestCustomVariable_RejectsUnreferenceableNames(t *testing.T) {
	for _, name := range []string{"env:HOME", "a}b"} {
		_, err := CustomVariable(name)
		assert.ErrorIs(t, err, ErrInvalidVariableName, name)
	}
}

func TestParseVariableName_EnvSuffixIsBuiltin(t *testing.T) {
	v, err := ParseVariableName("ROW")
	require.NoError(t, err)
	assert.Equal(t, VariableRow, v)

	v, err = ParseVariableName("TASKDECK_Row")
	require.NoError(t, err)
	assert.Equal(t, VariableRow, v)
}

func TestParseTaskVariables(t *testing.T) {
	tv, err := ParseTaskVariables(map[string]string{
		"ROW":           "4",
		"Row":           "4",
		"TASKDECK_FILE": "/a.go",
		"branch":        "main",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"TASKDECK_ROW":    "4",
		"TASKDECK_FILE":   "/a.go",
		"TASKDECK_branch": "main",
	}, tv.EnvVariables())

	_, err = ParseTaskVariables(map[string]string{"File": "/a.go", "TASKDECK_FILE": "/b.go"})
	assert.ErrorIs(t, err, ErrConflictingVariable)

	_, err = ParseTaskVariables(map[string]string{"x:y": "1"})
	assert.ErrorIs(t, err, ErrInvalidVariableName)
}

func TestEnvVariables_NoKeyCollisions(t *testing.T) {
	// Every spelling of a built-in resolves to the built-in itself, so no
	// custom variable can render to a built-in's key.
	for _, b := range BuiltinVariables {
		for _, spelling := range []string{b.Name(), b.EnvKey(), b.EnvKey()[len(EnvPrefix):]} {
			v, err := ParseVariableName(spelling)
			require.NoError(t, err)
			assert.Equal(t, b, v, spelling)
		}
	}
}
