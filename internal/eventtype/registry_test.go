package eventtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{
		Name:   "activity.created.v1",
		Fields: []Field{{Name: "name", Kind: String, Required: true}},
	}))

	d, ok := r.Resolve("activity.created.v1")
	require.True(t, ok)
	assert.Equal(t, "activity.created.v1", d.Name)
	assert.True(t, r.Known("activity.created.v1"))

	_, ok = r.Resolve("activity.created.v2")
	assert.False(t, ok)
	assert.False(t, r.Known("activity.created.v2"))
}

func TestRegistryDuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()
	d := Descriptor{Name: "material.delivered.v1"}
	require.NoError(t, r.Register(d))
	err := r.Register(d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registered twice")
}

func TestRegistryRejectsUnnamedDescriptor(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(Descriptor{}))
}

func TestBuiltinRegistryBuilds(t *testing.T) {
	r := BuiltinRegistry()
	for _, name := range []string{
		"activity.created.v1",
		"activity.status-changed.v1",
		"material.delivered.v1",
		"inspection.completed.v1",
		"document.uploaded.v1",
		"workorder.assigned.v1",
	} {
		assert.True(t, r.Known(name), name)
	}
}

func TestDescriptorFieldLookupIsCaseInsensitive(t *testing.T) {
	d := Descriptor{Fields: []Field{{Name: "activityId", Kind: ID}}}
	f, ok := d.field("ACTIVITYID")
	require.True(t, ok)
	assert.Equal(t, "activityId", f.Name)
}
