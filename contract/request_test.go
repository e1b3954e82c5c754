package contract

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// mutableItem is a caller-owned item whose state can change after snapshot.
type mutableItem struct {
	spec string
	meta map[string]string
}

func (m *mutableItem) ItemSpec() string { return m.spec }

func (m *mutableItem) MetadataNames() []string {
	names := make([]string, 0, len(m.meta))
	for k := range m.meta {
		names = append(names, k)
	}
	return names
}

func (m *mutableItem) Metadata(name string) string { return m.meta[name] }

func populatedInput() *TaskInput {
	return &TaskInput{
		AllowedAssemblyExtensions:    []string{".winmd", ".dll", ".exe"},
		AllowedRelatedFileExtensions: []string{".pdb", ".xml"},
		AppConfigFile:                "app.config",
		Assemblies: ItemList{
			&mutableItem{spec: "System.Runtime", meta: map[string]string{"Private": "false"}},
			&mutableItem{spec: "Newtonsoft.Json, Version=13.0.0.0"},
		},
		AssemblyFiles:                           ItemList{ReadOnlyTaskItem{Spec: "lib/Foo.dll"}},
		AutoUnify:                               true,
		CandidateAssemblyFiles:                  []string{"lib/Bar.dll"},
		FindDependencies:                        true,
		FindRelatedFiles:                        true,
		FullFrameworkAssemblyTables:             ItemList{ReadOnlyTaskItem{Spec: "RedistList/FrameworkList.xml", Meta: map[string]string{"FrameworkDirectory": "/fx"}}},
		FullFrameworkFolders:                    []string{"/fx"},
		FullTargetFrameworkSubsetNames:          []string{"Full"},
		InstalledAssemblyTables:                 ItemList{ReadOnlyTaskItem{Spec: "installed.xml"}},
		LatestTargetFrameworkDirectories:        []string{"/fx/latest"},
		ProfileName:                             "Client",
		ResolvedSDKReferences:                   ItemList{ReadOnlyTaskItem{Spec: "sdk"}},
		SearchPaths:                             []string{"{CandidateAssemblyFiles}", "{HintPathFromItem}", "/opt/lib"},
		Silent:                                  true,
		StateFile:                               "obj/rar.cache",
		TargetedRuntimeVersion:                  "v4.0.30319",
		TargetFrameworkDirectories:              []string{"/fx/v4.8"},
		TargetFrameworkMoniker:                  ".NETFramework,Version=v4.8",
		TargetFrameworkMonikerDisplayName:       ".NET Framework 4.8",
		TargetFrameworkVersion:                  "v4.8",
		TargetProcessorArchitecture:             "msil",
		UseResolveAssemblyReferenceService:      true,
		WarnOrErrorOnTargetArchitectureMismatch: "Warning",
		CurrentPath:                             "/src/app",
	}
}

func TestNewRequest_NilInput(t *testing.T) {
	_, err := NewRequest(nil)
	assert.Error(t, err)
}

func TestNewRequest_SnapshotIsDetached(t *testing.T) {
	in := populatedInput()
	req, err := NewRequest(in)
	require.NoError(t, err)

	in.SearchPaths[0] = "mutated"
	in.Assemblies[0].(*mutableItem).spec = "mutated"
	in.Assemblies[0].(*mutableItem).meta["Private"] = "true"

	assert.Equal(t, "{CandidateAssemblyFiles}", req.SearchPaths[0])
	assert.Equal(t, "System.Runtime", req.Assemblies[0].ItemSpec())
	assert.Equal(t, "false", req.Assemblies[0].Metadata("Private"))
}

func TestNewRequest_StateFile(t *testing.T) {
	req, err := NewRequest(&TaskInput{StateFile: "obj/rar.cache"})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(req.StateFile))
	assert.Equal(t, "rar.cache", filepath.Base(req.StateFile))

	req, err = NewRequest(&TaskInput{})
	require.NoError(t, err)
	assert.Empty(t, req.StateFile)
}

func TestNewRequest_AbsentStaysAbsent(t *testing.T) {
	req, err := NewRequest(&TaskInput{})
	require.NoError(t, err)
	assert.Equal(t, &Request{}, req)
}

func TestRequest_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   *TaskInput
	}{
		{"populated", populatedInput()},
		{"zero", &TaskInput{}},
		{"empty lists", &TaskInput{SearchPaths: []string{}, Assemblies: ItemList{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.in)
			require.NoError(t, err)

			data, err := msgpack.Marshal(req)
			require.NoError(t, err)

			var got Request
			require.NoError(t, msgpack.Unmarshal(data, &got))
			assert.Equal(t, req, &got)
		})
	}
}

func TestTaskInput_YAML(t *testing.T) {
	doc := `
search_paths: ["/opt/lib"]
find_dependencies: true
assemblies:
  - item_spec: System.Runtime
    metadata:
      Private: "false"
  - item_spec: Foo
target_framework_moniker: .NETCoreApp,Version=v8.0
`
	var in TaskInput
	require.NoError(t, yaml.Unmarshal([]byte(doc), &in))

	req, err := NewRequest(&in)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/lib"}, req.SearchPaths)
	assert.True(t, req.FindDependencies)
	require.Len(t, req.Assemblies, 2)
	assert.Equal(t, "System.Runtime", req.Assemblies[0].Spec)
	assert.Equal(t, map[string]string{"Private": "false"}, req.Assemblies[0].Meta)
	assert.Nil(t, req.Assemblies[1].Meta)
	assert.Nil(t, req.AssemblyFiles)
}

func TestReadOnlyTaskItem_MetadataNamesSorted(t *testing.T) {
	item := ReadOnlyTaskItem{Spec: "x", Meta: map[string]string{"b": "2", "a": "1", "c": "3"}}
	assert.Equal(t, []string{"a", "b", "c"}, item.MetadataNames())
	assert.Equal(t, "", item.Metadata("missing"))
}
