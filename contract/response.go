package contract

// Response is the task output of one resolution. The channel treats it as
// opaque; only the worker's resolver fills it.
type Response struct {
	ResolvedFiles                  []ReadOnlyTaskItem `msgpack:"resolved_files" yaml:"resolved_files,omitempty"`
	ResolvedDependencyFiles        []ReadOnlyTaskItem `msgpack:"resolved_dependency_files" yaml:"resolved_dependency_files,omitempty"`
	RelatedFiles                   []ReadOnlyTaskItem `msgpack:"related_files" yaml:"related_files,omitempty"`
	SatelliteFiles                 []ReadOnlyTaskItem `msgpack:"satellite_files" yaml:"satellite_files,omitempty"`
	SerializationAssemblyFiles     []ReadOnlyTaskItem `msgpack:"serialization_assembly_files" yaml:"serialization_assembly_files,omitempty"`
	ScatterFiles                   []ReadOnlyTaskItem `msgpack:"scatter_files" yaml:"scatter_files,omitempty"`
	CopyLocalFiles                 []ReadOnlyTaskItem `msgpack:"copy_local_files" yaml:"copy_local_files,omitempty"`
	SuggestedRedirects             []ReadOnlyTaskItem `msgpack:"suggested_redirects" yaml:"suggested_redirects,omitempty"`
	FilesWritten                   []ReadOnlyTaskItem `msgpack:"files_written" yaml:"files_written,omitempty"`
	DependsOnSystemRuntime         string             `msgpack:"depends_on_system_runtime" yaml:"depends_on_system_runtime,omitempty"`
	DependsOnNETStandard           string             `msgpack:"depends_on_netstandard" yaml:"depends_on_netstandard,omitempty"`
	UnresolvedAssemblyConflictsNum int                `msgpack:"unresolved_assembly_conflicts" yaml:"unresolved_assembly_conflicts,omitempty"`
}

// ItemCount returns the number of resolved and dependency files.
func (r *Response) ItemCount() int {
	if r == nil {
		return 0
	}
	return len(r.ResolvedFiles) + len(r.ResolvedDependencyFiles)
}
