// Package contract defines the values exchanged between the engine and a
// resolution node: the Request snapshot, the Result envelope carrying the
// task outcome and forwarded build events, and the event formatter.
package contract

import (
	"fmt"
	"path/filepath"
	"slices"
)

// TaskInput is the mutable task state a Request is built from.
type TaskInput struct {
	AllowedAssemblyExtensions                        []string `yaml:"allowed_assembly_extensions"`
	AllowedRelatedFileExtensions                     []string `yaml:"allowed_related_file_extensions"`
	AppConfigFile                                    string   `yaml:"app_config_file"`
	Assemblies                                       ItemList `yaml:"assemblies"`
	AssemblyFiles                                    ItemList `yaml:"assembly_files"`
	AutoUnify                                        bool     `yaml:"auto_unify"`
	CandidateAssemblyFiles                           []string `yaml:"candidate_assembly_files"`
	CopyLocalDependenciesWhenParentReferenceInGac    bool     `yaml:"copy_local_dependencies_when_parent_reference_in_gac"`
	DoNotCopyLocalIfInGac                            bool     `yaml:"do_not_copy_local_if_in_gac"`
	FindDependencies                                 bool     `yaml:"find_dependencies"`
	FindDependenciesOfExternallyResolvedReferences   bool     `yaml:"find_dependencies_of_externally_resolved_references"`
	FindRelatedFiles                                 bool     `yaml:"find_related_files"`
	FindSatellites                                   bool     `yaml:"find_satellites"`
	FindSerializationAssemblies                      bool     `yaml:"find_serialization_assemblies"`
	FullFrameworkAssemblyTables                      ItemList `yaml:"full_framework_assembly_tables"`
	FullFrameworkFolders                             []string `yaml:"full_framework_folders"`
	FullTargetFrameworkSubsetNames                   []string `yaml:"full_target_framework_subset_names"`
	IgnoreDefaultInstalledAssemblySubsetTables       bool     `yaml:"ignore_default_installed_assembly_subset_tables"`
	IgnoreDefaultInstalledAssemblyTables             bool     `yaml:"ignore_default_installed_assembly_tables"`
	IgnoreTargetFrameworkAttributeVersionMismatch    bool     `yaml:"ignore_target_framework_attribute_version_mismatch"`
	IgnoreVersionForFrameworkReferences              bool     `yaml:"ignore_version_for_framework_references"`
	InstalledAssemblySubsetTables                    ItemList `yaml:"installed_assembly_subset_tables"`
	InstalledAssemblyTables                          ItemList `yaml:"installed_assembly_tables"`
	LatestTargetFrameworkDirectories                 []string `yaml:"latest_target_framework_directories"`
	ProfileName                                      string   `yaml:"profile_name"`
	ResolvedSDKReferences                            ItemList `yaml:"resolved_sdk_references"`
	SearchPaths                                      []string `yaml:"search_paths"`
	Silent                                           bool     `yaml:"silent"`
	StateFile                                        string   `yaml:"state_file"`
	SupportsBindingRedirectGeneration                bool     `yaml:"supports_binding_redirect_generation"`
	TargetedRuntimeVersion                           string   `yaml:"targeted_runtime_version"`
	TargetFrameworkDirectories                       []string `yaml:"target_framework_directories"`
	TargetFrameworkMoniker                           string   `yaml:"target_framework_moniker"`
	TargetFrameworkMonikerDisplayName                string   `yaml:"target_framework_moniker_display_name"`
	TargetFrameworkSubsets                           []string `yaml:"target_framework_subsets"`
	TargetFrameworkVersion                           string   `yaml:"target_framework_version"`
	TargetProcessorArchitecture                      string   `yaml:"target_processor_architecture"`
	UnresolveFrameworkAssembliesFromHigherFrameworks bool     `yaml:"unresolve_framework_assemblies_from_higher_frameworks"`
	UseResolveAssemblyReferenceService               bool     `yaml:"use_resolve_assembly_reference_service"`
	WarnOrErrorOnTargetArchitectureMismatch          string   `yaml:"warn_or_error_on_target_architecture_mismatch"`
	CurrentPath                                      string   `yaml:"current_path"`
}

// Request is the configuration snapshot sent to a resolution node.
// It is built once by NewRequest and must not be modified afterwards.
type Request struct {
	AllowedAssemblyExtensions                        []string           `msgpack:"allowed_assembly_extensions" yaml:"allowed_assembly_extensions,omitempty"`
	AllowedRelatedFileExtensions                     []string           `msgpack:"allowed_related_file_extensions" yaml:"allowed_related_file_extensions,omitempty"`
	AppConfigFile                                    string             `msgpack:"app_config_file" yaml:"app_config_file,omitempty"`
	Assemblies                                       []ReadOnlyTaskItem `msgpack:"assemblies" yaml:"assemblies,omitempty"`
	AssemblyFiles                                    []ReadOnlyTaskItem `msgpack:"assembly_files" yaml:"assembly_files,omitempty"`
	AutoUnify                                        bool               `msgpack:"auto_unify" yaml:"auto_unify,omitempty"`
	CandidateAssemblyFiles                           []string           `msgpack:"candidate_assembly_files" yaml:"candidate_assembly_files,omitempty"`
	CopyLocalDependenciesWhenParentReferenceInGac    bool               `msgpack:"copy_local_dependencies_when_parent_reference_in_gac" yaml:"copy_local_dependencies_when_parent_reference_in_gac,omitempty"`
	DoNotCopyLocalIfInGac                            bool               `msgpack:"do_not_copy_local_if_in_gac" yaml:"do_not_copy_local_if_in_gac,omitempty"`
	FindDependencies                                 bool               `msgpack:"find_dependencies" yaml:"find_dependencies,omitempty"`
	FindDependenciesOfExternallyResolvedReferences   bool               `msgpack:"find_dependencies_of_externally_resolved_references" yaml:"find_dependencies_of_externally_resolved_references,omitempty"`
	FindRelatedFiles                                 bool               `msgpack:"find_related_files" yaml:"find_related_files,omitempty"`
	FindSatellites                                   bool               `msgpack:"find_satellites" yaml:"find_satellites,omitempty"`
	FindSerializationAssemblies                      bool               `msgpack:"find_serialization_assemblies" yaml:"find_serialization_assemblies,omitempty"`
	FullFrameworkAssemblyTables                      []ReadOnlyTaskItem `msgpack:"full_framework_assembly_tables" yaml:"full_framework_assembly_tables,omitempty"`
	FullFrameworkFolders                             []string           `msgpack:"full_framework_folders" yaml:"full_framework_folders,omitempty"`
	FullTargetFrameworkSubsetNames                   []string           `msgpack:"full_target_framework_subset_names" yaml:"full_target_framework_subset_names,omitempty"`
	IgnoreDefaultInstalledAssemblySubsetTables       bool               `msgpack:"ignore_default_installed_assembly_subset_tables" yaml:"ignore_default_installed_assembly_subset_tables,omitempty"`
	IgnoreDefaultInstalledAssemblyTables             bool               `msgpack:"ignore_default_installed_assembly_tables" yaml:"ignore_default_installed_assembly_tables,omitempty"`
	IgnoreTargetFrameworkAttributeVersionMismatch    bool               `msgpack:"ignore_target_framework_attribute_version_mismatch" yaml:"ignore_target_framework_attribute_version_mismatch,omitempty"`
	IgnoreVersionForFrameworkReferences              bool               `msgpack:"ignore_version_for_framework_references" yaml:"ignore_version_for_framework_references,omitempty"`
	InstalledAssemblySubsetTables                    []ReadOnlyTaskItem `msgpack:"installed_assembly_subset_tables" yaml:"installed_assembly_subset_tables,omitempty"`
	InstalledAssemblyTables                          []ReadOnlyTaskItem `msgpack:"installed_assembly_tables" yaml:"installed_assembly_tables,omitempty"`
	LatestTargetFrameworkDirectories                 []string           `msgpack:"latest_target_framework_directories" yaml:"latest_target_framework_directories,omitempty"`
	ProfileName                                      string             `msgpack:"profile_name" yaml:"profile_name,omitempty"`
	ResolvedSDKReferences                            []ReadOnlyTaskItem `msgpack:"resolved_sdk_references" yaml:"resolved_sdk_references,omitempty"`
	SearchPaths                                      []string           `msgpack:"search_paths" yaml:"search_paths,omitempty"`
	Silent                                           bool               `msgpack:"silent" yaml:"silent,omitempty"`
	StateFile                                        string             `msgpack:"state_file" yaml:"state_file,omitempty"`
	SupportsBindingRedirectGeneration                bool               `msgpack:"supports_binding_redirect_generation" yaml:"supports_binding_redirect_generation,omitempty"`
	TargetedRuntimeVersion                           string             `msgpack:"targeted_runtime_version" yaml:"targeted_runtime_version,omitempty"`
	TargetFrameworkDirectories                       []string           `msgpack:"target_framework_directories" yaml:"target_framework_directories,omitempty"`
	TargetFrameworkMoniker                           string             `msgpack:"target_framework_moniker" yaml:"target_framework_moniker,omitempty"`
	TargetFrameworkMonikerDisplayName                string             `msgpack:"target_framework_moniker_display_name" yaml:"target_framework_moniker_display_name,omitempty"`
	TargetFrameworkSubsets                           []string           `msgpack:"target_framework_subsets" yaml:"target_framework_subsets,omitempty"`
	TargetFrameworkVersion                           string             `msgpack:"target_framework_version" yaml:"target_framework_version,omitempty"`
	TargetProcessorArchitecture                      string             `msgpack:"target_processor_architecture" yaml:"target_processor_architecture,omitempty"`
	UnresolveFrameworkAssembliesFromHigherFrameworks bool               `msgpack:"unresolve_framework_assemblies_from_higher_frameworks" yaml:"unresolve_framework_assemblies_from_higher_frameworks,omitempty"`
	UseResolveAssemblyReferenceService               bool               `msgpack:"use_resolve_assembly_reference_service" yaml:"use_resolve_assembly_reference_service,omitempty"`
	WarnOrErrorOnTargetArchitectureMismatch          string             `msgpack:"warn_or_error_on_target_architecture_mismatch" yaml:"warn_or_error_on_target_architecture_mismatch,omitempty"`
	CurrentPath                                      string             `msgpack:"current_path" yaml:"current_path,omitempty"`
}

// NewRequest snapshots in. Lists are copied, items are detached through
// ReadOnlyTaskItem, and a non-empty StateFile is made absolute. Unset values
// stay unset.
func NewRequest(in *TaskInput) (*Request, error) {
	if in == nil {
		return nil, fmt.Errorf("nil task input")
	}

	stateFile := in.StateFile
	if stateFile != "" {
		abs, err := filepath.Abs(stateFile)
		if err != nil {
			return nil, fmt.Errorf("resolve state file %q: %w", stateFile, err)
		}
		stateFile = abs
	}

	return &Request{
		AllowedAssemblyExtensions:                        slices.Clone(in.AllowedAssemblyExtensions),
		AllowedRelatedFileExtensions:                     slices.Clone(in.AllowedRelatedFileExtensions),
		AppConfigFile:                                    in.AppConfigFile,
		Assemblies:                                       SnapshotAll(in.Assemblies),
		AssemblyFiles:                                    SnapshotAll(in.AssemblyFiles),
		AutoUnify:                                        in.AutoUnify,
		CandidateAssemblyFiles:                           slices.Clone(in.CandidateAssemblyFiles),
		CopyLocalDependenciesWhenParentReferenceInGac:    in.CopyLocalDependenciesWhenParentReferenceInGac,
		DoNotCopyLocalIfInGac:                            in.DoNotCopyLocalIfInGac,
		FindDependencies:                                 in.FindDependencies,
		FindDependenciesOfExternallyResolvedReferences:   in.FindDependenciesOfExternallyResolvedReferences,
		FindRelatedFiles:                                 in.FindRelatedFiles,
		FindSatellites:                                   in.FindSatellites,
		FindSerializationAssemblies:                      in.FindSerializationAssemblies,
		FullFrameworkAssemblyTables:                      SnapshotAll(in.FullFrameworkAssemblyTables),
		FullFrameworkFolders:                             slices.Clone(in.FullFrameworkFolders),
		FullTargetFrameworkSubsetNames:                   slices.Clone(in.FullTargetFrameworkSubsetNames),
		IgnoreDefaultInstalledAssemblySubsetTables:       in.IgnoreDefaultInstalledAssemblySubsetTables,
		IgnoreDefaultInstalledAssemblyTables:             in.IgnoreDefaultInstalledAssemblyTables,
		IgnoreTargetFrameworkAttributeVersionMismatch:    in.IgnoreTargetFrameworkAttributeVersionMismatch,
		IgnoreVersionForFrameworkReferences:              in.IgnoreVersionForFrameworkReferences,
		InstalledAssemblySubsetTables:                    SnapshotAll(in.InstalledAssemblySubsetTables),
		InstalledAssemblyTables:                          SnapshotAll(in.InstalledAssemblyTables),
		LatestTargetFrameworkDirectories:                 slices.Clone(in.LatestTargetFrameworkDirectories),
		ProfileName:                                      in.ProfileName,
		ResolvedSDKReferences:                            SnapshotAll(in.ResolvedSDKReferences),
		SearchPaths:                                      slices.Clone(in.SearchPaths),
		Silent:                                           in.Silent,
		StateFile:                                        stateFile,
		SupportsBindingRedirectGeneration:                in.SupportsBindingRedirectGeneration,
		TargetedRuntimeVersion:                           in.TargetedRuntimeVersion,
		TargetFrameworkDirectories:                       slices.Clone(in.TargetFrameworkDirectories),
		TargetFrameworkMoniker:                           in.TargetFrameworkMoniker,
		TargetFrameworkMonikerDisplayName:                in.TargetFrameworkMonikerDisplayName,
		TargetFrameworkSubsets:                           slices.Clone(in.TargetFrameworkSubsets),
		TargetFrameworkVersion:                           in.TargetFrameworkVersion,
		TargetProcessorArchitecture:                      in.TargetProcessorArchitecture,
		UnresolveFrameworkAssembliesFromHigherFrameworks: in.UnresolveFrameworkAssembliesFromHigherFrameworks,
		UseResolveAssemblyReferenceService:               in.UseResolveAssemblyReferenceService,
		WarnOrErrorOnTargetArchitectureMismatch:          in.WarnOrErrorOnTargetArchitectureMismatch,
		CurrentPath:                                      in.CurrentPath,
	}, nil
}
