package contract

import (
	"sort"

	"gopkg.in/yaml.v3"
)

// TaskItem is the caller's view of an item: an item spec plus string metadata.
// Implementations may be mutable; Request captures them through ReadOnlyTaskItem.
type TaskItem interface {
	ItemSpec() string
	MetadataNames() []string
	Metadata(name string) string
}

// ReadOnlyTaskItem is a detached snapshot of a TaskItem.
type ReadOnlyTaskItem struct {
	Spec string            `msgpack:"item_spec" yaml:"item_spec" json:"item_spec"`
	Meta map[string]string `msgpack:"metadata,omitempty" yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ItemSpec implements TaskItem.
func (i ReadOnlyTaskItem) ItemSpec() string {
	return i.Spec
}

// MetadataNames implements TaskItem. Names are sorted.
func (i ReadOnlyTaskItem) MetadataNames() []string {
	names := make([]string, 0, len(i.Meta))
	for name := range i.Meta {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metadata implements TaskItem. Missing names yield "".
func (i ReadOnlyTaskItem) Metadata(name string) string {
	return i.Meta[name]
}

// Snapshot copies item into a ReadOnlyTaskItem sharing no state with it.
func Snapshot(item TaskItem) ReadOnlyTaskItem {
	out := ReadOnlyTaskItem{Spec: item.ItemSpec()}
	names := item.MetadataNames()
	if len(names) > 0 {
		out.Meta = make(map[string]string, len(names))
		for _, name := range names {
			out.Meta[name] = item.Metadata(name)
		}
	}
	return out
}

// SnapshotAll copies items. A nil input stays nil; nil elements are skipped.
func SnapshotAll(items []TaskItem) []ReadOnlyTaskItem {
	if items == nil {
		return nil
	}
	out := make([]ReadOnlyTaskItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, Snapshot(item))
	}
	return out
}

// ItemList holds caller items. It decodes from YAML as a list of
// {item_spec, metadata} mappings.
type ItemList []TaskItem

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ItemList) UnmarshalYAML(value *yaml.Node) error {
	var items []ReadOnlyTaskItem
	if err := value.Decode(&items); err != nil {
		return err
	}
	if items == nil {
		*l = nil
		return nil
	}
	out := make(ItemList, len(items))
	for i, item := range items {
		out[i] = item
	}
	*l = out
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l ItemList) MarshalYAML() (any, error) {
	return SnapshotAll(l), nil
}
