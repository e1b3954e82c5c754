package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/contract"
)

// Resolver performs one resolution. Events raised while resolving go to
// events; they are carried back to the launcher in the result. ok is the
// task result. A non-nil error fails the task with an error event.
type Resolver interface {
	Resolve(ctx context.Context, req *contract.Request, events buildevent.Sink) (resp *contract.Response, ok bool, err error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, req *contract.Request, events buildevent.Sink) (*contract.Response, bool, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, req *contract.Request, events buildevent.Sink) (*contract.Response, bool, error) {
	return f(ctx, req, events)
}

var (
	defaultAssemblyExtensions = []string{".winmd", ".dll", ".exe"}
	defaultRelatedExtensions  = []string{".pdb", ".xml", ".pri"}
)

const (
	senderName = "ResolveAssemblyReference"

	codeReferenceNotFound = "MSB3245"
	codeFileNotFound      = "MSB3246"
)

// ProbingResolver looks for each referenced assembly by simple name in the
// request's search paths. It does not read assembly metadata, so it finds
// no dependencies and never unifies versions.
type ProbingResolver struct{}

// Resolve implements Resolver.
func (ProbingResolver) Resolve(ctx context.Context, req *contract.Request, events buildevent.Sink) (*contract.Response, bool, error) {
	p := &probe{req: req, events: events, resp: &contract.Response{}, ok: true}
	p.assemblyExts = req.AllowedAssemblyExtensions
	if len(p.assemblyExts) == 0 {
		p.assemblyExts = defaultAssemblyExtensions
	}
	p.relatedExts = req.AllowedRelatedFileExtensions
	if len(p.relatedExts) == 0 {
		p.relatedExts = defaultRelatedExtensions
	}

	for _, item := range req.AssemblyFiles {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		p.resolveFile(item)
	}
	for _, item := range req.Assemblies {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		p.resolveReference(item)
	}

	p.resp.DependsOnSystemRuntime = "false"
	p.resp.DependsOnNETStandard = "false"
	return p.resp, p.ok, nil
}

type probe struct {
	req          *contract.Request
	events       buildevent.Sink
	resp         *contract.Response
	ok           bool
	assemblyExts []string
	relatedExts  []string
}

// resolveFile accepts an assembly given by path.
func (p *probe) resolveFile(item contract.ReadOnlyTaskItem) {
	path := p.abs(item.Spec)
	if !fileExists(path) {
		p.warn(codeFileNotFound, fmt.Sprintf(
			"Resolved file has a bad image, no metadata, or is otherwise inaccessible. Could not find file %q.", item.Spec))
		return
	}
	p.accept(item, path, "{RawFileName}")
}

// resolveReference searches for the assembly by its simple name.
func (p *probe) resolveReference(item contract.ReadOnlyTaskItem) {
	name := simpleName(item.Spec)
	if hint := item.Metadata("HintPath"); hint != "" {
		if path := p.abs(hint); fileExists(path) {
			p.accept(item, path, "{HintPathFromItem}")
			return
		}
	}

	for _, dir := range p.req.SearchPaths {
		if strings.HasPrefix(dir, "{") {
			// Engine-specific search locations are not probed.
			continue
		}
		for _, ext := range p.assemblyExts {
			path := filepath.Join(p.abs(dir), name+ext)
			if fileExists(path) {
				p.accept(item, path, dir)
				return
			}
		}
	}

	p.warn(codeReferenceNotFound, fmt.Sprintf(
		"Could not resolve this reference. Could not locate the assembly %q. "+
			"Check to make sure the assembly exists on disk.", item.Spec))
}

func (p *probe) accept(item contract.ReadOnlyTaskItem, path, from string) {
	resolved := contract.ReadOnlyTaskItem{
		Spec: path,
		Meta: map[string]string{
			"OriginalItemSpec": item.Spec,
			"ResolvedFrom":     from,
			"FusionName":       simpleName(item.Spec),
		},
	}
	p.resp.ResolvedFiles = append(p.resp.ResolvedFiles, resolved)

	if !p.inFramework(path) && item.Metadata("Private") != "false" {
		resolved.Meta["CopyLocal"] = "true"
		p.resp.CopyLocalFiles = append(p.resp.CopyLocalFiles, contract.ReadOnlyTaskItem{Spec: path})
	}

	if p.req.FindRelatedFiles {
		base := strings.TrimSuffix(path, filepath.Ext(path))
		for _, ext := range p.relatedExts {
			if related := base + ext; fileExists(related) {
				p.resp.RelatedFiles = append(p.resp.RelatedFiles, contract.ReadOnlyTaskItem{Spec: related})
			}
		}
	}

	p.message(fmt.Sprintf("Primary reference %q resolved to %q.", item.Spec, path))
}

// inFramework reports whether path lies under a target framework directory.
func (p *probe) inFramework(path string) bool {
	for _, dir := range p.req.TargetFrameworkDirectories {
		rel, err := filepath.Rel(p.abs(dir), path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return true
		}
	}
	return false
}

// abs resolves path against the request's working directory.
func (p *probe) abs(path string) string {
	if filepath.IsAbs(path) || p.req.CurrentPath == "" {
		return path
	}
	return filepath.Join(p.req.CurrentPath, path)
}

func (p *probe) message(text string) {
	if p.req.Silent {
		return
	}
	p.events.LogEvent(&buildevent.MessageEvent{
		EventArgs:  buildevent.EventArgs{Message: text, SenderName: senderName, Timestamp: time.Now()},
		Importance: buildevent.ImportanceLow,
	})
}

func (p *probe) warn(code, text string) {
	p.events.LogEvent(&buildevent.WarningEvent{
		EventArgs: buildevent.EventArgs{Message: text, SenderName: senderName, Timestamp: time.Now()},
		Location:  buildevent.Location{Code: code},
	})
}

// simpleName strips the version, culture and key from an assembly name.
func simpleName(spec string) string {
	name, _, _ := strings.Cut(spec, ",")
	return strings.TrimSpace(name)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
