package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/mendbox/runtime"
)

// manifestPriority is the fixed search order for dependency manifests.
// Declared formats always win over inference.
var manifestPriority = []string{
	"requirements.txt",
	"pyproject.toml",
	"setup.py",
	"Pipfile",
	"poetry.lock",
}

// hashMarkerFile records the manifest hash of the last successful install.
// It lives in the container workspace and is written only after the package
// manager exits zero.
const hashMarkerFile = ".requirements_hash"

// guiToolkits are import names that signal a GUI application
var guiToolkits = map[string]bool{
	"tkinter":    true,
	"tk":         true,
	"gui":        true,
	"wx":         true,
	"pygame":     true,
	"matplotlib": true,
}

// guiGuidance is appended to synthesized manifests when GUI toolkit imports
// are present
const guiGuidance = "\n# GUI dependencies detected - may require system packages\n" +
	"# For tkinter: apt-get install python3-tk\n" +
	"# For matplotlib: apt-get install python3-tk python3-dev\n"

// pythonStdlib lists modules that must not be mistaken for installable
// packages during import inference
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "array": true, "asyncio": true,
	"base64": true, "bisect": true, "collections": true, "configparser": true,
	"contextlib": true, "copy": true, "csv": true, "dataclasses": true,
	"datetime": true, "decimal": true, "enum": true, "fractions": true,
	"functools": true, "glob": true, "hashlib": true, "heapq": true,
	"html": true, "http": true, "inspect": true, "io": true,
	"itertools": true, "json": true, "logging": true, "math": true,
	"operator": true, "os": true, "pathlib": true, "pickle": true,
	"platform": true, "pprint": true, "queue": true, "random": true,
	"re": true, "secrets": true, "shutil": true, "signal": true,
	"socket": true, "sqlite3": true, "statistics": true, "string": true,
	"struct": true, "subprocess": true, "sys": true, "tempfile": true,
	"textwrap": true, "threading": true, "time": true, "tkinter": true,
	"traceback": true, "types": true, "typing": true, "unicodedata": true,
	"unittest": true, "urllib": true, "uuid": true, "warnings": true,
	"weakref": true, "zipfile": true, "zlib": true,
}

var (
	importPattern = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([A-Za-z_]\w*)`)
	identPattern  = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// ManifestDecision is the outcome of manifest resolution: which manifest to
// install, its content hash for caching, and whether it was synthesized
type ManifestDecision struct {
	Found    bool
	Name     string
	Content  string
	Hash     string
	Inferred bool
	GUIDeps  []string
}

// InferenceStrategy synthesizes manifest content when the file set declares
// no manifest. An empty string means nothing installable was detected.
type InferenceStrategy interface {
	Infer(files FileSet) string
}

// ImportScanInference is the default strategy: scan Python sources for
// top-level import statements and keep everything outside the standard
// library
type ImportScanInference struct{}

// Infer implements InferenceStrategy
func (ImportScanInference) Infer(files FileSet) string {
	deps := map[string]bool{}
	for _, path := range files.PythonFiles() {
		for _, match := range importPattern.FindAllStringSubmatch(files[path], -1) {
			if name := match[1]; !pythonStdlib[name] {
				deps[name] = true
			}
		}
	}
	if len(deps) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("# Auto-detected dependencies\n")
	for _, dep := range sortedKeys(deps) {
		b.WriteString(dep)
		b.WriteString("\n")
	}
	return b.String()
}

// ResolverConfig carries the timeouts and policies the resolver needs
type ResolverConfig struct {
	InstallTimeout time.Duration
	ProbeTimeout   time.Duration
	GUIPreinstall  bool
}

// Resolver locates or infers a dependency manifest and installs it inside
// the session container, skipping installs the container has already done
type Resolver struct {
	logger    *zap.Logger
	rt        runtime.Runtime
	config    ResolverConfig
	inference InferenceStrategy
}

// ResolverOption defines a functional option for Resolver
type ResolverOption func(*Resolver)

// WithInference replaces the default import-scan inference strategy
func WithInference(strategy InferenceStrategy) ResolverOption {
	return func(r *Resolver) {
		r.inference = strategy
	}
}

// NewResolver creates a Resolver backed by the given runtime
func NewResolver(logger *zap.Logger, rt runtime.Runtime, config ResolverConfig, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger:    logger,
		rt:        rt,
		config:    config,
		inference: ImportScanInference{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve finds the manifest to install: the first declared manifest in
// priority order, otherwise one synthesized by the inference strategy. GUI
// toolkit imports are detected either way so system packages can be
// pre-installed; guidance comments are appended only to synthesized
// manifests.
func (r *Resolver) Resolve(files FileSet) ManifestDecision {
	gui := detectGUIImports(files)

	for _, name := range manifestPriority {
		if content, ok := files[name]; ok {
			return ManifestDecision{
				Found:   true,
				Name:    name,
				Content: content,
				Hash:    hashContent(content),
				GUIDeps: gui,
			}
		}
	}

	content := r.inference.Infer(files)
	if content == "" {
		return ManifestDecision{GUIDeps: gui}
	}
	if len(gui) > 0 {
		content += guiGuidance
	}

	r.logger.Info("no manifest declared, synthesized one from imports",
		zap.Strings("gui_deps", gui))
	return ManifestDecision{
		Found:    true,
		Name:     "requirements.txt",
		Content:  content,
		Hash:     hashContent(content),
		Inferred: true,
		GUIDeps:  gui,
	}
}

// Install brings the container in line with the manifest decision. It
// returns skipped=true when the container already has this manifest
// installed. seenHash is the hash of the last install this session
// performed, or "" for a fresh session. A failing package manager run comes
// back as the result with a non-zero exit code; err is reserved for the
// runtime being unreachable.
func (r *Resolver) Install(ctx context.Context, name string, d ManifestDecision, seenHash string) (runtime.ExecResult, bool, error) {
	if r.config.GUIPreinstall && len(d.GUIDeps) > 0 {
		r.preinstallGUIPackages(ctx, name)
	}
	if !d.Found {
		return runtime.ExecResult{}, true, nil
	}

	cached, err := r.cacheHit(ctx, name, d, seenHash)
	if err != nil {
		return runtime.ExecResult{}, false, err
	}
	if cached {
		r.logger.Debug("manifest unchanged, skipping install",
			zap.String("container", name),
			zap.String("hash", d.Hash))
		return runtime.ExecResult{}, true, nil
	}

	cmd := installCommand(d)
	r.logger.Info("installing dependencies",
		zap.String("container", name),
		zap.String("manifest", d.Name),
		zap.Bool("inferred", d.Inferred),
		zap.Strings("cmd", cmd))

	res, err := r.rt.Exec(ctx, name, cmd, r.config.InstallTimeout)
	if err != nil {
		return runtime.ExecResult{}, false, err
	}
	if res.ExitCode != 0 {
		r.logger.Warn("dependency install failed",
			zap.String("container", name),
			zap.Int("exit_code", res.ExitCode))
		return res, false, nil
	}

	r.writeMarker(ctx, name, d.Hash)
	return res, false, nil
}

// cacheHit reports whether the container's hash marker matches the decision
// and the install it records is still intact. A seenHash match means this
// session already wrote the marker, so the read is skipped.
func (r *Resolver) cacheHit(ctx context.Context, name string, d ManifestDecision, seenHash string) (bool, error) {
	if seenHash != d.Hash {
		prev, err := r.rt.Exec(ctx, name, []string{"cat", hashMarkerFile}, r.config.ProbeTimeout)
		if err != nil {
			return false, err
		}
		if prev.ExitCode != 0 || strings.TrimSpace(prev.Stdout) != d.Hash {
			return false, nil
		}
	}

	// The marker can outlive the packages it describes, e.g. when the
	// container was recreated under the same name. Probe the first declared
	// dependency before trusting it.
	module := firstImportName(d)
	if module == "" {
		return true, nil
	}
	probe, err := r.rt.Exec(ctx, name, []string{"python", "-c", "import " + module}, r.config.ProbeTimeout)
	if err != nil {
		return false, err
	}
	if probe.ExitCode != 0 {
		r.logger.Warn("sentinel import failed despite matching hash, forcing reinstall",
			zap.String("container", name),
			zap.String("module", module))
		return false, nil
	}
	return true, nil
}

// preinstallGUIPackages best-effort installs the system libraries GUI
// toolkits need. Failure is expected on minimal images and never fatal.
func (r *Resolver) preinstallGUIPackages(ctx context.Context, name string) {
	cmd := []string{"sh", "-c", "apt-get update && apt-get install -y python3-tk python3-dev"}
	res, err := r.rt.Exec(ctx, name, cmd, r.config.InstallTimeout)
	if err != nil {
		r.logger.Warn("GUI system package install unavailable", zap.Error(err))
		return
	}
	if res.ExitCode != 0 {
		r.logger.Warn("GUI system package install failed",
			zap.String("container", name),
			zap.Int("exit_code", res.ExitCode))
		return
	}
	r.logger.Info("GUI system packages installed", zap.String("container", name))
}

// writeMarker records the installed manifest hash inside the container
func (r *Resolver) writeMarker(ctx context.Context, name, hash string) {
	cmd := []string{"sh", "-c", fmt.Sprintf("echo '%s' > %s", hash, hashMarkerFile)}
	if res, err := r.rt.Exec(ctx, name, cmd, r.config.ProbeTimeout); err != nil || res.ExitCode != 0 {
		r.logger.Warn("failed to record manifest hash",
			zap.String("container", name),
			zap.Error(err))
	}
}

// installCommand picks the package manager invocation for the manifest
// format. Commands are workspace-relative since the container's working
// directory is the workspace.
func installCommand(d ManifestDecision) []string {
	switch {
	case strings.HasSuffix(d.Name, ".toml"), d.Name == "setup.py":
		return []string{"pip", "install", "-e", "."}
	case d.Name == "Pipfile":
		return []string{"pipenv", "install"}
	default:
		return []string{"pip", "install", "-r", d.Name}
	}
}

// firstImportName extracts a probe module from a flat requirements
// manifest. Project-descriptor formats return "" since they have no cheap
// first-line dependency to probe.
func firstImportName(d ManifestDecision) string {
	if !strings.HasSuffix(d.Name, ".txt") {
		return ""
	}
	for _, line := range strings.Split(d.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if idx := strings.IndexAny(line, "=<>!~[; "); idx != -1 {
			line = line[:idx]
		}
		line = strings.ToLower(strings.ReplaceAll(line, "-", "_"))
		if identPattern.MatchString(line) {
			return line
		}
		return ""
	}
	return ""
}

// detectGUIImports returns the GUI toolkit names imported anywhere in the
// file set
func detectGUIImports(files FileSet) []string {
	gui := map[string]bool{}
	for _, path := range files.PythonFiles() {
		for _, match := range importPattern.FindAllStringSubmatch(files[path], -1) {
			if guiToolkits[match[1]] {
				gui[match[1]] = true
			}
		}
	}
	return sortedKeys(gui)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
