package patch

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/isdmx/mendbox/sandbox"
)

// blockPattern matches one file replacement block. (?s) lets content span
// lines; the lazy captures stop at the first delimiter.
var blockPattern = regexp.MustCompile(`(?s)<<FILENAME:(.*?)>>\n(.*?)<<END>>`)

// systemPrompt instructs the model to return whole-file replacements in the
// block wire format
const systemPrompt = `You are an expert developer and code reviewer. Project files that failed to run or pass their tests will be shown to you together with the error output.

Your task:
1. Analyze the error and identify the root cause.
2. Fix the failing files. If the error happened while installing dependencies, fix the dependency manifest first: reorder entries, correct versions, add missing packages, remove conflicting ones.
3. Check for missing imports, syntax errors, and other problems.
4. If you change one file, update every related file so the project stays consistent.

Return each changed file as:
<<FILENAME:filename.ext>>
<file content>
<<END>>

Repeat for each file that needs changes. No explanations, just the fixed files.`

// Parse extracts file replacement blocks from a patch response. File names
// and content are whitespace-trimmed; names that would escape the workspace
// are dropped. Anything outside the delimiters is ignored, and malformed
// responses yield an empty map, never an error.
func Parse(response string) map[string]string {
	updates := map[string]string{}
	for _, match := range blockPattern.FindAllStringSubmatch(response, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" || !safePath(name) {
			continue
		}
		updates[name] = strings.TrimSpace(match[2])
	}
	return updates
}

// BuildPrompt renders the repair request for a failing file set: the system
// prompt and a user message carrying every current file plus the error
// output, files in sorted order.
func BuildPrompt(files sandbox.FileSet, stderr string) (system, user string) {
	var b strings.Builder
	b.WriteString("FILES:\n")
	for _, name := range files.SortedPaths() {
		fmt.Fprintf(&b, "<<FILENAME:%s>>\n%s\n<<END>>\n", name, files[name])
	}
	b.WriteString("\nERROR:\n")
	b.WriteString(stderr)
	return systemPrompt, b.String()
}

// safePath rejects names that point outside the workspace
func safePath(name string) bool {
	clean := path.Clean(name)
	return !path.IsAbs(clean) && clean != ".." && !strings.HasPrefix(clean, "../")
}
