package patch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/mendbox/sandbox"
)

func TestParse(t *testing.T) {
	t.Run("SingleBlock", func(t *testing.T) {
		response := "<<FILENAME:main.py>>\nprint('fixed')\n<<END>>"
		assert.Equal(t, map[string]string{"main.py": "print('fixed')"}, Parse(response))
	})

	t.Run("MultipleBlocks", func(t *testing.T) {
		response := "<<FILENAME:main.py>>\nprint(1)\n<<END>>\n" +
			"<<FILENAME:requirements.txt>>\nnumpy\npandas\n<<END>>"
		updates := Parse(response)
		assert.Len(t, updates, 2)
		assert.Equal(t, "print(1)", updates["main.py"])
		assert.Equal(t, "numpy\npandas", updates["requirements.txt"])
	})

	t.Run("IgnoresSurroundingProse", func(t *testing.T) {
		response := "Here is the fix you asked for:\n\n" +
			"<<FILENAME:main.py>>\nprint('ok')\n<<END>>\n\n" +
			"Let me know if anything else fails."
		assert.Equal(t, map[string]string{"main.py": "print('ok')"}, Parse(response))
	})

	t.Run("TrimsNameWhitespace", func(t *testing.T) {
		response := "<<FILENAME: main.py >>\nprint(1)\n<<END>>"
		updates := Parse(response)
		assert.Contains(t, updates, "main.py")
	})

	t.Run("PreservesInteriorBlankLines", func(t *testing.T) {
		response := "<<FILENAME:main.py>>\ndef a():\n    pass\n\n\ndef b():\n    pass\n<<END>>"
		assert.Equal(t, "def a():\n    pass\n\n\ndef b():\n    pass", Parse(response)["main.py"])
	})

	t.Run("EmptyResponse", func(t *testing.T) {
		assert.Empty(t, Parse(""))
	})

	t.Run("MalformedBlocksDegradeToEmpty", func(t *testing.T) {
		assert.Empty(t, Parse("<<FILENAME:main.py>>\nno terminator here"))
		assert.Empty(t, Parse("I could not produce a fix, sorry."))
	})

	t.Run("DropsEscapingPaths", func(t *testing.T) {
		response := "<<FILENAME:../../etc/passwd>>\nowned\n<<END>>\n" +
			"<<FILENAME:/etc/shadow>>\nowned\n<<END>>\n" +
			"<<FILENAME:safe.py>>\nprint(1)\n<<END>>"
		updates := Parse(response)
		assert.Equal(t, map[string]string{"safe.py": "print(1)"}, updates)
	})

	t.Run("NestedPathsAllowed", func(t *testing.T) {
		response := "<<FILENAME:pkg/util.py>>\nX = 1\n<<END>>"
		assert.Equal(t, map[string]string{"pkg/util.py": "X = 1"}, Parse(response))
	})
}

func TestBuildPrompt(t *testing.T) {
	files := sandbox.FileSet{
		"b.py":             "print('b')\n",
		"a.py":             "print('a')\n",
		"requirements.txt": "flask\n",
	}
	system, user := BuildPrompt(files, "Traceback: ZeroDivisionError")

	require.NotEmpty(t, system)
	assert.Contains(t, system, "<<FILENAME:filename.ext>>")
	assert.Contains(t, system, "No explanations")

	assert.Contains(t, user, "<<FILENAME:a.py>>\nprint('a')\n\n<<END>>")
	assert.Contains(t, user, "ERROR:\nTraceback: ZeroDivisionError")
	// Files are rendered in sorted order
	assert.Less(t, strings.Index(user, "<<FILENAME:a.py>>"), strings.Index(user, "<<FILENAME:b.py>>"))
	assert.Less(t, strings.Index(user, "<<FILENAME:b.py>>"), strings.Index(user, "<<FILENAME:requirements.txt>>"))
}
