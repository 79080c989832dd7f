package patch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/mendbox/sandbox"
)

// fakeLLM returns a canned response and records the prompts it was given
type fakeLLM struct {
	response string
	err      error
	system   string
	user     string
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestGeneratorGeneratePatch(t *testing.T) {
	files := sandbox.FileSet{"main.py": "print(1/0)\n"}

	t.Run("ParsesBlocksFromResponse", func(t *testing.T) {
		client := &fakeLLM{response: "<<FILENAME:main.py>>\nprint(1)\n<<END>>"}
		g := NewGenerator(zaptest.NewLogger(t), client)

		updates, err := g.GeneratePatch(context.Background(), files, "ZeroDivisionError")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"main.py": "print(1)"}, updates)

		assert.Contains(t, client.user, "<<FILENAME:main.py>>\nprint(1/0)\n")
		assert.Contains(t, client.user, "ZeroDivisionError")
		assert.Contains(t, client.system, "expert developer")
	})

	t.Run("UnparsableResponseYieldsEmptyMap", func(t *testing.T) {
		client := &fakeLLM{response: "I am unable to help with that."}
		g := NewGenerator(zaptest.NewLogger(t), client)

		updates, err := g.GeneratePatch(context.Background(), files, "boom")
		require.NoError(t, err)
		assert.Empty(t, updates)
	})

	t.Run("TransportErrorPropagates", func(t *testing.T) {
		client := &fakeLLM{err: errors.New("connection refused")}
		g := NewGenerator(zaptest.NewLogger(t), client)

		_, err := g.GeneratePatch(context.Background(), files, "boom")
		require.Error(t, err)
	})
}
