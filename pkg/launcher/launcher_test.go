package launcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecLauncher_ExitZero(t *testing.T) {
	p, err := ExecLauncher{}.Launch([]string{"sh", "-c", "echo hello"}, "")
	require.NoError(t, err)

	res, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello", strings.TrimSpace(string(res.Output)))
}

func TestExecLauncher_ExitCodePreserved(t *testing.T) {
	p, err := ExecLauncher{}.Launch([]string{"sh", "-c", "exit 6"}, "")
	require.NoError(t, err)

	res, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 6, res.ExitCode)
}

func TestExecLauncher_CombinedOutput(t *testing.T) {
	p, err := ExecLauncher{}.Launch([]string{"sh", "-c", "echo out; echo err 1>&2"}, "")
	require.NoError(t, err)

	res, err := p.Wait()
	require.NoError(t, err)
	assert.Contains(t, string(res.Output), "out")
	assert.Contains(t, string(res.Output), "err")
}

func TestExecLauncher_Kill(t *testing.T) {
	p, err := ExecLauncher{}.Launch([]string{"sleep", "30"}, "")
	require.NoError(t, err)

	p.Kill()
	res, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecLauncher_SpawnFailure(t *testing.T) {
	_, err := ExecLauncher{}.Launch([]string{"/nonexistent/binary"}, "")
	assert.Error(t, err)
}

func TestExecLauncher_EmptyCommand(t *testing.T) {
	_, err := ExecLauncher{}.Launch(nil, "")
	assert.Error(t, err)
}

func TestScratchDir(t *testing.T) {
	root := t.TempDir()
	dir, cleanup, err := ScratchDir(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "testfile"), []byte("x"), 0644))
	cleanup()

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
