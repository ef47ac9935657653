package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/regionstore/image"
	"github.com/kjk/regionstore/region"
	"github.com/kjk/regionstore/rng"
	"github.com/kjk/regionstore/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores defaults because flag values survive between Execute calls
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	s, err := run(t, args...)
	assert.NoError(t, err, "%v", args)
	return s
}

func TestWrapString(t *testing.T) {
	s := wrapString("if set, logs, errors and events are also written to daily files in this directory")
	for _, line := range strings.Split(s, "\n") {
		assert.True(t, len(line) <= wrapAt, line)
	}
	assert.Equal(t, "", wrapString("  "))
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "storage.img.br")
	src := filepath.Join(dir, "main.py")
	assert.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	s := mustRun(t, "init", "--image", img, "--size", "512")
	assert.True(t, strings.HasPrefix(s, "created"), s)
	_, err := run(t, "init", "--image", img)
	assert.Error(t, err)

	mustRun(t, "put", "--image", img, "main.py", src)
	mustRun(t, "put", "--image", img, "--text", "readme", src)

	s = mustRun(t, "ls", "--image", img)
	lines := strings.Split(strings.TrimSpace(s), "\n")
	assert.Equal(t, 2, len(lines))
	assert.True(t, strings.HasSuffix(lines[0], "main.py"), s)
	assert.True(t, strings.HasSuffix(lines[1], "readme"), s)

	s = mustRun(t, "cat", "--image", img, "main.py")
	assert.Equal(t, "hello", s)
	s = mustRun(t, "cat", "--image", img, "--hex", "readme")
	assert.True(t, strings.Contains(s, "68 65 6c 6c 6f 00"), s)

	s = mustRun(t, "exists", "--image", img, "main.py")
	assert.Equal(t, "true\n", s)

	s = mustRun(t, "stats", "--image", img, "--json")
	assert.True(t, strings.Contains(s, `"Records": 2`), s)
	s = mustRun(t, "stats", "--image", img)
	assert.True(t, strings.Contains(s, "records: 2"), s)

	mustRun(t, "put", "--image", img, "--replace", "main.py", src)
	s = mustRun(t, "ls", "--image", img)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(s), "main.py"), s)

	mustRun(t, "rm", "--image", img, "main.py")
	s = mustRun(t, "exists", "--image", img, "main.py")
	assert.Equal(t, "false\n", s)
	_, err = run(t, "rm", "--image", img, "main.py")
	assert.True(t, errors.Is(err, store.ErrFileNotFound), "%v", err)

	_, err = run(t, "put", "--image", img, "", src)
	assert.True(t, errors.Is(err, store.ErrInvalidInput), "%v", err)
}

func TestFillAndDiff(t *testing.T) {
	dir := t.TempDir()
	imgA := filepath.Join(dir, "a.img")
	imgB := filepath.Join(dir, "b.img.zst")
	mustRun(t, "init", "--image", imgA, "--size", "256")
	mustRun(t, "init", "--image", imgB, "--size", "256")

	s := mustRun(t, "fill", "--image", imgA, "--count", "1000", "--seed", "7", "--max-size", "16")
	assert.True(t, strings.HasPrefix(s, "added "), s)
	assert.True(t, strings.HasSuffix(s, "(seed 7)\n"), s)
	assert.False(t, strings.HasPrefix(s, "added 1000 "), s)

	f, err := image.Open(imgA)
	assert.NoError(t, err)
	stats, err := store.New(f).Stats()
	assert.NoError(t, err)
	assert.True(t, stats.Free < 2+10+16, "free: %d", stats.Free)

	s = mustRun(t, "diff", imgA, imgB)
	assert.True(t, strings.HasPrefix(s, "--- "+imgA), s)
	assert.True(t, strings.Contains(s, "\n-fill-0000 "), s)
}

func TestFill(t *testing.T) {
	d, err := image.Blank(64)
	assert.NoError(t, err)
	st := store.New(region.NewBuffer(d))
	n, err := fill(st, rng.New(3, nil), 5, 0)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	stats, err := st.Stats()
	assert.NoError(t, err)
	assert.Equal(t, 5*(2+10), stats.Used)

	n, err = fill(st, rng.New(3, nil), 5, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRecordLines(t *testing.T) {
	d, err := image.Blank(128)
	assert.NoError(t, err)
	st := store.New(region.NewBuffer(d))
	assert.NoError(t, st.WriteString("t", "hi"))
	assert.NoError(t, st.WriteRaw("b", []byte{0xff, 1}))
	assert.NoError(t, st.WriteRaw("t", []byte("raw")))
	lines, err := recordLines(st)
	assert.NoError(t, err)
	assert.Equal(t, []string{"t 3 \"hi\"\n", "b 2 ff01\n", "t 3 \"raw\"\n"}, lines)
}

func TestEvents(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "storage.img")
	logDir := filepath.Join(dir, "logs")
	mustRun(t, "init", "--image", img, "--size", "256")
	src := filepath.Join(dir, "a.txt")
	assert.NoError(t, os.WriteFile(src, []byte("abc"), 0644))
	mustRun(t, "put", "--image", img, "--log-dir", logDir, "a", src)
	mustRun(t, "rm", "--image", img, "--log-dir", logDir, "a")

	s := mustRun(t, "events", "--log-dir", logDir)
	lines := strings.Split(strings.TrimSpace(s), "\n")
	assert.Equal(t, 2, len(lines), s)
	assert.True(t, strings.Contains(lines[0], " store.write "), s)
	assert.True(t, strings.Contains(lines[1], " store.erase "), s)

	_, err := run(t, "events", filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestLocate(t *testing.T) {
	storage, err := image.Blank(1024)
	assert.NoError(t, err)
	assert.NoError(t, store.New(region.NewBuffer(storage)).WriteRaw("x", []byte("1")))
	mem, err := region.NewDeviceMemory(region.FamilyN0120, 0x24010000, 0x24080000, storage)
	assert.NoError(t, err)

	dir := t.TempDir()
	dumpDir := filepath.Join(dir, "dump")
	assert.NoError(t, os.MkdirAll(dumpDir, 0755))
	assert.NoError(t, image.SaveDump(dumpDir, mem, ".zst"))

	out := filepath.Join(dir, "extracted.img")
	s := mustRun(t, "locate", dumpDir, "--extract", out)
	assert.True(t, strings.Contains(s, "family:  N0120"), s)
	assert.True(t, strings.Contains(s, "address: 0x24080000"), s)
	assert.True(t, strings.Contains(s, "size:    1024"), s)

	s = mustRun(t, "cat", "--image", out, "x")
	assert.Equal(t, "1", s)

	_, err = run(t, "locate", t.TempDir())
	assert.Error(t, err)
}
