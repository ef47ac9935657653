package store

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/regionstore/region"
	"github.com/kjk/regionstore/rng"
)

func newTestStore(t *testing.T, size int) (*Store, []byte) {
	d := make([]byte, size)
	assert.NoError(t, Format(d))
	return New(region.NewBuffer(d)), d
}

func allZero(d []byte) bool {
	for _, b := range d {
		if b != 0 {
			return false
		}
	}
	return true
}

func mustFreeSlot(t *testing.T, st *Store) int {
	off, err := st.FreeSlot()
	assert.NoError(t, err)
	return off
}

func TestConcreteScenario(t *testing.T) {
	st, d := newTestStore(t, 128)
	assert.False(t, st.Exists("a"))

	err := st.WriteRaw("a", []byte{1, 2, 3})
	assert.NoError(t, err)
	// 2 size + "a\0" + 3
	assert.Equal(t, []byte{7, 0, 'a', 0, 1, 2, 3, 0}, d[4:12])

	content, err := st.ReadRaw("a")
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, content)
	assert.Equal(t, 3, len(content))

	assert.NoError(t, st.Erase("a"))
	assert.False(t, st.Exists("a"))
	assert.True(t, allZero(d[4:]))
	assert.NoError(t, Validate(&region.Region{Data: d}))
}

func TestRoundTrip(t *testing.T) {
	st, _ := newTestStore(t, 4096)
	g := rng.New(11, nil)
	tests := map[string][]byte{}
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("file%d.bin", i)
		content := make([]byte, g.Intn(100))
		g.Bytes(content)
		tests[name] = content
		assert.NoError(t, st.WriteRaw(name, content))
	}
	for name, exp := range tests {
		got, err := st.ReadRaw(name)
		assert.NoError(t, err)
		assert.True(t, bytes.Equal(exp, got), "content of %s differs", name)
	}
	// binary content with zeros and an empty record
	assert.NoError(t, st.WriteRaw("zeros", []byte{0, 0, 0}))
	assert.NoError(t, st.WriteRaw("empty", nil))
	got, err := st.ReadRaw("zeros")
	assert.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, got)
	got, err = st.ReadRaw("empty")
	assert.NoError(t, err)
	assert.Equal(t, 0, len(got))
	assert.True(t, st.Exists("empty"))
}

func TestReadRawIsView(t *testing.T) {
	st, _ := newTestStore(t, 64)
	assert.NoError(t, st.WriteRaw("x", []byte("abc")))
	d, err := st.ReadRaw("x")
	assert.NoError(t, err)
	d[0] = 'z'
	d2, err := st.ReadRawCopy("x")
	assert.NoError(t, err)
	assert.Equal(t, []byte("zbc"), d2)
	d2[1] = 'q'
	d3, _ := st.ReadRaw("x")
	assert.Equal(t, []byte("zbc"), d3)
}

func TestEraseRemovesReachability(t *testing.T) {
	st, _ := newTestStore(t, 256)
	for _, name := range []string{"a", "b", "c"} {
		assert.NoError(t, st.WriteString(name, "content of "+name))
	}
	assert.NoError(t, st.Erase("b"))
	assert.False(t, st.Exists("b"))
	_, err := st.ReadRaw("b")
	assert.True(t, errors.Is(err, ErrFileNotFound))
	err = st.Erase("b")
	assert.True(t, errors.Is(err, ErrFileNotFound))
}

func TestCompactionPreservesSurvivors(t *testing.T) {
	st, d := newTestStore(t, 256)
	assert.NoError(t, st.WriteRaw("A", []byte("aaaa")))
	assert.NoError(t, st.WriteRaw("B", []byte("bbbbbbbbbb")))
	assert.NoError(t, st.WriteRaw("C", []byte("cc")))
	recB, err := st.Lookup("B")
	assert.NoError(t, err)
	freeBefore := mustFreeSlot(t, st)

	assert.NoError(t, st.Erase("B"))
	freeAfter := mustFreeSlot(t, st)
	assert.Equal(t, freeBefore-recB.Size, freeAfter)
	assert.True(t, allZero(d[freeAfter:]))

	a, err := st.ReadRaw("A")
	assert.NoError(t, err)
	assert.Equal(t, []byte("aaaa"), a)
	c, err := st.ReadRaw("C")
	assert.NoError(t, err)
	assert.Equal(t, []byte("cc"), c)

	recC, err := st.Lookup("C")
	assert.NoError(t, err)
	assert.NoError(t, st.WriteRaw("D", []byte("d")))
	recD, err := st.Lookup("D")
	assert.NoError(t, err)
	assert.Equal(t, recC.End(), recD.Offset)

	var names []string
	for rec, err := range st.Records() {
		assert.NoError(t, err)
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"A", "C", "D"}, names)
}

func TestDuplicatesFirstMatch(t *testing.T) {
	st, _ := newTestStore(t, 128)
	assert.NoError(t, st.WriteRaw("x", []byte("first")))
	assert.NoError(t, st.WriteRaw("x", []byte("second")))
	d, err := st.ReadRaw("x")
	assert.NoError(t, err)
	assert.Equal(t, []byte("first"), d)

	stats, err := st.Stats()
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Records)

	var contents []string
	for rec, err := range st.Records() {
		assert.NoError(t, err)
		c, err := st.Content(rec)
		assert.NoError(t, err)
		contents = append(contents, string(c))
	}
	assert.Equal(t, []string{"first", "second"}, contents)

	// erasing uncovers the second
	assert.NoError(t, st.Erase("x"))
	d, err = st.ReadRaw("x")
	assert.NoError(t, err)
	assert.Equal(t, []byte("second"), d)
}

func TestCapacityBoundary(t *testing.T) {
	const size = 64
	st, d := newTestStore(t, size)
	free := mustFreeSlot(t, st)
	available := size - free
	// 2 + "f\0" + content == available
	n := available - 2 - 2

	err := st.WriteRaw("f", make([]byte, n+1))
	var oe *OverflowError
	assert.True(t, errors.As(err, &oe))
	assert.True(t, errors.Is(err, ErrStorageOverflow))
	assert.True(t, errors.Is(err, ErrInsufficientSpace))
	assert.Equal(t, available, oe.Available)
	assert.Equal(t, available+1, oe.Needed)
	assert.Equal(t, free, mustFreeSlot(t, st))
	assert.True(t, allZero(d[free:]))

	content := bytes.Repeat([]byte{0xAA}, n)
	assert.NoError(t, st.WriteRaw("f", content))
	assert.Equal(t, size, mustFreeSlot(t, st))
	got, err := st.ReadRaw("f")
	assert.NoError(t, err)
	assert.Equal(t, content, got)

	// region is full, no zero marker left
	err = st.WriteRaw("g", nil)
	assert.True(t, errors.Is(err, ErrStorageFull))
	assert.False(t, st.Exists("g"))

	// erasing a record at the very end of the region
	assert.NoError(t, st.Erase("f"))
	assert.True(t, allZero(d[4:]))
}

func TestOneByteLeft(t *testing.T) {
	st, _ := newTestStore(t, 4+7+1)
	assert.NoError(t, st.WriteRaw("a", []byte{1, 2, 3}))
	assert.Equal(t, 11, mustFreeSlot(t, st))
	err := st.WriteRaw("b", nil)
	var oe *OverflowError
	assert.True(t, errors.As(err, &oe))
	assert.Equal(t, 1, oe.Available)
	assert.True(t, st.Exists("a"))
}

func TestCorruptionDetection(t *testing.T) {
	st, d := newTestStore(t, 128)
	assert.NoError(t, st.WriteRaw("a", []byte("hello")))
	for _, hdr := range [][]byte{{0, 0, 0, 0}, {0xEE, 0x0B, 0xDD, 0xBA}, {0xBA, 0xDD, 0x0B, 0xEF}} {
		copy(d, hdr)
		err := st.WriteRaw("b", []byte("x"))
		var me *MagicError
		assert.True(t, errors.As(err, &me))
		assert.Equal(t, Magic, me.Expected)
		assert.True(t, errors.Is(err, ErrInvalidMagicNumber))
		assert.True(t, errors.Is(err, ErrInvalidStorage))

		_, err = st.ReadRaw("a")
		assert.True(t, errors.Is(err, ErrInvalidMagicNumber))
		assert.True(t, errors.Is(st.Erase("a"), ErrInvalidMagicNumber))
		assert.False(t, st.Exists("a"))
		_, err = st.ReadString("a")
		assert.True(t, errors.Is(err, ErrInvalidMagicNumber))
		_, err = st.Stats()
		assert.True(t, errors.Is(err, ErrInvalidMagicNumber))

		_, err = st.FreeSlot()
		assert.True(t, errors.Is(err, ErrStorageFull))
		assert.True(t, errors.Is(err, ErrInvalidMagicNumber))
	}
	copy(d, []byte{0xBA, 0xDD, 0x0B, 0xEE})
	assert.True(t, st.Exists("a"))
}

func TestTinyRegion(t *testing.T) {
	st := New(region.NewBuffer([]byte{0xBA, 0xDD}))
	_, err := st.ReadRaw("a")
	assert.True(t, errors.Is(err, ErrInvalidStorage))

	// header only
	d := make([]byte, 4)
	assert.NoError(t, Format(d))
	st = New(region.NewBuffer(d))
	assert.False(t, st.Exists("a"))
	err = st.WriteRaw("a", nil)
	assert.True(t, errors.Is(err, ErrStorageFull))
}

func TestCorruptRecords(t *testing.T) {
	st, d := newTestStore(t, 32)
	// size runs past region end
	d[4], d[5] = 200, 0
	_, err := st.ReadRaw("a")
	var ce *CorruptError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, 4, ce.Offset)
	assert.True(t, errors.Is(err, ErrInvalidStorage))
	assert.Error(t, st.WriteRaw("a", nil))

	// size too small
	d[4], d[5] = 1, 0
	_, err = st.ReadRaw("a")
	assert.True(t, errors.As(err, &ce))

	// name not terminated within the record
	assert.NoError(t, Format(d))
	d[4], d[5], d[6], d[7] = 4, 0, 'a', 'b'
	_, err = st.ReadRaw("a")
	assert.True(t, errors.As(err, &ce))

	for _, err := range st.Records() {
		assert.True(t, errors.Is(err, ErrInvalidStorage))
	}
}

func TestInvalidNames(t *testing.T) {
	st, _ := newTestStore(t, 1024)
	assert.True(t, errors.Is(st.WriteRaw("", nil), ErrInvalidInput))
	assert.True(t, errors.Is(st.WriteRaw("a\x00b", nil), ErrInvalidInput))
	long := string(bytes.Repeat([]byte{'n'}, MaxNameLen))
	assert.True(t, errors.Is(st.WriteRaw(long, nil), ErrInvalidInput))
	_, err := st.ReadRaw(long)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	name := long[:MaxNameLen-1]
	assert.NoError(t, st.WriteRaw(name, []byte{1}))
	assert.True(t, st.Exists(name))
	// prefix of an existing name doesn't match
	assert.False(t, st.Exists(name[:10]))
}

func TestRecordTooBigForSizeField(t *testing.T) {
	st, _ := newTestStore(t, 0x20000)
	err := st.WriteRaw("big", make([]byte, 0xFFFF))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.NoError(t, st.WriteRaw("big", make([]byte, 0xFFFF-2-4)))
	d, err := st.ReadRaw("big")
	assert.NoError(t, err)
	assert.Equal(t, 0xFFFF-2-4, len(d))
}

func TestStrings(t *testing.T) {
	st, _ := newTestStore(t, 1024)
	assert.NoError(t, st.WriteString("greeting", "héllo wörld"))
	s, err := st.ReadString("greeting")
	assert.NoError(t, err)
	assert.Equal(t, "héllo wörld", s)

	assert.NoError(t, st.WriteString("empty", ""))
	s, err = st.ReadString("empty")
	assert.NoError(t, err)
	assert.Equal(t, "", s)

	assert.NoError(t, st.WriteRaw("raw", []byte("no terminator")))
	_, err = st.ReadString("raw")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	assert.NoError(t, st.WriteRaw("bad", []byte{0xff, 0xfe, 0}))
	_, err = st.ReadString("bad")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	assert.NoError(t, st.WriteRaw("nothing", nil))
	_, err = st.ReadString("nothing")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = st.ReadString("missing")
	assert.True(t, errors.Is(err, ErrFileNotFound))

	long := string(bytes.Repeat([]byte{'t'}, MaxTextLen))
	assert.True(t, errors.Is(st.WriteString("long", long), ErrInvalidInput))
}

func TestReplace(t *testing.T) {
	st, _ := newTestStore(t, 64)
	assert.NoError(t, st.Replace("cfg", []byte("v1")))
	assert.NoError(t, st.WriteRaw("other", []byte("o")))
	assert.NoError(t, st.Replace("cfg", []byte("v2")))
	d, err := st.ReadRaw("cfg")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v2"), d)
	stats, err := st.Stats()
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Records)

	// content pointing into the region
	d, err = st.ReadRaw("other")
	assert.NoError(t, err)
	assert.NoError(t, st.Replace("cfg", d))
	d, _ = st.ReadRaw("cfg")
	assert.Equal(t, []byte("o"), d)

	// failed replace keeps old content
	err = st.Replace("cfg", make([]byte, 100))
	assert.True(t, errors.Is(err, ErrStorageOverflow))
	d, err = st.ReadRaw("cfg")
	assert.NoError(t, err)
	assert.Equal(t, []byte("o"), d)

	assert.NoError(t, st.Replace("new", []byte("n")))
	assert.True(t, st.Exists("new"))
}

func TestReplaceDuplicateKeepsFirst(t *testing.T) {
	st, d := newTestStore(t, 64)
	assert.NoError(t, st.WriteRaw("x", []byte("v1")))
	assert.NoError(t, st.WriteRaw("x", []byte("v2")))
	before := bytes.Clone(d)

	err := st.Replace("x", make([]byte, 100))
	var oe *OverflowError
	assert.True(t, errors.As(err, &oe), "%v", err)
	// 64 - 4 header - 2*6 records + 6 freed by the erase
	assert.Equal(t, 54, oe.Available)
	assert.Equal(t, 104, oe.Needed)
	assert.Equal(t, before, d)
	v, err := st.ReadRaw("x")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	// exactly fills the region once the first "x" is gone
	assert.NoError(t, st.Replace("x", make([]byte, 54-4)))
	v, err = st.ReadRaw("x")
	assert.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
	free, err := st.FreeSlot()
	assert.NoError(t, err)
	assert.Equal(t, 64, free)

	err = st.Replace("x", make([]byte, maxRecordSize))
	assert.True(t, errors.Is(err, ErrInvalidInput), "%v", err)
}

func TestOnChange(t *testing.T) {
	st, _ := newTestStore(t, 64)
	var log []string
	st.OnChange = func(op Op, name string, size int) {
		log = append(log, fmt.Sprintf("%s %s %d", op, name, size))
	}
	assert.NoError(t, st.WriteRaw("a", []byte{1}))
	assert.Error(t, st.Erase("zz"))
	assert.NoError(t, st.Erase("a"))
	assert.Equal(t, []string{"write a 5", "erase a 5"}, log)
}

func TestStats(t *testing.T) {
	st, _ := newTestStore(t, 100)
	stats, err := st.Stats()
	assert.NoError(t, err)
	assert.Equal(t, Stats{Size: 100, Used: 0, Free: 96, Records: 0}, stats)

	assert.NoError(t, st.WriteRaw("ab", []byte{1, 2}))
	stats, err = st.Stats()
	assert.NoError(t, err)
	assert.Equal(t, Stats{Size: 100, Used: 7, Free: 89, Records: 1}, stats)
}

func TestRecordsEarlyStop(t *testing.T) {
	st, _ := newTestStore(t, 128)
	for i := 0; i < 5; i++ {
		assert.NoError(t, st.WriteRaw(fmt.Sprintf("r%d", i), nil))
	}
	n := 0
	for range st.Records() {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestNoProvider(t *testing.T) {
	st := New(nil)
	_, err := st.ReadRaw("a")
	assert.True(t, errors.Is(err, region.ErrRegionUnavailable))
	_, err = st.FreeSlot()
	assert.True(t, errors.Is(err, region.ErrRegionUnavailable))

	// locator over memory without a device
	st = New(region.NewLocator(region.NewSegmentMemory()))
	assert.True(t, errors.Is(st.WriteRaw("a", nil), region.ErrRegionUnavailable))
}

func TestStoreOverLocator(t *testing.T) {
	storage := make([]byte, 512)
	assert.NoError(t, Format(storage))
	mem, err := region.NewDeviceMemory(region.FamilyN0120, 0x24010000, 0x90800000, storage)
	assert.NoError(t, err)
	st := New(region.NewLocator(mem))
	assert.NoError(t, st.WriteString("hello.py", "print(1)"))
	s, err := st.ReadString("hello.py")
	assert.NoError(t, err)
	assert.Equal(t, "print(1)", s)
	// written through to device memory
	assert.Equal(t, byte('h'), storage[6])
}

func TestNop(t *testing.T) {
	var s Storage = Nop{}
	assert.NoError(t, s.WriteRaw("a", []byte{1}))
	assert.NoError(t, s.WriteString("a", "x"))
	assert.NoError(t, s.Erase("a"))
	assert.False(t, s.Exists("a"))
	_, err := s.ReadRaw("a")
	assert.True(t, errors.Is(err, ErrInvalidStorage))
	text, err := s.ReadString("a")
	assert.True(t, errors.Is(err, ErrInvalidStorage))
	assert.Equal(t, "", text)
}
