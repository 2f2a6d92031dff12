package lockfile

import (
	"encoding/binary"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hupe1980/mmarray/internal/fs"
	"github.com/hupe1980/mmarray/internal/header"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "LOCKFILE_HELPER_PATH"

// Exit codes of the helper process.
const (
	helperLocked    = 0
	helperContended = 2
	helperFailed    = 3
)

func TestMain(m *testing.M) {
	if path := os.Getenv(helperEnv); path != "" {
		os.Exit(helperTryLock(path))
	}
	os.Exit(m.Run())
}

func helperTryLock(path string) int {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return helperFailed
	}
	defer f.Close()
	if err := TryLock(f.Fd()); err != nil {
		if errors.Is(err, ErrLockContention) {
			return helperContended
		}
		return helperFailed
	}
	return helperLocked
}

// lockFromOtherProcess re-executes the test binary and tries to lock path there.
func lockFromOtherProcess(t *testing.T, path string) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(), helperEnv+"="+path)
	err := cmd.Run()
	if err == nil {
		return helperLocked
	}
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "helper failed to start: %v", err)
	return exitErr.ExitCode()
}

func testSpec() Spec {
	return Spec{
		Magic:       header.Magic{'T', 'E', 'S', 'T', 'F', 'I', 'L', 'E'},
		DataVersion: header.Version{0, 1, 0},
		Default:     []byte{1, 2},
	}
}

func testPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "file.bin")
}

func mustCreate(t *testing.T, path string) {
	t.Helper()
	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)
	require.NoError(t, lf.Close())
}

func TestOpen_CreatesPageAlignedFile(t *testing.T) {
	path := testPath(t)

	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)
	defer lf.Close()

	assert.True(t, lf.Created())
	assert.Equal(t, int64(4096), lf.Length())
	assert.Equal(t, int64(4096), lf.BodyOffset())
	assert.Equal(t, path, lf.Path())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), info.Size())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("TESTFILE"), raw[:8])
	for i := header.Size(2); i < len(raw); i++ {
		require.Zero(t, raw[i], "padding byte %d", i)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := testPath(t)
	mustCreate(t, path)

	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)
	defer lf.Close()

	assert.False(t, lf.Created())
	assert.Equal(t, int64(4096), lf.Length())
	assert.Empty(t, lf.Report().Mismatches)
	assert.Equal(t, []byte{1, 2}, lf.Header().Default)
}

func TestOpen_InvalidRecordSize(t *testing.T) {
	spec := testSpec()
	spec.Default = nil
	_, err := Open(testPath(t), spec, Options{})
	assert.ErrorIs(t, err, header.ErrInvalidRecordSize)
}

func TestOpen_NoCreate(t *testing.T) {
	_, err := Open(testPath(t), testSpec(), Options{NoCreate: true})
	assert.ErrorIs(t, err, os.ErrNotExist)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "open", ioErr.Op)
}

func TestOpen_InProcessExclusive(t *testing.T) {
	path := testPath(t)
	before := OpenCount()

	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)
	assert.Equal(t, before+1, OpenCount())

	_, err = Open(path, testSpec(), Options{})
	assert.ErrorIs(t, err, ErrLockContention)

	// A different path to the same inode is still the same file.
	link := path + ".link"
	require.NoError(t, os.Link(path, link))
	_, err = Open(link, testSpec(), Options{})
	assert.ErrorIs(t, err, ErrLockContention)

	require.NoError(t, lf.Close())
	assert.Equal(t, before, OpenCount())

	lf2, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)
	require.NoError(t, lf2.Close())
}

func TestHeld(t *testing.T) {
	path := testPath(t)
	mustCreate(t, path)

	other, err := os.Open(path)
	require.NoError(t, err)
	defer other.Close()

	held, err := Held(other.Fd())
	require.NoError(t, err)
	assert.False(t, held)

	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)

	held, err = Held(other.Fd())
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, lf.Close())
	held, err = Held(other.Fd())
	require.NoError(t, err)
	assert.False(t, held)
}

func TestOpen_IndependentDescriptorCannotLock(t *testing.T) {
	path := testPath(t)
	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)

	other, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer other.Close()

	assert.ErrorIs(t, TryLock(other.Fd()), ErrLockContention)

	require.NoError(t, lf.Close())
	require.NoError(t, TryLock(other.Fd()))
	require.NoError(t, Unlock(other.Fd()))
}

func TestOpen_CrossProcessExclusive(t *testing.T) {
	path := testPath(t)
	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)

	assert.Equal(t, helperContended, lockFromOtherProcess(t, path))

	require.NoError(t, lf.Close())
	assert.Equal(t, helperLocked, lockFromOtherProcess(t, path))
}

func TestOpen_ContentionFromOtherDescriptor(t *testing.T) {
	path := testPath(t)
	mustCreate(t, path)

	holder, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, TryLock(holder.Fd()))

	before := OpenCount()
	_, err = Open(path, testSpec(), Options{})
	assert.ErrorIs(t, err, ErrLockContention)
	assert.Equal(t, before, OpenCount())
}

func TestOpen_Corruption(t *testing.T) {
	hs := int64(header.Size(2))

	tests := []struct {
		name    string
		corrupt func(t *testing.T, path string)
		want    error
	}{
		{
			name: "magic",
			corrupt: func(t *testing.T, path string) {
				patch(t, path, 3, []byte{'X'})
			},
			want: header.ErrMagicMismatch,
		},
		{
			name: "truncated below header",
			corrupt: func(t *testing.T, path string) {
				require.NoError(t, os.Truncate(path, hs-1))
			},
			want: header.ErrTruncated,
		},
		{
			name: "one byte past body",
			corrupt: func(t *testing.T, path string) {
				require.NoError(t, os.Truncate(path, 4096+1))
			},
			want: ErrBodySizeMismatch,
		},
		{
			name: "cut into padding",
			corrupt: func(t *testing.T, path string) {
				require.NoError(t, os.Truncate(path, hs+10))
			},
			want: ErrBodySizeMismatch,
		},
		{
			name: "marker garbage",
			corrupt: func(t *testing.T, path string) {
				b := make([]byte, 2)
				binary.NativeEndian.PutUint16(b, 0xDEAD)
				patch(t, path, 8, b)
			},
			want: header.ErrEndiannessInvalid,
		},
		{
			name: "marker swapped",
			corrupt: func(t *testing.T, path string) {
				raw, err := os.ReadFile(path)
				require.NoError(t, err)
				patch(t, path, 8, []byte{raw[9], raw[8]})
			},
			want: header.ErrWrongEndianness,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testPath(t)
			mustCreate(t, path)
			tt.corrupt(t, path)

			before := OpenCount()
			_, err := Open(path, testSpec(), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, err, ErrLockContention)

			// A failed open leaves nothing behind.
			assert.Equal(t, before, OpenCount())
			assert.Equal(t, helperLocked, lockFromOtherProcess(t, path))
		})
	}
}

func TestOpen_BodyOfWholeRecords(t *testing.T) {
	path := testPath(t)
	mustCreate(t, path)
	require.NoError(t, os.Truncate(path, 4096+6))

	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)
	defer lf.Close()
	assert.Equal(t, int64(4096+6), lf.Length())
}

func TestOpen_VersionMismatch(t *testing.T) {
	path := testPath(t)
	mustCreate(t, path)

	spec := testSpec()
	spec.DataVersion = header.Version{0, 2, 0}

	lf, err := Open(path, spec, Options{})
	require.NoError(t, err)
	assert.True(t, lf.Report().VersionMismatch())
	assert.Equal(t, header.Version{0, 1, 0}, lf.Header().DataVersion)
	require.NoError(t, lf.Close())

	_, err = Open(path, spec, Options{Strict: true})
	assert.ErrorIs(t, err, header.ErrVersionMismatch)
}

func TestOpen_InitFailureReleasesEverything(t *testing.T) {
	path := testPath(t)
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("file.bin", fs.Fault{FailOnTruncate: true})

	before := OpenCount()
	_, err := Open(path, testSpec(), Options{FS: ffs})
	require.Error(t, err)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "truncate", ioErr.Op)
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, before, OpenCount())
	assert.Equal(t, helperLocked, lockFromOtherProcess(t, path))
}

func TestFile_ResizeSyncClose(t *testing.T) {
	path := testPath(t)
	lf, err := Open(path, testSpec(), Options{})
	require.NoError(t, err)

	require.NoError(t, lf.Resize(4096+20))
	assert.Equal(t, int64(4096+20), lf.Length())
	require.NoError(t, lf.Sync())

	assert.Error(t, lf.Resize(100))
	assert.Equal(t, int64(4096+20), lf.Length())

	require.NoError(t, lf.Close())
	require.NoError(t, lf.Close())
	assert.ErrorIs(t, lf.Resize(8192), ErrClosed)
	assert.ErrorIs(t, lf.Sync(), ErrClosed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(4096+20), info.Size())
}

func TestFile_ResizeFailureKeepsLength(t *testing.T) {
	path := testPath(t)
	ffs := fs.NewFaultyFS(nil)
	// The first truncate initializes the file; the next one fails.
	ffs.AddRule("file.bin", fs.Fault{FailTruncateAfter: 1})

	lf, err := Open(path, testSpec(), Options{FS: ffs})
	require.NoError(t, err)
	defer lf.Close()

	assert.ErrorIs(t, lf.Resize(8192), fs.ErrInjected)
	assert.Equal(t, int64(4096), lf.Length())
}

func TestFile_CloseFailureStillReleases(t *testing.T) {
	path := testPath(t)
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("file.bin", fs.Fault{FailOnClose: true})

	before := OpenCount()
	lf, err := Open(path, testSpec(), Options{FS: ffs})
	require.NoError(t, err)

	err = lf.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrInjected)

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "close", ioErr.Op)
	assert.Equal(t, before, OpenCount())
	assert.Equal(t, helperLocked, lockFromOtherProcess(t, path))
}

func TestIOError(t *testing.T) {
	err := &IOError{Op: "truncate", Path: "/x", Err: os.ErrPermission}
	assert.Equal(t, "truncate /x: permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NoError(t, ioErr("op", "p", nil))
}

func patch(t *testing.T, path string, off int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteAt(b, off)
	require.NoError(t, err)
}
