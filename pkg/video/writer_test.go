package video

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/video-system/vrw/pkg/array"
)

func memoryWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := "mem://" + t.Name()
	w, err := OpenWriter(context.Background(), path, WriterConfig{Backend: MemoryBackend, FPS: 30})
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Close()
		DeleteMemoryClip(path)
	})
	return w, path
}

func TestWriterRoundTrip(t *testing.T) {
	path := "mem://" + t.Name()
	defer DeleteMemoryClip(path)

	frames := make([]*array.Array, 5)
	for i := range frames {
		f := array.New(array.Uint8, 3, 4, 3)
		f.Set(uint16(10*i), 1, 2, 0)
		frames[i] = f
	}

	err := WithWriter(context.Background(), path, WriterConfig{Backend: MemoryBackend, FPS: 24}, func(w *Writer) error {
		for _, f := range frames {
			if err := w.Write(f); err != nil {
				return err
			}
		}
		assert.Equal(t, 5, w.Len())
		assert.Equal(t, []int{3, 4, 3}, w.Shape())
		assert.Equal(t, array.Uint8, w.DType())
		return nil
	})
	require.NoError(t, err)

	r := openTest(t, path, ReaderConfig{})
	shape, err := r.Shape()
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3, 4, 3}, shape)
	assert.Equal(t, 24.0, r.FPS())

	for i, want := range frames {
		got, err := r.Frame(i)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "frame %d", i)
	}
}

func TestWriterGrayFrames(t *testing.T) {
	w, path := memoryWriter(t)

	require.NoError(t, w.Write(array.New(array.Uint16, 4, 6)))
	require.NoError(t, w.Write(array.New(array.Uint16, 4, 6)))
	require.NoError(t, w.Close())

	r := openTest(t, path, ReaderConfig{})
	shape, err := r.Shape()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, shape)
}

func TestWriterShapeLocked(t *testing.T) {
	w, _ := memoryWriter(t)
	assert.Nil(t, w.Shape())

	require.NoError(t, w.Write(array.New(array.Uint8, 4, 6, 3)))

	err := w.Write(array.New(array.Uint8, 4, 5, 3))
	assert.ErrorIs(t, err, ErrShape)
	err = w.Write(array.New(array.Uint8, 4, 6))
	assert.ErrorIs(t, err, ErrShape)
	err = w.Write(array.New(array.Uint16, 4, 6, 3))
	assert.ErrorIs(t, err, ErrType)
	err = w.Write(nil)
	assert.ErrorIs(t, err, ErrShape)

	assert.Equal(t, 1, w.Len(), "rejected frames are not counted")
	require.NoError(t, w.Write(array.New(array.Uint8, 4, 6, 3)))
	assert.Equal(t, 2, w.Len())
}

func TestWriterRejectsInvalidFirstFrame(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
	}{
		{"vector", []int{16}},
		{"two channels", []int{4, 4, 2}},
		{"four axes", []int{2, 4, 4, 3}},
		{"empty", []int{0, 4, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := memoryWriter(t)
			err := w.Write(array.New(array.Uint8, tt.shape...))
			assert.ErrorIs(t, err, ErrShape)
			assert.Equal(t, 0, w.Len())
		})
	}

	t.Run("rgba", func(t *testing.T) {
		w, _ := memoryWriter(t)
		assert.NoError(t, w.Write(array.New(array.Uint8, 2, 2, 4)))
	})
}

func TestWriterClosed(t *testing.T) {
	w, _ := memoryWriter(t)
	require.NoError(t, w.Write(array.New(array.Uint8, 2, 2)))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	err := w.Write(array.New(array.Uint8, 2, 2))
	assert.ErrorIs(t, err, ErrState)
	assert.Equal(t, 1, w.Len())
}

func TestWriterCloseWithoutFrames(t *testing.T) {
	w, path := memoryWriter(t)
	require.NoError(t, w.Close())

	_, err := OpenReader(context.Background(), path, ReaderConfig{Backend: MemoryBackend})
	assert.ErrorIs(t, err, ErrBackend, "nothing was committed")
}

func TestOpenWriterErrors(t *testing.T) {
	for _, fps := range []float64{0, -25} {
		_, err := OpenWriter(context.Background(), "mem://x", WriterConfig{Backend: MemoryBackend, FPS: fps})
		assert.ErrorIs(t, err, ErrConfig, "fps %v", fps)
	}

	_, err := OpenWriter(context.Background(), "mem://x", WriterConfig{Backend: "no-such-backend", FPS: 0})
	assert.ErrorIs(t, err, ErrConfig, "settings are checked before the backend")

	_, err = OpenWriter(context.Background(), "mem://x", WriterConfig{Backend: "no-such-backend", FPS: 30})
	assert.ErrorIs(t, err, ErrBackend)
}

func TestWithWriterClosesOnError(t *testing.T) {
	path := "mem://" + t.Name()
	defer DeleteMemoryClip(path)
	fail := errors.New("fail")

	var kept *Writer
	err := WithWriter(context.Background(), path, WriterConfig{Backend: MemoryBackend, FPS: 30}, func(w *Writer) error {
		kept = w
		if err := w.Write(array.New(array.Uint8, 2, 2, 3)); err != nil {
			return err
		}
		return fail
	})
	assert.ErrorIs(t, err, fail)
	assert.ErrorIs(t, kept.Write(array.New(array.Uint8, 2, 2, 3)), ErrState)

	// frames written before the failure are still finalized
	r := openTest(t, path, ReaderConfig{})
	n, err := r.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWriterIDsAreUnique(t *testing.T) {
	a, _ := memoryWriter(t)
	b, err := OpenWriter(context.Background(), "mem://other", WriterConfig{Backend: MemoryBackend, FPS: 30})
	require.NoError(t, err)
	defer b.Close()

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
