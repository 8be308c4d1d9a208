package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/publication-discovery-service/internal/domain"
)

func TestFallback(t *testing.T) {
	t.Run("returns first successful step", func(t *testing.T) {
		steps := []Step[string]{
			{Name: "primary", Run: func(ctx context.Context) (string, error) {
				return "", domain.NewSourceError("primary", domain.KindTransient, errors.New("down"))
			}},
			{Name: "secondary", Run: func(ctx context.Context) (string, error) {
				return "hit", nil
			}},
			{Name: "tertiary", Run: func(ctx context.Context) (string, error) {
				t.Fatal("tertiary should not run after a success")
				return "", nil
			}},
		}

		result, history, err := Fallback(context.Background(), steps)
		require.NoError(t, err)
		assert.Equal(t, "hit", result)
		require.Len(t, history, 2)
		assert.Error(t, history[0].Err)
		assert.NoError(t, history[1].Err)
	})

	t.Run("exhausts all steps and joins failures", func(t *testing.T) {
		steps := []Step[int]{
			{Name: "a", Run: func(ctx context.Context) (int, error) {
				return 0, domain.NewSourceError("a", domain.KindNotFound, nil)
			}},
			{Name: "b", Run: func(ctx context.Context) (int, error) {
				return 0, domain.NewSourceError("b", domain.KindTransient, errors.New("flaky"))
			}},
		}

		_, history, err := Fallback(context.Background(), steps)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrAllSourcesExhausted)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Len(t, history, 2)
	})

	t.Run("fatal failure does not abort the chain", func(t *testing.T) {
		steps := []Step[string]{
			{Name: "broken", Run: func(ctx context.Context) (string, error) {
				return "", domain.NewSourceError("broken", domain.KindFatal, errors.New("misconfigured"))
			}},
			{Name: "working", Run: func(ctx context.Context) (string, error) {
				return "ok", nil
			}},
		}

		result, _, err := Fallback(context.Background(), steps)
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
	})

	t.Run("rejected result is an empty step and the chain continues", func(t *testing.T) {
		steps := []Step[[]string]{
			{
				Name:   "mirror",
				Run:    func(ctx context.Context) ([]string, error) { return nil, nil },
				Accept: func(hits []string) bool { return len(hits) > 0 },
			},
			{
				Name:   "publisher",
				Run:    func(ctx context.Context) ([]string, error) { return []string{"hit"}, nil },
				Accept: func(hits []string) bool { return len(hits) > 0 },
			},
		}

		result, history, err := Fallback(context.Background(), steps)
		require.NoError(t, err)
		assert.Equal(t, []string{"hit"}, result)
		require.Len(t, history, 2)
		assert.ErrorIs(t, history[0].Err, ErrEmptyResult)
		assert.NoError(t, history[1].Err)
	})

	t.Run("abort stops the walk and surfaces the cause", func(t *testing.T) {
		diskFull := errors.New("write /out: no space left on device")
		steps := []Step[string]{
			{Name: "first", Run: func(ctx context.Context) (string, error) {
				return "", Abort(diskFull)
			}},
			{Name: "second", Run: func(ctx context.Context) (string, error) {
				t.Fatal("second should not run after an abort")
				return "", nil
			}},
		}

		_, history, err := Fallback(context.Background(), steps)
		require.Error(t, err)
		assert.Equal(t, diskFull, AbortCause(err))
		assert.Len(t, history, 1)
	})

	t.Run("empty chain is exhausted", func(t *testing.T) {
		_, history, err := Fallback[string](context.Background(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrAllSourcesExhausted)
		assert.Empty(t, history)
	})

	t.Run("respects context cancellation between steps", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		steps := []Step[string]{
			{Name: "first", Run: func(ctx context.Context) (string, error) {
				cancel()
				return "", domain.NewSourceError("first", domain.KindTransient, errors.New("down"))
			}},
			{Name: "second", Run: func(ctx context.Context) (string, error) {
				t.Fatal("second should not run after cancellation")
				return "", nil
			}},
		}

		_, _, err := Fallback(ctx, steps)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
