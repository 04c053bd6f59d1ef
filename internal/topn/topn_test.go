package topn

import (
	"bytes"
	"cmp"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids[K cmp.Ordered](pairs []Pair[K]) []K {
	out := make([]K, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.ID)
	}
	return out
}

func TestSelectDescending(t *testing.T) {
	pairs := []Pair[string]{{"a", 3}, {"b", 9}, {"c", 1}, {"d", 7}, {"e", 5}}
	got := Select(pairs, 3, Descending, quiet())
	assert.Equal(t, []string{"b", "d", "e"}, ids(got))
}

func TestSelectAscending(t *testing.T) {
	pairs := []Pair[string]{{"a", 3}, {"b", 9}, {"c", 1}, {"d", 7}, {"e", 5}}
	got := Select(pairs, 2, Ascending, quiet())
	assert.Equal(t, []string{"c", "a"}, ids(got))
}

func TestSelectPoolSmallerThanN(t *testing.T) {
	pairs := []Pair[string]{{"a", 1}, {"b", 2}}
	got := Select(pairs, 5, Descending, quiet())
	assert.Equal(t, []string{"b", "a"}, ids(got))
}

func TestSelectWarnsWhenPoolDoesNotExceedN(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	pairs := []Pair[string]{{"a", 1}, {"b", 2}, {"c", 3}}

	got := Select(pairs, 3, Descending, logger)
	assert.Equal(t, []string{"c", "b", "a"}, ids(got))
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	Select(pairs, 2, Descending, logger)
	assert.Empty(t, buf.String())
}

func TestSelectTieBreakByID(t *testing.T) {
	pairs := []Pair[string]{{"z", 5}, {"m", 5}, {"a", 5}, {"q", 8}}
	got := Select(pairs, 3, Descending, quiet())
	assert.Equal(t, []string{"q", "a", "m"}, ids(got))

	reversed := []Pair[string]{{"q", 8}, {"a", 5}, {"m", 5}, {"z", 5}}
	assert.Equal(t, got, Select(reversed, 3, Descending, quiet()))
}

func TestSelectZeroOrNegativeN(t *testing.T) {
	pairs := []Pair[string]{{"a", 1}}
	assert.Empty(t, Select(pairs, 0, Descending, quiet()))
	assert.Empty(t, Select(pairs, -1, Ascending, quiet()))
}

func TestSelectDoesNotModifyInput(t *testing.T) {
	pairs := []Pair[int]{{3, 1}, {1, 3}, {2, 2}}
	_ = Select(pairs, 2, Descending, nil)
	assert.Equal(t, []Pair[int]{{3, 1}, {1, 3}, {2, 2}}, pairs)
}

func TestSelectBoundsExcludedValues(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		size := 1 + r.Intn(40)
		pairs := make([]Pair[int], size)
		for i := range pairs {
			pairs[i] = Pair[int]{ID: i, Value: float64(r.Intn(20))}
		}
		n := 1 + r.Intn(size)

		for _, order := range []Order{Descending, Ascending} {
			got := Select(pairs, n, order, nil)
			require.Len(t, got, n)

			kept := map[int]bool{}
			for i, p := range got {
				kept[p.ID] = true
				if i > 0 {
					if order == Descending {
						assert.GreaterOrEqual(t, got[i-1].Value, p.Value)
					} else {
						assert.LessOrEqual(t, got[i-1].Value, p.Value)
					}
				}
			}
			last := got[len(got)-1].Value
			for _, p := range pairs {
				if kept[p.ID] {
					continue
				}
				if order == Descending {
					assert.GreaterOrEqual(t, last, p.Value)
				} else {
					assert.LessOrEqual(t, last, p.Value)
				}
			}
		}
	}
}
