package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/forwardindex"
)

func TestObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	o.OnAddDocument("word", 5, time.Millisecond, nil)
	o.OnAddDocument("word", 3, time.Millisecond, nil)
	o.OnAddDocument("lemma", 9, time.Millisecond, errors.New("disk full"))
	o.OnDeleteDocument("word", nil)
	o.OnRetrieve("word", 2, time.Microsecond, nil)
	o.OnInitialize("lemma", time.Second, nil)
	o.OnMerge("lemma", 3, 1200, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.ops.WithLabelValues("word", "add", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.ops.WithLabelValues("lemma", "add", "error")))
	assert.Equal(t, 8.0, testutil.ToFloat64(o.positions.WithLabelValues("word")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.positions.WithLabelValues("lemma")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.ops.WithLabelValues("word", "delete", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.parts.WithLabelValues("word")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.merges.WithLabelValues("lemma")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(o.mergedTerms.WithLabelValues("lemma")))
	assert.Equal(t, 3.0, testutil.ToFloat64(o.segments.WithLabelValues("lemma")))

	n, err := testutil.GatherAndCount(reg, "forwardindex_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestNilRegisterer(t *testing.T) {
	o := NewObserver(nil)
	o.OnInitialize("word", time.Millisecond, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.ops.WithLabelValues("word", "initialize", "success")))
}

func TestWithForwardIndex(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	fi, err := forwardindex.Create(t.TempDir(), "contents", []string{"word"},
		forwardindex.WithMetricsObserver(o), forwardindex.WithoutBackgroundInit())
	require.NoError(t, err)

	_, err = fi.AddDocument(nil, map[string]forwardindex.Contents{
		"word": {Values: []string{"a", "b", ""}},
	})
	require.NoError(t, err)
	_, err = fi.Doc(0).RetrieveParts("word", []int{0}, []int{2})
	require.NoError(t, err)
	require.NoError(t, fi.Close())

	assert.Equal(t, 3.0, testutil.ToFloat64(o.positions.WithLabelValues("word")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.ops.WithLabelValues("word", "initialize", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.ops.WithLabelValues("word", "retrieve", "success")))
}
