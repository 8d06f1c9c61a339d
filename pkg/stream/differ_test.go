package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func cumulative(parts ...string) []Delta {
	ret := []Delta{}
	acc := ""
	for _, p := range parts {
		acc += p
		ret = append(ret, Delta{Content: acc, MessageID: "m"})
	}
	return ret
}

func TestDifferCumulative(t *testing.T) {
	inputs := [][]string{
		{"Hel", "lo", ", ", "world", "!"},
		{"one"},
		{"", "a", "", "b"},
		{"héllo ", "wörld ", "日本語"},
	}
	for _, parts := range inputs {
		d := NewDiffer(ContentCumulative)
		deltas := cumulative(parts...)

		var sb strings.Builder
		for i, delta := range deltas {
			out := d.Apply(delta)
			assert.Equal(t, parts[i], out.Content)
			assert.Equal(t, "m", out.MessageID)
			sb.WriteString(out.Content)
		}
		assert.Equal(t, deltas[len(deltas)-1].Content, sb.String())
	}
}

func TestDifferRepeatedPayloadEmitsNothing(t *testing.T) {
	d := NewDiffer(ContentCumulative)
	assert.Equal(t, "abc", d.Apply(Delta{Content: "abc"}).Content)
	assert.Equal(t, "", d.Apply(Delta{Content: "abc"}).Content)
	assert.Equal(t, "d", d.Apply(Delta{Content: "abcd"}).Content)
}

func TestDifferShorterPayload(t *testing.T) {
	d := NewDiffer(ContentCumulative)
	d.Apply(Delta{Content: "abcdef"})
	assert.Equal(t, "", d.Apply(Delta{Content: "abc"}).Content)
	assert.Equal(t, "d", d.Apply(Delta{Content: "abcd"}).Content)
}

func TestDifferReset(t *testing.T) {
	d := NewDiffer(ContentCumulative)
	d.Apply(Delta{Content: "first pass"})
	d.Reset()
	assert.Equal(t, "second", d.Apply(Delta{Content: "second"}).Content)
}

func TestDifferIncremental(t *testing.T) {
	d := NewDiffer(ContentIncremental)
	assert.Equal(t, "Hel", d.Apply(Delta{Content: "Hel"}).Content)
	assert.Equal(t, "lo", d.Apply(Delta{Content: "lo"}).Content)
	assert.Equal(t, "incremental", d.Mode().String())
}
