package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

func TestParseCloudTraceHeader(t *testing.T) {
	sc, ok := parseCloudTraceHeader("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", sc.TraceID().String())
	assert.Equal(t, "0000000000000001", sc.SpanID().String())
	assert.True(t, sc.IsSampled())
	assert.True(t, sc.IsRemote())

	for _, header := range []string{"", "nope", "zz/1;o=1", "105445aa7843bc8bf206b12000100000/abc", "105445aa7843bc8bf206b12000100000/0"} {
		_, ok := parseCloudTraceHeader(header)
		assert.False(t, ok, header)
	}
}

func TestFormatCloudTraceHeaderRoundTrips(t *testing.T) {
	header := formatCloudTraceHeader(requestctx.TraceInfo{
		TraceID: "105445aa7843bc8bf206b12000100000",
		SpanID:  "00000000000004d2",
		Sampled: true,
	})
	assert.Equal(t, "105445aa7843bc8bf206b12000100000/1234;o=1", header)

	sc, ok := parseCloudTraceHeader(header)
	require.True(t, ok)
	assert.Equal(t, "00000000000004d2", sc.SpanID().String())
}
