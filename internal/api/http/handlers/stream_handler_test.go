package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/belgrano/ticketera/pkg/util/errorutil"
)

func TestParseWatermarks(t *testing.T) {
	watermarks, err := parseWatermarks("")
	require.NoError(t, err)
	assert.Nil(t, watermarks)

	watermarks, err = parseWatermarks("t1:3,t2:0")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"t1": 3, "t2": 0}, watermarks)

	// ticket ids may themselves contain colons
	watermarks, err = parseWatermarks("shop:1001:7")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"shop:1001": 7}, watermarks)

	for _, raw := range []string{"t1", ":3", "t1:abc", "t1:-1"} {
		_, err = parseWatermarks(raw)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeMalformedPayload), "input %q", raw)
	}
}
