package vangers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetServerMissingModel(t *testing.T) {
	s := NewAssetServer(nil, nil)
	_, _, err := s.LoadModel("does/not/exist.m3d")
	assert.Error(t, err)
}

func TestAssetIdsUnique(t *testing.T) {
	a := makeAssetId()
	b := makeAssetId()
	assert.NotEqual(t, a, b)
}

func TestDefaultLoggerLevels(t *testing.T) {
	logger := NewDefaultLogger("test", false)

	var out, errOut bytes.Buffer
	logger.out.SetOutput(&out)
	logger.err.SetOutput(&errOut)

	logger.Debugf("hidden %d", 1)
	assert.Empty(t, out.String())

	logger.SetDebug(true)
	require.True(t, logger.DebugEnabled())
	logger.Debugf("shown %d", 2)
	assert.Contains(t, out.String(), "DEBUG: shown 2")
	assert.Contains(t, out.String(), "[test]")

	logger.Infof("info")
	assert.Contains(t, out.String(), "INFO: info")

	logger.Warnf("warn")
	logger.Errorf("boom")
	assert.Contains(t, errOut.String(), "WARN: warn")
	assert.Contains(t, errOut.String(), "ERROR: boom")
}
