package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_LevelFollowsVerbose(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf})
	log.Debug("hidden")
	log.Info("shown", zap.String("profile", "ai"))
	_ = log.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, `"profile": "ai"`)

	buf.Reset()
	log = New(Options{Output: &buf, Verbose: true})
	log.Debug("now visible")
	_ = log.Sync()
	assert.Contains(t, buf.String(), "now visible")
	assert.Contains(t, buf.String(), "DEBUG")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
