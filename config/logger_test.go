package config

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger(t *testing.T) {
	l := logrus.New()
	c := NewC(l)
	require.NoError(t, c.LoadString("logging:\n  level: debug\n  format: json\n"))

	require.NoError(t, ConfigureLogger(l, c))
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	_, isJSON := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestConfigureLoggerRejectsUnknownFormat(t *testing.T) {
	l := logrus.New()
	c := NewC(l)
	require.NoError(t, c.LoadString("logging:\n  format: xml\n"))
	assert.Error(t, ConfigureLogger(l, c))
}
