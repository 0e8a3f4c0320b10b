package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWithFunctionTagsEveryMessage(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.Out = &buf
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	log := New(base).WithFunction("gcd")
	log.Infof("analysed")

	assert.Contains(t, buf.String(), "function=gcd")
	assert.Contains(t, buf.String(), "analysed")
}

func TestWithFieldAddsArbitraryKeyValue(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.Out = &buf
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	log := New(base).WithField("block", "0x1000")
	log.Warningf("unresolved dereference")

	assert.Contains(t, buf.String(), "block=0x1000")
}

func TestNewWithNilBaseUsesDefaultLogger(t *testing.T) {
	log := New(nil)
	assert.NotPanics(t, func() { log.Debugf("no base supplied") })
}
