package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestBadgerLogrusAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	adapter := NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	adapter.Errorf("error %d", 1)
	adapter.Warningf("warning %d", 2)
	adapter.Infof("info %d", 3)
	adapter.Debugf("debug %d", 4)

	out := buf.String()
	assert.Contains(t, out, "error 1")
	assert.Contains(t, out, "warning 2")
	assert.Contains(t, out, "info 3")
	assert.Contains(t, out, "debug 4")
	assert.Contains(t, out, "component=badgerdb")
}

func TestKafkaLogrusAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	fn := KafkaLogrusAdapter(logger.WithField("component", "kafka"), logrus.ErrorLevel)
	fn("write failed: %s", "broker down")

	assert.Contains(t, buf.String(), "write failed: broker down")
}
