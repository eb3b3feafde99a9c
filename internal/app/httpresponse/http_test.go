package httpresponse

import (
	"testing"

	"github.com/form3tech-oss/pact-mock-server/internal/app/logging"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockServerErrorfLogsServerFields(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	err := MockServerErrorf("server-1", 4000, "unable to write pact file. %s", "disk full")

	assert.Equal(t, "unable to write pact file. disk full", err.Error())
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, log.ErrorLevel, entry.Level)
	assert.Equal(t, "server-1", entry.Data[logging.FieldMockServer])
	assert.Equal(t, 4000, entry.Data["port"])
}

func TestErrorf(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	err := Errorf("no mock server running on port %d", 1234)

	assert.Equal(t, "no mock server running on port 1234", err.ErrorMessage)
	require.NotNil(t, hook.LastEntry())
	assert.Empty(t, hook.LastEntry().Data)
}
