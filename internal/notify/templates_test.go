package notify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-scheduler/internal/notify"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTemplates_MergesOverDefaults(t *testing.T) {
	path := writeFile(t, `
scheduled:
  driver:
    title: "Trip for you"
    body: "{vehicle}: {summary}"
`)

	got, err := notify.LoadTemplates(path)

	require.NoError(t, err)
	assert.Equal(t, "Trip for you", got[notify.TemplateScheduled][notify.AudienceDriver].Title)
	// Untouched entries keep the built-in wording.
	assert.Equal(t, notify.DefaultTemplates()[notify.TemplateScheduled][notify.AudienceRequestor],
		got[notify.TemplateScheduled][notify.AudienceRequestor])
	assert.Equal(t, notify.DefaultTemplates()[notify.TemplateCancelled], got[notify.TemplateCancelled])
}

func TestLoadTemplates_RejectsUnknownNames(t *testing.T) {
	_, err := notify.LoadTemplates(writeFile(t, "parked:\n  driver:\n    title: x\n"))
	assert.ErrorContains(t, err, `unknown template "parked"`)

	_, err = notify.LoadTemplates(writeFile(t, "scheduled:\n  passenger:\n    title: x\n"))
	assert.ErrorContains(t, err, `unknown audience "passenger"`)
}

func TestLoadTemplates_MissingFile(t *testing.T) {
	_, err := notify.LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestTemplate_EventType(t *testing.T) {
	assert.Equal(t, "trip_rescheduled", string(notify.TemplateRescheduled.EventType()))
	assert.Equal(t, "trip_completed", string(notify.TemplateCompleted.EventType()))
}
