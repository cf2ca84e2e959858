package scenarios

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/models"
)

func runOne(t *testing.T, s Scenario, client *mockClient) error {
	t.Helper()
	recorder := NewRecorder(s.Name)
	sc := &ScenarioContext{
		Client:   client,
		Logger:   arbor.NewNoOpLogger(),
		Assert:   assertFor(recorder),
		recorder: recorder,
	}
	if err := s.Run(context.Background(), sc); err != nil {
		return err
	}
	return recorder.Err()
}

func smokeByName(t *testing.T, name string) Scenario {
	t.Helper()
	for _, s := range Smoke(common.NewDefaultConfig()) {
		if s.Name == name {
			return s
		}
	}
	require.FailNow(t, "scenario not found", name)
	return Scenario{}
}

func TestSmoke_Order(t *testing.T) {
	var names []string
	for _, s := range Smoke(common.NewDefaultConfig()) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{OpensAWindow, WindowIsVisible, RendersEditorHost, NoErrorsOrWarnings, SpawnsEngine}, names)
}

func TestSmoke_WindowCount(t *testing.T) {
	s := smokeByName(t, OpensAWindow)

	assert.NoError(t, runOne(t, s, healthyClient()))

	client := healthyClient()
	client.windows = 0
	err := runOne(t, s, client)
	assert.True(t, common.IsAssertion(err))
}

func TestSmoke_Visibility(t *testing.T) {
	s := smokeByName(t, WindowIsVisible)

	client := healthyClient()
	client.visible = false
	err := runOne(t, s, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not visible")
}

func TestSmoke_EditorHostElement(t *testing.T) {
	s := smokeByName(t, RendersEditorHost)

	assert.NoError(t, runOne(t, s, healthyClient()))

	client := healthyClient()
	client.element = nil
	err := runOne(t, s, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"neovim-editor"`)
}

func TestSmoke_NoErrorsOrWarnings(t *testing.T) {
	s := smokeByName(t, NoErrorsOrWarnings)

	client := healthyClient()
	client.logs = []models.LogEntry{
		{Level: models.LogLevelDebug, Message: "verbose"},
		{Level: models.LogLevelInfo, Message: "ready"},
	}
	assert.NoError(t, runOne(t, s, client))

	client.logs = append(client.logs,
		models.LogEntry{Level: models.LogLevelError, Message: "boom"},
		models.LogEntry{Level: models.LogLevelWarning, Message: "careful"},
	)
	err := runOne(t, s, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 error or warning entries")
	assert.Contains(t, err.Error(), "[error] boom; [warning] careful")
}

func TestSmoke_EngineStarted(t *testing.T) {
	s := smokeByName(t, SpawnsEngine)

	assert.NoError(t, runOne(t, s, healthyClient()))

	for _, value := range []any{false, nil, "true", 1.0} {
		client := healthyClient()
		client.started = value
		assert.True(t, common.IsAssertion(runOne(t, s, client)), "%v", value)
	}
}

func TestFilter(t *testing.T) {
	all := Smoke(common.NewDefaultConfig())

	assert.Len(t, Filter(all, nil), 5)

	kept := Filter(all, []string{"WINDOW"})
	require.Len(t, kept, 2)
	assert.Equal(t, OpensAWindow, kept[0].Name)
	assert.Equal(t, WindowIsVisible, kept[1].Name)

	kept = Filter(all, []string{"engine", "editor"})
	require.Len(t, kept, 2)
	assert.Equal(t, RendersEditorHost, kept[0].Name)
	assert.Equal(t, SpawnsEngine, kept[1].Name)

	assert.Empty(t, Filter(all, []string{"nothing matches"}))
}
