package extension

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/eventbus"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/metrics"
)

type fixture struct {
	catalog  *Catalog
	router   *command.Router
	bus      *eventbus.Bus
	metrics  *metrics.Metrics
	registry *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog: NewCatalog(),
		router:  command.NewRouter(command.Config{Prefix: "!", Logger: logger.Discard()}),
		bus:     eventbus.New(logger.Discard()),
		metrics: metrics.New(),
	}
	f.registry = NewRegistry(Config{
		Namespace: "cogs",
		Sources:   []Source{f.catalog},
		Router:    f.router,
		Bus:       f.bus,
		Host:      "host",
		Metrics:   f.metrics,
		Logger:    logger.Discard(),
	})
	return f
}

func commandSetup(name string) SetupFunc {
	return func(s *Scope) error {
		if err := s.AddCommand(&command.Command{Name: name}); err != nil {
			return err
		}
		s.Listen(eventbus.EventMessage, func(context.Context, any) error { return nil })
		return nil
	}
}

func requireKind(t *testing.T, err error, kind errors.Kind) *errors.Failure {
	t.Helper()
	require.Error(t, err)
	f, ok := errors.As(err)
	require.True(t, ok, "not a failure: %v", err)
	require.Equal(t, kind, f.Kind)
	return f
}

func TestDiscoverFiltersAndOrders(t *testing.T) {
	cat := NewCatalog()
	cat.RegisterSetup("cogs.c_with_setup", commandSetup("c"))
	cat.Register("cogs.b_without_setup", struct{}{})
	cat.RegisterSetup("cogs._private", commandSetup("p"))
	cat.RegisterSetup("cogs.a", commandSetup("a"))
	cat.RegisterSetup("other.z", commandSetup("z"))

	res, err := Discover("cogs", cat)

	require.NoError(t, err)
	assert.Equal(t, []string{"cogs.a", "cogs.c_with_setup"}, res.IDs())
	assert.Equal(t, []string{"cogs.b_without_setup"}, res.NoEntryPoint)
}

func TestDiscoverCollectsImportFailures(t *testing.T) {
	cat := NewCatalog()
	cat.RegisterImporter("cogs.broken", func() (any, error) { return nil, stderrors.New("syntax error") })
	cat.RegisterImporter("cogs.panics", func() (any, error) { panic("init blew up") })
	cat.RegisterSetup("cogs.zeta", commandSetup("zeta"))

	res, err := Discover("cogs", cat)

	assert.Equal(t, []string{"cogs.zeta"}, res.IDs())
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.True(t, errors.IsKind(e, errors.KindDiscoveryFailed))
	}
	f, _ := errors.As(errs[0])
	assert.Equal(t, "cogs.broken", f.Context.Extension)
}

func TestDiscoverFirstSourceWins(t *testing.T) {
	first := NewCatalog()
	second := NewCatalog()
	var used string
	first.RegisterSetup("cogs.dup", func(*Scope) error { used = "first"; return nil })
	second.RegisterSetup("cogs.dup", func(*Scope) error { used = "second"; return nil })

	res, err := Discover("cogs", first, second)
	require.NoError(t, err)
	require.Len(t, res.Found, 1)
	require.NoError(t, res.Found[0].Entry.Setup(nil))
	assert.Equal(t, "first", used)
}

func TestPluginDirMissingIsEmpty(t *testing.T) {
	mods, err := PluginDir{Dir: t.TempDir() + "/absent"}.Modules("cogs")
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestLoadUnloadLifecycle(t *testing.T) {
	f := newFixture(t)
	f.catalog.RegisterSetup("cogs.chat", commandSetup("reset"))
	require.NoError(t, f.registry.Refresh(context.Background()))

	rec, ok := f.registry.Record("cogs.chat")
	require.True(t, ok)
	assert.Equal(t, StatusUnloaded, rec.Status)

	require.NoError(t, f.registry.Load(context.Background(), "cogs.chat"))
	rec, _ = f.registry.Record("cogs.chat")
	assert.Equal(t, StatusLoaded, rec.Status)
	assert.Equal(t, []string{"reset"}, rec.Commands)
	assert.NotNil(t, f.router.Get("reset"))
	assert.Equal(t, 1, f.bus.Count(eventbus.EventMessage))
	expected := `
# HELP chatbot_extensions Number of known extensions per status
# TYPE chatbot_extensions gauge
chatbot_extensions{status="failed"} 0
chatbot_extensions{status="loaded"} 1
chatbot_extensions{status="unloaded"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(f.metrics.Registry(), strings.NewReader(expected), "chatbot_extensions"))

	require.NoError(t, f.registry.Unload(context.Background(), "cogs.chat"))
	rec, _ = f.registry.Record("cogs.chat")
	assert.Equal(t, StatusUnloaded, rec.Status)
	assert.Nil(t, f.router.Get("reset"))
	assert.Zero(t, f.bus.Count(eventbus.EventMessage))
}

func TestLoadAlreadyLoadedLeavesStatus(t *testing.T) {
	f := newFixture(t)
	f.catalog.RegisterSetup("cogs.core", commandSetup("ping"))
	require.NoError(t, f.registry.Refresh(context.Background()))
	require.NoError(t, f.registry.Load(context.Background(), "cogs.core"))
	before, _ := f.registry.Record("cogs.core")

	err := f.registry.Load(context.Background(), "cogs.core")

	failure := requireKind(t, err, errors.KindExtensionAlreadyLoaded)
	assert.Equal(t, "cogs.core", failure.Context.Extension)
	after, _ := f.registry.Record("cogs.core")
	assert.Equal(t, before, after)
}

func TestUnloadAndReloadRequireLoaded(t *testing.T) {
	f := newFixture(t)
	f.catalog.RegisterSetup("cogs.help", commandSetup("help"))
	require.NoError(t, f.registry.Refresh(context.Background()))

	requireKind(t, f.registry.Unload(context.Background(), "cogs.help"), errors.KindExtensionNotLoaded)
	requireKind(t, f.registry.Reload(context.Background(), "cogs.help"), errors.KindExtensionNotLoaded)
	requireKind(t, f.registry.Reload(context.Background(), "cogs.unknown"), errors.KindExtensionNotLoaded)

	rec, _ := f.registry.Record("cogs.help")
	assert.Equal(t, StatusUnloaded, rec.Status)
	assert.Zero(t, rec.Loads)
	assert.NoError(t, rec.LastError)
}

func TestLoadUnknownAndNoEntryPoint(t *testing.T) {
	f := newFixture(t)
	f.catalog.Register("cogs.empty", 42)
	require.NoError(t, f.registry.Refresh(context.Background()))

	requireKind(t, f.registry.Load(context.Background(), "cogs.nope"), errors.KindExtensionNotFound)
	failure := requireKind(t, f.registry.Load(context.Background(), "cogs.empty"), errors.KindNoEntryPoint)
	assert.Equal(t, "Extension 'cogs.empty' has no 'setup' function.", failure.Message)
}

func TestFailedSetupIsReleasedAndRetained(t *testing.T) {
	f := newFixture(t)
	cleaned := false
	f.catalog.RegisterSetup("cogs.bad", func(s *Scope) error {
		s.OnUnload(func() { cleaned = true })
		if err := s.AddCommand(&command.Command{Name: "half"}); err != nil {
			return err
		}
		return stderrors.New("database offline")
	})
	require.NoError(t, f.registry.Refresh(context.Background()))

	err := f.registry.Load(context.Background(), "cogs.bad")

	failure := requireKind(t, err, errors.KindExtensionFailed)
	assert.Equal(t, "Extension 'cogs.bad' raised an error: errors.errorString: database offline", failure.Message)
	assert.Nil(t, f.router.Get("half"))
	assert.True(t, cleaned)

	rec, _ := f.registry.Record("cogs.bad")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Same(t, failure, rec.LastError)
}

func TestSetupPanicBecomesFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.RegisterSetup("cogs.boom", func(*Scope) error { panic("oops") })
	require.NoError(t, f.registry.Refresh(context.Background()))

	err := f.registry.Load(context.Background(), "cogs.boom")
	requireKind(t, err, errors.KindExtensionFailed)

	var panicErr *errors.PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "oops", panicErr.Value)
}

func TestReloadFailureEndsUnloaded(t *testing.T) {
	f := newFixture(t)
	healthy := true
	f.catalog.RegisterSetup("cogs.chat", func(s *Scope) error {
		if !healthy {
			return stderrors.New("brain files missing")
		}
		return s.AddCommand(&command.Command{Name: "reset"})
	})
	require.NoError(t, f.registry.Refresh(context.Background()))
	require.NoError(t, f.registry.Load(context.Background(), "cogs.chat"))

	healthy = false
	err := f.registry.Reload(context.Background(), "cogs.chat")

	requireKind(t, err, errors.KindExtensionFailed)
	rec, _ := f.registry.Record("cogs.chat")
	assert.Equal(t, StatusUnloaded, rec.Status)
	assert.Same(t, err, rec.LastError)
	assert.Nil(t, f.router.Get("reset"))

	healthy = true
	require.NoError(t, f.registry.Load(context.Background(), "cogs.chat"))
	rec, _ = f.registry.Record("cogs.chat")
	assert.Equal(t, StatusLoaded, rec.Status)
	assert.NoError(t, rec.LastError)
	assert.Equal(t, 2, rec.Loads)
}

func TestReloadRunsTeardownAndCleanups(t *testing.T) {
	f := newFixture(t)
	ext := &tracked{}
	f.catalog.Register("cogs.tracked", ext)
	require.NoError(t, f.registry.Refresh(context.Background()))
	require.NoError(t, f.registry.Load(context.Background(), "cogs.tracked"))

	require.NoError(t, f.registry.Reload(context.Background(), "cogs.tracked"))

	assert.Equal(t, []string{"setup", "teardown", "cleanup", "setup"}, ext.calls)
	assert.Equal(t, "host", ext.host)
}

type tracked struct {
	calls []string
	host  any
}

func (x *tracked) Setup(s *Scope) error {
	x.calls = append(x.calls, "setup")
	x.host = s.Host()
	s.OnUnload(func() { x.calls = append(x.calls, "cleanup") })
	return nil
}

func (x *tracked) Teardown(*Scope) error {
	x.calls = append(x.calls, "teardown")
	return stderrors.New("ignored")
}

func TestLoadAllIsFailFast(t *testing.T) {
	f := newFixture(t)
	f.catalog.RegisterSetup("cogs.a", commandSetup("a"))
	f.catalog.RegisterSetup("cogs.b", func(*Scope) error { return stderrors.New("b failed") })
	f.catalog.RegisterSetup("cogs.c", commandSetup("c"))
	require.NoError(t, f.registry.Refresh(context.Background()))

	err := f.registry.LoadAll(context.Background())

	failure := requireKind(t, err, errors.KindExtensionFailed)
	assert.Equal(t, "cogs.b", failure.Context.Extension)
	statuses := map[string]Status{}
	for _, rec := range f.registry.Records() {
		statuses[rec.ID] = rec.Status
	}
	assert.Equal(t, map[string]Status{
		"cogs.a": StatusLoaded,
		"cogs.b": StatusFailed,
		"cogs.c": StatusUnloaded,
	}, statuses)
	assert.Equal(t, map[string]int{"loaded": 1, "failed": 1, "unloaded": 1}, f.registry.Counts())

	require.NoError(t, f.registry.UnloadAll(context.Background()))
	assert.Equal(t, 0, f.router.Len())
}

func TestRecordsSurviveRefresh(t *testing.T) {
	f := newFixture(t)
	f.catalog.RegisterSetup("cogs.core", commandSetup("ping"))
	require.NoError(t, f.registry.Refresh(context.Background()))
	require.NoError(t, f.registry.Load(context.Background(), "cogs.core"))

	f.catalog.RegisterSetup("cogs.extra", commandSetup("extra"))
	require.NoError(t, f.registry.Refresh(context.Background()))

	assert.Equal(t, []string{"cogs.core", "cogs.extra"}, f.registry.IDs())
	rec, _ := f.registry.Record("cogs.core")
	assert.Equal(t, StatusLoaded, rec.Status)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	f.catalog.RegisterSetup("cogs.chat", commandSetup("reset"))
	require.NoError(t, f.registry.Refresh(context.Background()))

	assert.Equal(t, "cogs.chat", f.registry.Resolve("chat"))
	assert.Equal(t, "cogs.chat", f.registry.Resolve("cogs.chat"))
	assert.Equal(t, "cogs.missing", f.registry.Resolve("missing"))
}
