package help

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/janaSunrise/AIML-discord-chatter-bot/internal/cogs/cogtest"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/command"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleSetup(s *extension.Scope) error {
	return s.AddCommand(
		&command.Command{
			Name:    "reset",
			Aliases: []string{"forget"},
			Help:    "Reset the conversation.\nLonger text.",
			Handler: func(context.Context, *command.Context) error { return nil },
		},
		&command.Command{
			Name:   "admin",
			Hidden: true,
			Subcommands: []*command.Command{
				{Name: "secret", Handler: func(context.Context, *command.Context) error { return nil }},
			},
		},
	)
}

func TestHelpListsVisibleCommands(t *testing.T) {
	b, api := cogtest.NewBot(t, map[string]extension.SetupFunc{
		ID:            Setup,
		"cogs.sample": sampleSetup,
	}, nil)

	require.True(t, b.Router().Dispatch(context.Background(), cogtest.Message("ada", "c1", "", "!help")))

	sent := api.Messages("c1")
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Embeds, 1)
	embed := sent[0].Embeds[0]
	assert.Equal(t, "Help", embed.Title)
	assert.Contains(t, embed.Description, "`!reset`\nReset the conversation.")
	assert.Contains(t, embed.Description, "`!help [command...]`")
	assert.NotContains(t, embed.Description, "admin")
	assert.Nil(t, embed.Footer, "a single page has no menu")
}

func TestHelpForOneCommand(t *testing.T) {
	b, api := cogtest.NewBot(t, map[string]extension.SetupFunc{
		ID:            Setup,
		"cogs.sample": sampleSetup,
	}, nil)
	ctx := context.Background()

	b.Router().Dispatch(ctx, cogtest.Message("ada", "c1", "", "!help forget"))
	sent := api.Messages("c1")
	require.Len(t, sent, 1)
	embed := sent[0].Embeds[0]
	assert.Equal(t, "`!reset`", embed.Title)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "`forget`", embed.Fields[0].Value)

	b.Router().Dispatch(ctx, cogtest.Message("ada", "c1", "", "!help admin secret"))
	sent = api.Messages("c1")
	require.Len(t, sent, 2)
	assert.Equal(t, "Invalid command syntax", sent[1].Embeds[0].Title)
}

func TestHelpPagination(t *testing.T) {
	var cmds []*command.Command
	for i := range 20 {
		cmds = append(cmds, &command.Command{Name: fmt.Sprintf("cmd%02d", i), Help: "Does a thing."})
	}

	pages := Pages("?", cmds)
	require.Len(t, pages, 3)
	assert.Contains(t, pages[0].Description, "`?cmd00`\nDoes a thing.")
	assert.Contains(t, pages[2].Description, "`?cmd19`")
}

func TestHelpMenuTimesOut(t *testing.T) {
	b, api := cogtest.NewBot(t, nil, nil)
	for i := range 10 {
		require.NoError(t, b.Router().Register("test", &command.Command{
			Name:    fmt.Sprintf("cmd%02d", i),
			Handler: func(context.Context, *command.Context) error { return nil },
		}))
	}

	cog := New(b.Router(), b.REST(), b.Bus())
	cog.Timeout = 20 * time.Millisecond
	require.NoError(t, b.Router().Register(ID, cog.Command()))

	b.Router().Dispatch(context.Background(), cogtest.Message("ada", "c1", "", "!help"))

	sent := api.Messages("c1")
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].Embeds[0].Footer)
	assert.Equal(t, "Page 1/2", sent[0].Embeds[0].Footer.Text)
	assert.Equal(t, []string{"◀", "▶", "⏹"}, api.Reactions())
}
