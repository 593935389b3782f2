package aiml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

func newTestKernel(t *testing.T, categories string) *Kernel {
	t.Helper()
	k := NewKernel(Config{
		Logger: logger.Discard(),
		Bot:    map[string]string{"name": "Chatter"},
		Rand:   func(n int) int { return n - 1 },
	})
	n, err := k.LearnReader(strings.NewReader(`<?xml version="1.0" encoding="UTF-8"?><aiml version="1.0">` + categories + `</aiml>`))
	require.NoError(t, err)
	require.Positive(t, n)
	return k
}

func TestRespondStarsAndPredicates(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>MY NAME IS *</pattern>
			<template>Hello <star/>! <think><set name="name"><star/></set></think></template></category>
		<category><pattern>WHAT IS MY NAME</pattern>
			<template>Your name is <get name="name"/>.</template></category>
		<category><pattern>WHO ARE YOU</pattern>
			<template>I am <bot name="name"/>.</template></category>`)

	assert.Equal(t, "Hello Alice!", k.Respond("my name is Alice", "s1"))
	assert.Equal(t, "Your name is Alice.", k.Respond("What is my name?", "s1"))
	assert.Equal(t, "Your name is .", k.Respond("what is my name", "s2"))
	assert.Equal(t, "I am Chatter.", k.Respond("who are you", "s2"))
	assert.Equal(t, "Alice", k.Predicate("name", "s1"))
}

func TestRespondWildcardPriority(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>HELLO *</pattern><template>greeting</template></category>
		<category><pattern>_ BYE</pattern><template>farewell</template></category>
		<category><pattern>*</pattern><template>fallback</template></category>`)

	assert.Equal(t, "greeting", k.Respond("hello world", "s"))
	assert.Equal(t, "farewell", k.Respond("hello bye", "s"))
	assert.Equal(t, "fallback", k.Respond("anything else", "s"))
	assert.Equal(t, "fallback", k.Respond("hello", "s"))
}

func TestRespondSrai(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>HELLO</pattern><template>Hi there</template></category>
		<category><pattern>HEY</pattern><template><srai>hello</srai></template></category>
		<category><pattern>PLEASE *</pattern><template><sr/></template></category>
		<category><pattern>LOOP</pattern><template><srai>LOOP</srai></template></category>`)

	assert.Equal(t, "Hi there", k.Respond("hey", "s"))
	assert.Equal(t, "Hi there", k.Respond("please hey", "s"))
	assert.Empty(t, k.Respond("loop", "s"))
}

func TestRespondThatContext(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>ASK</pattern><template>Do you like cheese?</template></category>
		<category><pattern>YES</pattern><that>DO YOU LIKE CHEESE</that><template>Great</template></category>`)

	assert.Empty(t, k.Respond("yes", "s"))
	assert.Equal(t, "Do you like cheese?", k.Respond("ask", "s"))
	assert.Equal(t, "Great", k.Respond("yes", "s"))
}

func TestRespondTopic(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>*</pattern><template>Anything</template></category>
		<category><pattern>PLAY</pattern><template><think><set name="topic">games</set></think>Sure</template></category>
		<topic name="GAMES">
			<category><pattern>*</pattern><template>Lets talk games</template></category>
		</topic>`)

	assert.Equal(t, "Anything", k.Respond("hello", "s"))
	assert.Equal(t, "Sure", k.Respond("play", "s"))
	assert.Equal(t, "Lets talk games", k.Respond("hello", "s"))
	assert.Equal(t, "Anything", k.Respond("hello", "other"))
}

func TestRespondTemplateTags(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>SHOUT *</pattern><template><uppercase><star/></uppercase></template></category>
		<category><pattern>WHISPER *</pattern><template><lowercase><star/></lowercase></template></category>
		<category><pattern>PICK</pattern><template><random><li>one</li><li>two</li><li>three</li></random></template></category>
		<category><pattern>MOOD</pattern><template><condition name="mood"><li value="happy">Yay</li><li>Meh</li></condition></template></category>
		<category><pattern>SAY *</pattern><template><formal><star/></formal></template></category>`)

	assert.Equal(t, "HELLO THERE", k.Respond("shout hello there", "s"))
	assert.Equal(t, "quiet", k.Respond("whisper QUIET", "s"))
	assert.Equal(t, "three", k.Respond("pick", "s"))
	assert.Equal(t, "Meh", k.Respond("mood", "s"))
	k.SetPredicate("mood", "HAPPY", "s")
	assert.Equal(t, "Yay", k.Respond("mood", "s"))
	assert.Equal(t, "Good Morning", k.Respond("say good MORNING", "s"))
}

func TestRespondSentences(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>HI</pattern><template>A</template></category>
		<category><pattern>BYE</pattern><template>B</template></category>`)

	assert.Equal(t, "A B", k.Respond("hi. bye!", "s"))
	assert.Equal(t, "A", k.Respond("hi? unknown", "s"))
	assert.Empty(t, k.Respond("", "s"))
}

func TestDuplicatePatternReplaces(t *testing.T) {
	k := newTestKernel(t, `
		<category><pattern>HI</pattern><template>old</template></category>
		<category><pattern>hi</pattern><template>new</template></category>`)

	assert.Equal(t, 1, k.NumCategories())
	assert.Equal(t, "new", k.Respond("hi", "s"))
}

func TestResetBrain(t *testing.T) {
	k := newTestKernel(t, `<category><pattern>HI</pattern><template>A</template></category>`)
	k.SetPredicate("name", "x", "s")

	k.ResetBrain()

	assert.Zero(t, k.NumCategories())
	assert.Empty(t, k.Respond("hi", "s"))
	assert.Empty(t, k.Predicate("name", "s"))
}

func TestLearnRejectsInvalidDocuments(t *testing.T) {
	k := NewKernel(Config{Logger: logger.Discard()})

	_, err := k.LearnReader(strings.NewReader(`<html></html>`))
	assert.ErrorContains(t, err, "want <aiml>")

	_, err = k.LearnReader(strings.NewReader(`<aiml><category>`))
	assert.Error(t, err)

	_, err = k.Learn(filepath.Join(t.TempDir(), "missing.aiml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLearnLatin1(t *testing.T) {
	doc := []byte(`<?xml version="1.0" encoding="ISO-8859-1"?><aiml><category><pattern>COFFEE</pattern><template>caf`)
	doc = append(doc, 0xE9)
	doc = append(doc, []byte(`</template></category></aiml>`)...)

	k := NewKernel(Config{Logger: logger.Discard()})
	_, err := k.LearnReader(strings.NewReader(string(doc)))
	require.NoError(t, err)
	assert.Equal(t, "café", k.Respond("coffee", "s"))
}

func writeScript(t *testing.T, path, pattern string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	body := `<aiml><category><pattern>` + pattern + `</pattern><template>` + strings.ToLower(pattern) + `</template></category></aiml>`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLearnDir(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "a.aiml"), "ALPHA")
	writeScript(t, filepath.Join(dir, "nested", "b.xml"), "BETA")
	writeScript(t, filepath.Join(dir, "notes.txt"), "GAMMA")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.aiml"), []byte("<aiml><category>"), 0o644))

	k := NewKernel(Config{Logger: logger.Discard()})
	n, err := k.LearnDir(dir)

	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Contains(t, err.Error(), "broken.aiml")
	assert.Equal(t, "alpha", k.Respond("alpha", "s"))
	assert.Equal(t, "beta", k.Respond("beta", "s"))
	assert.Empty(t, k.Respond("gamma", "s"))
}

func TestLearnDirWithoutScripts(t *testing.T) {
	k := NewKernel(Config{Logger: logger.Discard()})

	n, err := k.LearnDir(t.TempDir())
	assert.NoError(t, err)
	assert.Zero(t, n)

	n, err = k.LearnDir(filepath.Join(t.TempDir(), "absent"))
	assert.NoError(t, err)
	assert.Zero(t, n)
}
