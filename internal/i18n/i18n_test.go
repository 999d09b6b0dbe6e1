package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedCatalogs(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"en", "tr"}, m.Languages())

	en := m.Translator("en")
	assert.Equal(t, "Please log in first.", en.T("errors.not_authenticated"))

	tr := m.Translator("TR ")
	assert.Equal(t, "tr", tr.Lang())
	assert.Equal(t, "Lütfen önce giriş yapın.", tr.T("errors.not_authenticated"))
}

func TestTranslator_Fallbacks(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.yaml":   {Data: []byte("en:\n  greeting: hello\n  only_en: english\n")},
		"loc/de.yml":    {Data: []byte("de:\n  greeting: hallo\n")},
		"loc/notes.txt": {Data: []byte("ignored")},
	}

	m, err := LoadFS(fsys, "loc", "en")
	require.NoError(t, err)

	de := m.Translator("de")
	assert.Equal(t, "hallo", de.T("greeting"))
	assert.Equal(t, "english", de.T("only_en"))
	assert.Equal(t, "missing.key", de.T("missing.key"))

	unknown := m.Translator("fr")
	assert.Equal(t, "en", unknown.Lang())
}

func TestLoadFS_MissingDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/de.yaml": {Data: []byte("de:\n  greeting: hallo\n")},
	}

	_, err := LoadFS(fsys, "loc", "en")
	assert.Error(t, err)
}

func TestManager_Match(t *testing.T) {
	m, err := Load("en")
	require.NoError(t, err)

	testCases := []struct {
		name   string
		header string
		want   string
	}{
		{name: "empty header", header: "", want: "en"},
		{name: "region subtag", header: "tr-TR", want: "tr"},
		{name: "first supported wins", header: "de-DE,tr;q=0.8,en;q=0.5", want: "tr"},
		{name: "unsupported only", header: "fr, de", want: "en"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Match(tc.header).Lang())
		})
	}
}

func TestFormat(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.yaml": {Data: []byte("en:\n  daily:\n    claimed: \"+%s (streak %d)\"\n")},
	}
	m, err := LoadFS(fsys, "loc", "en")
	require.NoError(t, err)

	assert.Equal(t, "+1.50 (streak 2)", Format(m.Translator("en"), "daily.claimed", "1.50", 2))
	assert.Equal(t, "plain.key", Format(nil, "plain.key"))
}
