package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harunnryd/agrichat/pkg/agrichat"
	"github.com/harunnryd/agrichat/pkg/chat"
)

func TestParseLine(t *testing.T) {
	in, err := parseLine("Sɛn na nwura yi bɔ?")
	require.NoError(t, err)
	require.Equal(t, "Sɛn na nwura yi bɔ?", in.Text)

	in, err = parseLine(`{"text":"maize price","languageHint":"ha","location":"tamale"}`)
	require.NoError(t, err)
	require.Equal(t, "ha", in.LanguageHint)
	require.Equal(t, "tamale", in.Location)

	_, err = parseLine(`{"text":`)
	require.Error(t, err)
}

func TestRunREPLWritesOneLinePerTurn(t *testing.T) {
	cfg, err := agrichat.LoadConfig("")
	require.NoError(t, err)
	app, err := agrichat.NewEngine(context.Background(), agrichat.EngineOptions{Config: cfg, LogOutput: io.Discard, Banner: io.Discard})
	require.NoError(t, err)
	defer app.Close()

	conv := app.Hub().Open()
	defer conv.Close()

	input := strings.Join([]string{
		"What is the price of maize at the market?",
		"",
		`{"text":"Will it rain tomorrow?","languageHint":"ee"}`,
		`{"text":`,
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, runREPL(context.Background(), conv, strings.NewReader(input), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first, second chat.Output
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, "market", string(first.Intent))
	require.Equal(t, "catalog", first.Provider)
	require.Equal(t, "ee", second.DetectedLanguage)
	require.Contains(t, lines[2], "decode input")
}

func TestLoadEnvKeepsExistingValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AGRICHAT_DOTENV_NEW=loaded\nAGRICHAT_DOTENV_SET=file\n"), 0o600))
	t.Setenv("AGRICHAT_DOTENV_SET", "shell")
	t.Setenv("AGRICHAT_DOTENV_NEW", "")
	require.NoError(t, os.Unsetenv("AGRICHAT_DOTENV_NEW"))

	require.NoError(t, loadEnv(path))
	require.Equal(t, "loaded", os.Getenv("AGRICHAT_DOTENV_NEW"))
	require.Equal(t, "shell", os.Getenv("AGRICHAT_DOTENV_SET"))

	require.NoError(t, loadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestReplCommandRunsFromStdin(t *testing.T) {
	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader("Yaya yanayi zai kasance a gona ta yau?\n"))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"repl", "--env-file", ""})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	var res chat.Output
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &res))
	require.Equal(t, "weather", string(res.Intent))
	require.Equal(t, "ha", res.DetectedLanguage)
}
