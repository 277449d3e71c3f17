package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/models"
)

const (
	stubPageID = "page-1"
	stubToken  = "EAAtesttoken"
)

// graphStub serves the Graph endpoints the CLI uses.
type graphStub struct {
	mu    sync.Mutex
	sends []map[string]any
	auth  []string
}

func (g *graphStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/"+stubPageID+"/conversations":
		io.WriteString(w, `{"data":[
			{"id":"c-100","participants":{"data":[{"id":"page-1","name":"Shop"},{"id":"R1","name":"Alice"}]},
			 "messages":{"data":[{"id":"m-2","message":"see you","from":{"id":"R1","name":"Alice"},"created_time":"2024-03-01T12:05:00+0000"}]}},
			{"id":"c-200","participants":{"data":[{"id":"page-1","name":"Shop"},{"id":"R2","name":"Bob"}]},
			 "messages":{"data":[{"id":"m-9","message":"hello?","from":{"id":"R2","name":"Bob"},"created_time":"2024-03-01T13:00:00+0000"}]}}
		]}`)
	case r.Method == http.MethodGet && r.URL.Path == "/c-100/messages":
		io.WriteString(w, `{"data":[
			{"id":"m-2","message":"see you","from":{"id":"R1","name":"Alice"},"created_time":"2024-03-01T12:05:00+0000"},
			{"id":"m-1","message":"hi shop","from":{"id":"R1","name":"Alice"},"created_time":"2024-03-01T12:00:00+0000"}
		]}`)
	case r.Method == http.MethodGet && r.URL.Path == "/c-200/messages":
		io.WriteString(w, `{"data":[]}`)
	case r.Method == http.MethodPost && r.URL.Path == "/"+stubPageID+"/messages":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.sends = append(g.sends, body)
		g.auth = append(g.auth, r.Header.Get("Authorization"))
		g.mu.Unlock()
		io.WriteString(w, `{"recipient_id":"R1","message_id":"m-3"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"Unknown path","type":"GraphMethodException","code":100}}`)
	}
}

type cliEnv struct {
	graph     *graphStub
	configDir string
	dataDir   string
}

// newCLIEnv isolates config discovery and points the Graph client at a stub.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	home := t.TempDir()
	env := &cliEnv{
		graph:     &graphStub{},
		configDir: filepath.Join(home, "config"),
		dataDir:   filepath.Join(home, "data"),
	}
	server := httptest.NewServer(env.graph)
	t.Cleanup(server.Close)

	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg"))
	t.Setenv("PAGECHAT_GLOBAL_CONFIG_DIR", env.configDir)
	t.Setenv("PAGECHAT_GLOBAL_DATA_DIR", env.dataDir)
	t.Setenv("PAGECHAT_GRAPH_BASE_URL", server.URL)
	t.Setenv("PAGECHAT_GRAPH_PAGE_ID", stubPageID)
	t.Setenv("PAGECHAT_GRAPH_ACCESS_TOKEN", stubToken)
	t.Setenv("PAGECHAT_POLLING_SEND_SETTLE_DELAY", "10ms")
	t.Setenv("PAGECHAT_LOGGING_LEVEL", "error")
	t.Setenv("PAGECHAT_ASSISTANT_API_KEY", "")
	return env
}

func resetFlags() {
	cfgFile = ""
	envFile = ".env"
	logLevel = ""
	logFormat = ""
	jsonOutput = false
	jsonlOutput = false
	verbose = false
	nonInteractive = false
	appConfig = nil

	inboxConversation = ""
	eventsWatch = false
	eventsTypes = nil
	eventsConversation = ""
	eventsSince = 0
	eventsLimit = 50
	assistantImage = ""
	assistantResume = ""
	loginEmail = ""
	loginPasswordStdin = false
	loginHash = false
}

// runCLI executes the root command and returns stdout and the error.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	prevHint, prevErr := hintOut, errOut
	hintOut, errOut = &out, io.Discard
	t.Cleanup(func() { hintOut, errOut = prevHint, prevErr })

	rootCmd.SetArgs(append([]string{"--env-file="}, args...))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestConversationsCommand_JSON(t *testing.T) {
	newCLIEnv(t)

	out, err := runCLI(t, "", "conversations", "--json")
	require.NoError(t, err)

	var views []conversationView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)
	require.Equal(t, "c-200", views[0].ID, "newest first")
	require.Equal(t, "Bob", views[0].Name)
	require.Equal(t, "R2", views[0].RecipientID)
	require.Equal(t, "Alice", views[1].Name)
	require.Equal(t, "see you", views[1].LastMessage)
}

func TestConversationsCommand_Table(t *testing.T) {
	newCLIEnv(t)

	out, err := runCLI(t, "", "conversations")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	require.True(t, strings.HasPrefix(lines[0], "ID"))
	require.Contains(t, lines[1], "Bob")
	require.Contains(t, lines[2], "Alice")
	require.Contains(t, out, "Next steps:")
}

func TestMessagesCommand_ResolvesByNameAndSavesContext(t *testing.T) {
	env := newCLIEnv(t)

	out, err := runCLI(t, "", "messages", "alice", "--json")
	require.NoError(t, err)

	var messages []models.Message
	require.NoError(t, json.Unmarshal([]byte(out), &messages))
	require.Len(t, messages, 2)
	require.Equal(t, "hi shop", messages[0].Content, "oldest first")
	require.Equal(t, "see you", messages[1].Content)
	require.False(t, messages[0].IsFromPage)

	saved, err := config.NewContextStore(filepath.Join(env.configDir, "context.yaml")).Load()
	require.NoError(t, err)
	require.Equal(t, "c-100", saved.ConversationID)
	require.Equal(t, "Alice", saved.ConversationName)
}

func TestMessagesCommand_UnknownConversation(t *testing.T) {
	newCLIEnv(t)

	_, err := runCLI(t, "", "messages", "zed")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestSendCommand_UsesSavedContext(t *testing.T) {
	env := newCLIEnv(t)

	_, err := runCLI(t, "", "messages", "c-1", "--json")
	require.NoError(t, err)

	out, err := runCLI(t, "", "send", "on its way")
	require.NoError(t, err)
	require.Contains(t, out, "Sent to Alice.")

	env.graph.mu.Lock()
	defer env.graph.mu.Unlock()
	require.Len(t, env.graph.sends, 1)
	require.Equal(t, "Bearer "+stubToken, env.graph.auth[0])
	recipient, ok := env.graph.sends[0]["recipient"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "R1", recipient["id"])
	message, ok := env.graph.sends[0]["message"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "on its way", message["text"])
}

func TestSendCommand_WithoutContext(t *testing.T) {
	newCLIEnv(t)

	_, err := runCLI(t, "", "send", "hello")
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
}

func TestSendCommand_BlankText(t *testing.T) {
	env := newCLIEnv(t)

	_, err := runCLI(t, "", "send", "alice", "   ")
	require.Error(t, err)
	require.Empty(t, env.graph.sends)
}

func TestConversationsCommand_MissingCredentials(t *testing.T) {
	newCLIEnv(t)
	t.Setenv("PAGECHAT_GRAPH_ACCESS_TOKEN", "")
	t.Setenv("VITE_FB_PAGE_ACCESS_TOKEN", "")

	_, err := runCLI(t, "", "conversations")
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
	require.Contains(t, preflight.Message, "access_token")
}

func TestEventsCommand_ListsLoggedEvents(t *testing.T) {
	newCLIEnv(t)

	_, err := runCLI(t, "", "messages", "alice", "--json")
	require.NoError(t, err)

	out, err := runCLI(t, "", "events", "--jsonl", "--type", string(models.EventTypeSelectionChanged))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var event models.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &event))
	require.Equal(t, models.EventTypeSelectionChanged, event.Type)
	require.Equal(t, "c-100", event.ConversationID)
}

func TestAssistantCommand_RequiresAPIKey(t *testing.T) {
	newCLIEnv(t)
	t.Setenv("VITE_GOOGLE_API_KEY", "")

	_, err := runCLI(t, "", "assistant", "hello")
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
}

func TestConfigShow_RedactsSecrets(t *testing.T) {
	newCLIEnv(t)

	out, err := runCLI(t, "", "config", "show")
	require.NoError(t, err)
	require.NotContains(t, out, stubToken)
	require.Contains(t, out, "access_token: '[REDACTED]'")
	require.Contains(t, out, "page_id: page-1")
	require.Contains(t, out, "conversation_interval: 10s")
}

func TestLoginHash(t *testing.T) {
	newCLIEnv(t)

	out, err := runCLI(t, "s3cret\n", "login", "--hash", "--password-stdin")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(strings.TrimSpace(out), "$2"))
}

func TestLoginWithoutOperators(t *testing.T) {
	newCLIEnv(t)

	_, err := runCLI(t, "s3cret\n", "login", "--email", "ops@example.com", "--password-stdin")
	var preflight *PreflightError
	require.ErrorAs(t, err, &preflight)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc", "today")
	t.Cleanup(func() { SetVersion("dev", "none", "unknown") })

	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	require.Equal(t, "pagechat 1.2.3 (abc, today)\n", out)
}

func TestCommandsManifest(t *testing.T) {
	newCLIEnv(t)

	out, err := runCLI(t, "", "commands", "--json")
	require.NoError(t, err)

	var manifest Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &manifest))
	require.Equal(t, "pagechat", manifest.CLI)

	names := make(map[string]bool)
	for _, cmd := range manifest.Commands {
		names[cmd.Name] = true
	}
	for _, want := range []string{"inbox", "conversations", "messages", "send", "assistant", "config", "login", "events"} {
		require.True(t, names[want], "missing command %s", want)
	}
}

func TestPrintError(t *testing.T) {
	resetFlags()
	var buf bytes.Buffer
	printError(&buf, &PreflightError{Message: "sign-in required", Hint: "h", NextStep: "pagechat login"})
	require.Equal(t, "Error: sign-in required\nHint: h\nTry: pagechat login\n", buf.String())
}
