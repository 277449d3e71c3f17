package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/logging"
)

func TestRedactedConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Graph.PageID = "page-1"
	cfg.Graph.AccessToken = "EAAsecretsecretsecretsecret"
	cfg.Assistant.APIKey = "AIza-secret"
	cfg.Assistant.MaxOutputTokens = 512
	cfg.Polling.MessageInterval = 3 * time.Second
	cfg.Auth.Operators = []config.OperatorConfig{{Email: "ops@example.com", PasswordHash: "$2a$10$abc"}}

	out := redactedConfig(cfg)

	graph := out["graph"].(map[string]any)
	require.Equal(t, "page-1", graph["page_id"])
	require.Equal(t, logging.RedactedValue, graph["access_token"])

	assistant := out["assistant"].(map[string]any)
	require.Equal(t, logging.RedactedValue, assistant["api_key"])
	require.Equal(t, 512, assistant["max_output_tokens"])

	polling := out["polling"].(map[string]any)
	require.Equal(t, "3s", polling["message_interval"])

	operators := out["auth"].(map[string]any)["operators"].([]any)
	require.Len(t, operators, 1)
	operator := operators[0].(map[string]any)
	require.Equal(t, "ops@example.com", operator["email"])
	require.Equal(t, logging.RedactedValue, operator["password_hash"])
}

func TestRedactedConfig_EmptySecretStaysEmpty(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Graph.AccessToken = ""

	out := redactedConfig(cfg)
	require.Equal(t, "", out["graph"].(map[string]any)["access_token"])
}

func TestRedactedConfig_Nil(t *testing.T) {
	require.Empty(t, redactedConfig(nil))
}
