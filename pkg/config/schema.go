package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema constrains the fields the core acts on. Unknown keys are
// deliberately permitted: they are preserved but ignored.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "settings": {
      "type": "object",
      "properties": {
        "default_branch": {"type": "string", "minLength": 1},
        "parallel_push": {"type": "boolean"},
        "max_parallel": {"type": "integer", "minimum": 1},
        "colored_output": {"type": "boolean"}
      }
    },
    "sync": {
      "type": "object",
      "properties": {
        "strategy": {"enum": ["fast-forward", "merge", "rebase", "force"]},
        "primary_source": {"type": "string"},
        "auto_sync": {"type": "boolean"},
        "include_branches": {"type": "array", "items": {"type": "string"}},
        "exclude_branches": {"type": "array", "items": {"type": "string"}}
      }
    },
    "security": {
      "type": "object",
      "properties": {
        "auth_backend": {"enum": ["keyring", "encrypted-file"]},
        "allow_env_tokens": {"type": "boolean"},
        "allow_insecure_http": {"type": "boolean"},
        "audit_log": {"type": "boolean"}
      }
    },
    "daemon": {
      "type": "object",
      "properties": {
        "interval": {"type": "string", "pattern": "^[0-9]+(s|m|h)$"},
        "log_file": {"type": "string"}
      }
    },
    "remotes": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "provider": {"enum": ["github", "gitlab", "bitbucket", "codeberg", "gitea"]},
          "username": {"type": "string", "minLength": 1},
          "api_url": {"type": "string"},
          "enabled": {"type": "boolean"},
          "priority": {"type": "integer", "minimum": 0}
        },
        "required": ["provider", "username"]
      }
    }
  }
}`

func validate(cfg *Config) error {
	doc := map[string]interface{}{
		"settings": map[string]interface{}{
			"default_branch": cfg.Settings.DefaultBranch,
			"parallel_push":  cfg.Settings.ParallelPush,
			"max_parallel":   cfg.Settings.MaxParallel,
			"colored_output": cfg.Settings.ColoredOutput,
		},
		"sync": map[string]interface{}{
			"strategy":  cfg.Sync.Strategy,
			"auto_sync": cfg.Sync.AutoSync,
		},
		"security": map[string]interface{}{
			"auth_backend":        cfg.Security.AuthBackend,
			"allow_env_tokens":    cfg.Security.AllowEnvTokens,
			"allow_insecure_http": cfg.Security.AllowInsecureHTTP,
			"audit_log":           cfg.Security.AuditLog,
		},
		"daemon": map[string]interface{}{
			"interval": cfg.Daemon.Interval,
		},
		"remotes": remotesDoc(cfg.Remotes),
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return &ConfigError{Wrapped: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return &ConfigError{Wrapped: fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))}
	}
	return nil
}

func remotesDoc(remotes map[string]RemoteSpec) map[string]interface{} {
	doc := make(map[string]interface{}, len(remotes))
	for name, spec := range remotes {
		doc[name] = map[string]interface{}{
			"provider": spec.Provider,
			"username": spec.Username,
			"api_url":  spec.APIURL,
			"enabled":  spec.Enabled,
			"priority": spec.Priority,
		}
	}
	return doc
}
