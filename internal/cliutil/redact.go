package cliutil

import (
	"regexp"
	"sort"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	templateVarPattern = regexp.MustCompile(`\$\{[^}]+\}`)
	secretKeyPattern   = regexp.MustCompile(`(?i)\b(` + strings.Join(quotedSecretKeys(), "|") + `)\b(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	secretNamePattern  = regexp.MustCompile(`(?i)(SECRET|TOKEN|PASSWORD|ACCESS_KEY|API_KEY)`)
)

// secretKeys lists well known credential variables used by browser grids and
// the services end-to-end suites usually talk to.
var secretKeys = []string{
	"BROWSERSTACK_ACCESS_KEY",
	"SAUCE_ACCESS_KEY",
	"LT_ACCESS_KEY",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"DATABASE_PASSWORD",
	"DB_PASSWORD",
	"API_KEY",
	"ACCESS_TOKEN",
	"CLIENT_SECRET",
	"GITHUB_TOKEN",
}

func quotedSecretKeys() []string {
	escaped := make([]string, len(secretKeys))
	for i, key := range secretKeys {
		escaped[i] = regexp.QuoteMeta(key)
	}
	return escaped
}

// RedactSecrets masks ${VAR} references and known secret assignments in
// message before it is written to logs.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := templateVarPattern.ReplaceAllStringFunc(message, func(string) string {
		return "${" + redactedPlaceholder + "}"
	})
	return secretKeyPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
}

// RedactEnv renders env as sorted KEY=VALUE pairs, masking values whose key
// looks like a credential.
func RedactEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, key := range keys {
		value := env[key]
		if secretNamePattern.MatchString(key) {
			value = redactedPlaceholder
		}
		out = append(out, key+"="+value)
	}
	return out
}
