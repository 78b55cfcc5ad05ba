// cmd/preflight/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hamed0406/uptimeadvisor/internal/config"
	"github.com/hamed0406/uptimeadvisor/internal/detector"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
	if failed := check(cfg, os.Stdout, os.Stderr); failed {
		os.Exit(1)
	}
}

// check reports on cfg and returns true when a blocking problem was found.
func check(cfg config.Config, out, errOut io.Writer) bool {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(errOut, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(errOut, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(out, "✔", msg) }

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		fail("PUBLIC_API_KEYS is empty (read routes are open).")
	}
	for _, k := range append(append([]string{}, cfg.AdminAPIKeys...), cfg.PublicAPIKeys...) {
		if len(k) < 8 {
			warn("an API key is shorter than 8 characters")
			break
		}
	}

	ok("ADDR=" + cfg.Addr)

	switch cfg.Store {
	case "postgres":
		ok("STORE=postgres (DATABASE_URL present)")
	case "sqlite":
		ok("STORE=sqlite at " + cfg.SQLitePath)
	default:
		warn("STORE=memory; targets and history are lost on restart.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; every origin is allowed by CORS.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if cfg.CheckInterval < time.Minute {
		warn(fmt.Sprintf("CHECK_INTERVAL_MS=%d is under a minute; targets may throttle the monitor.", cfg.CheckInterval.Milliseconds()))
	} else {
		ok("check interval " + cfg.CheckInterval.String())
	}

	a := cfg.Advisory
	switch a.Provider {
	case "anthropic":
		if a.AnthropicAPIKey == "" {
			fail("ADVISORY_PROVIDER=anthropic but ANTHROPIC_API_KEY is empty.")
		} else {
			ok("advisory provider anthropic")
		}
	case "gemini":
		if a.GeminiAPIKey == "" {
			fail("ADVISORY_PROVIDER=gemini but GEMINI_API_KEY is empty.")
		} else {
			ok("advisory provider gemini")
		}
	default:
		warn("advisory provider static; hints come from a fixed table.")
	}
	if _, err := detector.ParsePolicy(a.Policy); err != nil {
		fail(err.Error())
	}
	if a.RedisAddr != "" {
		ok("advisory cache at " + a.RedisAddr)
	}

	if cfg.SlackWebhook == "" && (cfg.TelegramToken == "" || cfg.TelegramChatID == "") {
		warn("no SLACK_WEBHOOK_URL or TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID; transitions are only logged.")
	}

	if !failed {
		ok("preflight passed")
	}
	return failed
}
