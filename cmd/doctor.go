package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/store/pg"
	"github.com/nextlevelbuilder/chatrelay/internal/upgrade"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

const doctorProbeTimeout = 3 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and collaborator health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("chatrelay doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults and env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Storage:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s managed\n", "Mode:")
		checkDatabase(ctx, cfg.Database.PostgresDSN)
	} else {
		fmt.Printf("    %-12s standalone\n", "Mode:")
		sessionsPath := cfg.SessionsPath()
		if sessionsPath == "" {
			sessionsPath = "(memory only)"
		}
		fmt.Printf("    %-12s %s\n", "Sessions:", sessionsPath)
		fmt.Printf("    %-12s %d from config\n", "Triggers:", len(cfg.TriggerRules()))
	}
	checkRedis(ctx, cfg.Redis)

	fmt.Println()
	fmt.Println("  Collaborators:")
	checkCollaborator(ctx, "NLU", cfg.Providers.NLU)
	checkCollaborator(ctx, "LLM", cfg.Providers.LLM)
	checkCollaborator(ctx, "Flow engine", cfg.Providers.FlowEngine)
	checkCollaborator(ctx, "Business", cfg.Providers.Business)

	fmt.Println()
	fmt.Println("  Channels:")
	ch := cfg.Channels
	checkChannel("Telegram", ch.Telegram.Enabled, ch.Telegram.Token != "")
	checkChannel("Discord", ch.Discord.Enabled, ch.Discord.Token != "")
	checkChannel("WhatsApp", ch.WhatsApp.Enabled, ch.WhatsApp.BridgeURL != "")
	checkChannel("Voice", ch.Voice.Enabled, true)
	fmt.Printf("    %-12s %s:%d/ws\n", "Web:", cfg.Gateway.Host, cfg.Gateway.Port)

	fmt.Println()
	fmt.Println("  Rollout:")
	f := cfg.Flags
	fmt.Printf("    %-12s %s\n", "Strategy:", f.Strategy)
	fmt.Printf("    %-12s %d%%\n", "Percentage:", f.Percentage)
	fmt.Printf("    %-12s %v\n", "Kill switch:", f.KillSwitch)
	if f.File != "" {
		if _, err := os.Stat(f.File); err != nil {
			fmt.Printf("    %-12s %s (NOT FOUND)\n", "File:", f.File)
		} else {
			fmt.Printf("    %-12s %s (watched)\n", "File:", f.File)
		}
	}

	fmt.Println()
	fmt.Println("  Done.")
}

func checkDatabase(ctx context.Context, dsn string) {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Postgres:", err)
		return
	}
	defer db.Close()
	fmt.Printf("    %-12s OK\n", "Postgres:")

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s check failed: %s\n", "Schema:", err)
	case s.Compatible():
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	default:
		fmt.Printf("    %-12s v%d, required v%d (%s)\n", "Schema:", s.CurrentVersion, s.RequiredVersion, s.State)
	}

	if pending, err := upgrade.PendingHooks(ctx, db); err == nil && len(pending) > 0 {
		fmt.Printf("    %-12s %s\n", "Data hooks:", strings.Join(pending, ", "))
	}
	checkTriggerRows(ctx, db)
}

func checkTriggerRows(ctx context.Context, db *sql.DB) {
	var total, enabled int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE enabled) FROM flow_triggers").Scan(&total, &enabled)
	if err != nil {
		fmt.Printf("    %-12s (could not query: %s)\n", "Triggers:", err)
		return
	}
	fmt.Printf("    %-12s %d enabled of %d\n", "Triggers:", enabled, total)
}

func checkRedis(ctx context.Context, rc config.RedisConfig) {
	if !rc.Enabled() {
		fmt.Printf("    %-12s (not configured, process-local bus and dedup)\n", "Redis:")
		return
	}
	opts, err := redis.ParseURL(rc.URL)
	if err != nil {
		fmt.Printf("    %-12s invalid url (%s)\n", "Redis:", err)
		return
	}
	client := redis.NewClient(opts)
	defer client.Close()
	pctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		fmt.Printf("    %-12s %s FAILED (%s)\n", "Redis:", opts.Addr, err)
		return
	}
	fmt.Printf("    %-12s %s OK\n", "Redis:", opts.Addr)
}

// checkCollaborator prints the masked key and whether the endpoint answers
// at all. Any HTTP status counts as reachable.
func checkCollaborator(ctx context.Context, name string, p config.ProviderConfig) {
	if !p.Configured() && p.APIKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	line := fmt.Sprintf("    %-12s %s key=%s", name+":", p.APIBase, maskKey(p.APIKey))
	if p.APIBase == "" {
		fmt.Println(line)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodHead, p.APIBase, nil)
	if err != nil {
		fmt.Printf("%s (invalid url)\n", line)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("%s UNREACHABLE\n", line)
		return
	}
	resp.Body.Close()
	fmt.Printf("%s reachable (%d)\n", line, resp.StatusCode)
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "(none)"
	case len(key) <= 8:
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}
