package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MoonShineVFX/meal-system-sub001/internal/client"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
	"github.com/MoonShineVFX/meal-system-sub001/internal/core/services"
	"github.com/MoonShineVFX/meal-system-sub001/internal/infrastructure/logging"
)

type connectOptions struct {
	url      string
	token    string
	userID   string
	role     string
	channels []string
	sound    bool
	logLevel string
	dedup    time.Duration
}

func buildConnectCmd() *cobra.Command {
	var opts connectOptions
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect and print live events until interrupted",
		Long: `Connect to the realtime endpoint and stay connected.

Without --channel the listener subscribes to every channel the given
user and role may observe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConnect(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8080/api/v1/ws", "Realtime endpoint")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("REALTIME_TOKEN"), "Access token (defaults to $REALTIME_TOKEN)")
	cmd.Flags().StringVar(&opts.userID, "user", "", "User id of the token, used for the default channel set")
	cmd.Flags().StringVar(&opts.role, "role", string(domain.RoleUser), "Role of the token, used for the default channel set")
	cmd.Flags().StringSliceVar(&opts.channels, "channel", nil, "Channel to subscribe (repeatable)")
	cmd.Flags().BoolVar(&opts.sound, "sound", false, "Ring the terminal bell for new live orders")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&opts.dedup, "dedup-window", client.DefaultDedupWindow, "Window for collapsing notifications that share a tag")
	return cmd
}

func runConnect(cmd *cobra.Command, opts connectOptions) error {
	channels, err := resolveChannels(opts)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:       opts.logLevel,
		Format:      "text",
		Output:      cmd.ErrOrStderr(),
		ServiceName: "meal-listener",
	})

	dialer, err := client.NewWSDialer(opts.url, opts.token)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	engine := client.NewEngine(client.EngineConfig{
		Invalidator: client.InvalidatorFunc(func(keys ...domain.QueryKey) {
			printInvalidation(out, keys)
		}),
		Sink: client.NotificationSinkFunc(func(n client.Notification) {
			printNotification(out, n)
		}),
		Sound:       bell{w: out},
		Preferences: client.StaticPreferences{Sound: opts.sound},
		DedupWindow: opts.dedup,
	}, logger)

	manager := client.NewManager(dialer, engine.OnEvent, client.ManagerConfig{}, logger)
	detach := engine.Attach(manager)
	defer detach()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, ch := range channels {
		if err := manager.Declare(ctx, ch); err != nil {
			return fmt.Errorf("declare %s: %w", ch, err)
		}
	}

	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	printf(cmd, "listening on %s\n", strings.Join(names, ", "))

	err = manager.Run(ctx)
	engine.Flush()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// resolveChannels returns the explicit channels, or every channel the
// principal may observe.
func resolveChannels(opts connectOptions) ([]domain.Channel, error) {
	if len(opts.channels) > 0 {
		out := make([]domain.Channel, 0, len(opts.channels))
		for _, name := range opts.channels {
			ch, err := domain.ParseChannel(name)
			if err != nil {
				return nil, err
			}
			out = append(out, ch)
		}
		return out, nil
	}

	role, err := domain.ParseRole(opts.role)
	if err != nil {
		return nil, err
	}
	principal := domain.Principal{ID: opts.userID, Role: role}
	return services.NewChannelRouter().SubscribableChannels(principal), nil
}

func printInvalidation(w io.Writer, keys []domain.QueryKey) {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = string(k)
	}
	_, _ = fmt.Fprintf(w, "%s invalidate %s\n", time.Now().Format(time.TimeOnly), strings.Join(parts, ","))
}

func printNotification(w io.Writer, n client.Notification) {
	line := fmt.Sprintf("%s [%s] %s", time.Now().Format(time.TimeOnly), n.Kind, n.Title)
	if n.Message != "" {
		line += ": " + n.Message
	}
	if n.Link != "" {
		line += " (" + n.Link + ")"
	}
	_, _ = fmt.Fprintln(w, line)
}

// bell is a SoundPlayer that rings the terminal bell.
type bell struct {
	w io.Writer
}

func (b bell) Play() error {
	_, err := io.WriteString(b.w, "\a")
	return err
}

var _ client.SoundPlayer = bell{}
