package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atharvap8/intelliverter/internal/config"
	"github.com/atharvap8/intelliverter/internal/input"
	wlog "github.com/atharvap8/intelliverter/internal/log"
	"github.com/atharvap8/intelliverter/internal/mqtt"
)

func newConsoleCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive remote control over MQTT",
		Long: `console sends commands to a running daemon through the broker and
prints the washer events it publishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			log, _, err := wlog.New(appID+"-console", "warn")
			if err != nil {
				return err
			}
			return runConsole(cfg, log)
		},
	}
}

// commandTable lists the remote commands. The table does not depend on
// the target, so none is given.
func commandTable() []input.Command {
	return input.NewDispatcher(input.NewSelector(), nil, 0, zap.NewNop().Sugar()).Commands()
}

func completer(cmds []input.Command) *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{readline.PcItem("help"), readline.PcItem("quit")}
	for _, c := range cmds {
		items = append(items, readline.PcItem(c.Name))
	}
	return readline.NewPrefixCompleter(items...)
}

func runConsole(cfg config.Config, log *zap.SugaredLogger) error {
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: fmt.Sprintf("%s-console-%d", cfg.MQTT.ClientID, time.Now().Unix()),
		Prefix:   cfg.MQTT.TopicPrefix,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, log)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	cmds := commandTable()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "washer> ",
		AutoComplete:    completer(cmds),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	if err := client.WatchEvents(func(p mqtt.EventPayload) {
		fmt.Fprintln(out, formatEvent(p))
	}); err != nil {
		log.Warnw("watch events", "err", err)
	}
	fmt.Fprintf(out, "connected to %s (type 'help' for commands)\n", cfg.MQTT.Broker)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if consoleCommand(line, client.SendCommand, out, cmds) {
			return nil
		}
	}
}

// consoleCommand handles one input line and reports whether the console
// should exit.
func consoleCommand(line string, send func(string) error, out io.Writer, cmds []input.Command) bool {
	name := strings.ToLower(strings.TrimSpace(line))
	switch name {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help", "?":
		for _, c := range cmds {
			fmt.Fprintf(out, "  %-10s %s\n", c.Name, c.Help)
		}
		fmt.Fprintf(out, "  %-10s %s\n", "quit", "leave the console")
		return false
	}
	known := false
	for _, c := range cmds {
		if c.Name == name {
			known = true
			break
		}
	}
	if !known {
		fmt.Fprintf(out, "unknown command %q (try 'help')\n", name)
		return false
	}
	if err := send(name); err != nil {
		fmt.Fprintf(out, "send %s: %v\n", name, err)
		return false
	}
	fmt.Fprintf(out, "sent %s\n", name)
	return false
}

// formatEvent renders a washer event as one console line.
func formatEvent(p mqtt.EventPayload) string {
	ts := p.Timestamp
	if t, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
		ts = t.Local().Format("15:04:05")
	}
	line := fmt.Sprintf("[%s] %-17s %s", ts, p.Event, p.Text)
	if p.Error != "" {
		line += " (" + p.Error + ")"
	}
	return line
}
