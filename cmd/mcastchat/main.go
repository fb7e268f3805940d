// mcastchat is a terminal chat over an IP multicast group. Every line typed is sent to
// the group as "<name> > <line>", and every line sent to the group by others is printed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/naist-inet-lab/go-ipv6multicast/multicast"
	"github.com/pion/logging"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet, cfg, err := parseFlags(args)
	if err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	instance := uuid.New()
	if cfg.Name == "" {
		cfg.Name = "guest-" + instance.String()[:8]
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	bufferSize, _ := cfg.BufferBytes()

	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = level
	loggerFactory.Writer = os.Stderr
	logger := loggerFactory.NewLogger("mcastchat")

	opts := []multicast.Option{
		multicast.WithLogger(loggerFactory.NewLogger("multicast")),
		multicast.WithErrors(func(err error) {
			logger.Debugf("%v", err)
		}),
		multicast.WithPowerLock(multicast.NopPowerLock{}, "mcastchat-"+instance.String()),
		multicast.WithHopLimit(cfg.HopLimit),
	}
	if cfg.Interface != "" {
		opts = append(opts, multicast.WithInterface(cfg.Interface))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &chat{
		manager:    multicast.New(opts...),
		name:       cfg.Name,
		group:      cfg.Group,
		port:       cfg.Port,
		bufferSize: bufferSize,
		ignoreOwn:  cfg.IgnoreOwn,
		out:        os.Stdout,
	}
	return c.run(ctx, os.Stdin)
}

// parseFlags loads the config file named by --config, if any, and applies every flag
// given on the command line over it.
func parseFlags(args []string) (*pflag.FlagSet, Config, error) {
	var configPath string
	flags := DefaultConfig()

	flagSet := pflag.NewFlagSet("mcastchat", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVarP(&flags.Name, "name", "n", flags.Name, "nickname shown before every message (default: random)")
	flagSet.StringVarP(&flags.Group, "group", "g", flags.Group, "multicast group address, optionally with zone (ff02::1%eth0)")
	flagSet.IntVarP(&flags.Port, "port", "p", flags.Port, "UDP port of the group")
	flagSet.StringVar(&flags.BufferSize, "buffer-size", flags.BufferSize, "receive buffer size (e.g. 1500B, 1KiB)")
	flagSet.BoolVar(&flags.IgnoreOwn, "ignore-own", flags.IgnoreOwn, "do not print messages sent from this host")
	flagSet.StringVarP(&flags.Interface, "interface", "i", flags.Interface, "join the group only on this interface")
	flagSet.IntVar(&flags.HopLimit, "hop-limit", flags.HopLimit, "multicast hop limit (TTL) of sent messages")
	flagSet.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "log level: disabled, error, warn, info, debug, trace")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.SetOutput(os.Stderr)

	if err := flagSet.Parse(args); err != nil {
		return flagSet, flags, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return flagSet, flags, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if configPath == "" {
		return flagSet, flags, nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return flagSet, cfg, err
	}
	return flagSet, mergeFlags(flagSet, cfg, flags), nil
}

// mergeFlags copies every flag that was set on the command line from flags into cfg.
func mergeFlags(flagSet *pflag.FlagSet, cfg, flags Config) Config {
	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "name":
			cfg.Name = flags.Name
		case "group":
			cfg.Group = flags.Group
		case "port":
			cfg.Port = flags.Port
		case "buffer-size":
			cfg.BufferSize = flags.BufferSize
		case "ignore-own":
			cfg.IgnoreOwn = flags.IgnoreOwn
		case "interface":
			cfg.Interface = flags.Interface
		case "hop-limit":
			cfg.HopLimit = flags.HopLimit
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		}
	})
	return cfg
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mcastchat: chat with everyone listening on a multicast group.

Lines read from standard input are sent to the group, lines received from
the group are printed. The group is left on end of input or on interrupt.

Usage:
  mcastchat [flags]

Examples:
  # Chat on the link-local all-nodes group
  mcastchat --name alice --group ff02::1

  # Use a config file, overriding the port
  mcastchat --config chat.yaml --port 32101

Flags:
`)
	flagSet.PrintDefaults()
}
