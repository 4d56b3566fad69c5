package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/IPCLab/backend/internal/config"
	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc/pipes"
	"github.com/GriffinCanCode/IPCLab/backend/internal/ipc/sockets"
	"github.com/GriffinCanCode/IPCLab/backend/internal/logging"
	"github.com/GriffinCanCode/IPCLab/backend/internal/server"
	"github.com/GriffinCanCode/IPCLab/backend/internal/types"
)

func main() {
	app := &cli.App{
		Name:  "ipclab",
		Usage: "IPC mechanisms lab: pipes, sockets, shared memory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "", Usage: "override LOG_LEVEL"},
			&cli.BoolFlag{Name: "dev", Usage: "development logging (console, debug)"},
			&cli.StringFlag{Name: "log-file", Value: "", Usage: "additional log file sink"},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the REST API server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "port", Value: "", Usage: "override PORT"},
					&cli.StringFlag{Name: "host", Value: "", Usage: "override HOST"},
				},
				Action: runServe,
			},
			{
				Name:   "daemon",
				Usage:  "run headless with all mechanisms started",
				Action: runDaemon,
			},
			{
				Name:   "interactive",
				Usage:  "drive the coordinator from a console",
				Action: runInteractive,
			},
			{
				Name:   "child",
				Hidden: true,
				Usage:  "internal responder mode",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mechanism", Required: true},
				},
				Action: runChild,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *logging.Logger, error) {
	cfg := config.LoadOrDefault()
	if c.Bool("dev") {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if file := c.String("log-file"); file != "" {
		cfg.Logging.File = file
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		FilePath:    cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runServe(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	if port := c.String("port"); port != "" {
		cfg.Server.Port = port
	}
	if host := c.String("host"); host != "" {
		cfg.Server.Host = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, log)
	return srv.Run(ctx, cfg.Server.Host+":"+cfg.Server.Port)
}

func runDaemon(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	srv := server.New(cfg, log)
	coord := srv.Coordinator()

	for _, m := range types.Mechanisms() {
		if err := coord.Start(m); err != nil {
			log.Warn("mechanism failed to start",
				zap.String("mechanism", string(m)), zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return srv.Close()
}

func runInteractive(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	srv := server.New(cfg, log)
	coord := srv.Coordinator()
	defer srv.Close()

	fmt.Println("commands: start|stop|restart <mechanism>, send <mechanism> <message>, status, logs <mechanism>, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return nil

		case "restart":
			if len(fields) < 2 {
				fmt.Println("usage: restart <mechanism>")
				continue
			}
			m, ok := types.ParseMechanism(fields[1])
			if !ok {
				fmt.Println("unknown mechanism:", fields[1])
				continue
			}
			if err := coord.Restart(m); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("ok:", m, "restarted")
			}

		case "start", "stop", "send", "status", "logs":
			cmd := types.Command{Action: fields[0]}
			if len(fields) > 1 {
				m, ok := types.ParseMechanism(fields[1])
				if !ok {
					fmt.Println("unknown mechanism:", fields[1])
					continue
				}
				cmd.Mechanism = m
			} else if fields[0] == "start" || fields[0] == "stop" || fields[0] == "send" {
				fmt.Println("usage:", fields[0], "<mechanism>")
				continue
			} else {
				cmd.Mechanism = types.MechanismPipes
			}
			if fields[0] == "send" {
				if len(fields) < 3 {
					fmt.Println("usage: send <mechanism> <message>")
					continue
				}
				cmd.Message = strings.Join(fields[2:], " ")
			}
			res := coord.Execute(cmd)
			fmt.Printf("[%s] %s\n", res.Status, res.Message)

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
	return scanner.Err()
}

// runChild is the responder half of the pipe and socket channels. The
// parent passed the channel's read end as fd 3; this process drains it
// until EOF and exits.
func runChild(c *cli.Context) error {
	_, log, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	m, ok := types.ParseMechanism(c.String("mechanism"))
	if !ok {
		return fmt.Errorf("unknown mechanism %q", c.String("mechanism"))
	}

	f := os.NewFile(3, "channel")
	if f == nil {
		return fmt.Errorf("channel fd not inherited")
	}
	defer f.Close()

	var code int
	switch m {
	case types.MechanismPipes:
		code = pipes.RunResponder(f, os.Stdout, log)
	case types.MechanismSockets:
		code = sockets.RunResponder(f, os.Stdout, log)
	default:
		return fmt.Errorf("mechanism %q has no responder mode", m)
	}

	if code != 0 {
		os.Exit(code)
	}
	return nil
}
