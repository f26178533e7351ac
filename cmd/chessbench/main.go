package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/a2a"
	"github.com/park285/chessbench-go/internal/benchbuilder"
	appcfg "github.com/park285/chessbench-go/internal/config"
	"github.com/park285/chessbench-go/internal/launcher"
	"github.com/park285/chessbench-go/internal/obslog"
	"github.com/park285/chessbench-go/internal/spectator"
)

func usage() {
	fmt.Fprintln(os.Stderr, strings.Join([]string{
		"usage: chessbench <command> [args]",
		"",
		"  green                                      start the assessment agent",
		"  white                                      start the reference peer",
		"  run                                        start the agent named by CHESSBENCH_ROLE",
		"  launch [--local]                           spawn all agents and play one match",
		"  launch-remote <green> <white_1> <white_2>  ask a running green agent to play",
		"  watch <ws_url>                             print live events from a green agent",
	}, "\n"))
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	// watch는 설정 없이 동작
	if cmd == "watch" {
		if err := watch(args); err != nil {
			log.Fatalf("watch error: %v", err)
		}
		return
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(obslog.FromConfig(cfg)); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "green":
		cfg.Role = appcfg.RoleGreen
		err = serve(ctx, cfg)
	case "white":
		cfg.Role = appcfg.RoleWhite
		err = serve(ctx, cfg)
	case "run":
		err = serve(ctx, cfg)
	case "launch":
		err = launch(ctx, cfg, args)
	case "launch-remote":
		err = launchRemote(ctx, cfg, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		obslog.L().Error("command_failed", zap.String("command", cmd), zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *appcfg.AppConfig) error {
	logger := obslog.Named(cfg.Role)
	if cfg.Role == appcfg.RoleGreen {
		deps, err := benchbuilder.NewGreen(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := deps.Close(); err != nil {
				logger.Warn("store_close_failed", zap.Error(err))
			}
		}()
		router, err := deps.Server()
		if err != nil {
			return err
		}
		return a2a.Serve(ctx, cfg.ListenAddr(), router, logger)
	}

	deps, err := benchbuilder.NewPeer(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	handler, err := deps.Server()
	if err != nil {
		return err
	}
	return a2a.Serve(ctx, cfg.ListenAddr(), handler, logger)
}

func launch(ctx context.Context, cfg *appcfg.AppConfig, args []string) error {
	fs := flag.NewFlagSet("launch", flag.ContinueOnError)
	local := fs.Bool("local", false, "run the match in this process; only the peers are spawned")
	if err := fs.Parse(args); err != nil {
		return err
	}
	l, err := launcher.New(cfg, obslog.Named("launcher"))
	if err != nil {
		return err
	}
	if *local {
		res, err := l.InProcess(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	}
	out, err := l.Local(ctx)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func launchRemote(ctx context.Context, cfg *appcfg.AppConfig, args []string) error {
	if len(args) != 3 {
		usage()
		return fmt.Errorf("launch-remote needs 3 arguments, got %d", len(args))
	}
	client := a2a.NewClient(cfg.AgentTimeout, obslog.Named("a2a"))
	out, err := launcher.Remote(ctx, client, args[0], args[1], args[2], nil)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func watch(args []string) error {
	if len(args) != 1 {
		usage()
		return fmt.Errorf("watch needs a websocket url")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	enc := json.NewEncoder(os.Stdout)
	return spectator.Watch(ctx, args[0], false, func(ev spectator.Event) {
		_ = enc.Encode(ev)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
