package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbgp-mcp/dbgp-mcp/internal/config"
	"github.com/dbgp-mcp/dbgp-mcp/internal/dap"
	"github.com/dbgp-mcp/dbgp-mcp/internal/mcpserver"
	"github.com/dbgp-mcp/dbgp-mcp/internal/pathurl"
	"github.com/dbgp-mcp/dbgp-mcp/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	mode := flag.String("mode", "", "Capability mode: 'readonly' or 'full'")
	listenHost := flag.String("host", "", "Override listen host for inbound engine connections")
	listenPort := flag.Int("port", 0, "Override listen port for inbound engine connections")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("dbgp-mcp version %s\n", version.Version)
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch *mode {
	case "readonly":
		cfg.Mode = config.ModeReadOnly
	case "full":
		cfg.Mode = config.ModeFull
	}
	if *listenHost != "" {
		cfg.ListenHost = *listenHost
	}
	if *listenPort != 0 {
		cfg.ListenPort = *listenPort
	}

	limits := dap.Limits{
		MaxDepth:    cfg.MaxDepth,
		MaxChildren: cfg.MaxChildren,
		MaxData:     cfg.MaxData,
		ShowHidden:  cfg.ShowHidden,
	}
	manager := dap.NewSessionManager(cfg.ListenHost, cfg.ListenPort, cfg.CommandTimeout(), limits, cfg.MaxSessions)
	if cfg.PathMappingConfigured() {
		manager.SetPathMapper(pathurl.NewPrefixMapper(cfg.ContainerPathPrefix, cfg.HostPathPrefix))
	}

	srv := mcpserver.NewServer(cfg, manager)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		manager.Shutdown()
		os.Exit(0)
	}()

	go func() {
		if err := manager.Serve(); err != nil {
			log.Fatalf("failed to start accept loop: %v", err)
		}
	}()

	go checkForUpdate()

	log.Println("dbgp-mcp server starting...")
	if err := srv.ServeStdio(); err != nil {
		manager.Shutdown()
		log.Fatalf("server error: %v", err)
	}
	manager.Shutdown()
}

func checkForUpdate() {
	checker := version.NewChecker()
	info := checker.CheckForUpdates(nil)
	if info == nil || !info.UpdateAvailable {
		return
	}
	log.Print(info.UpdateMessage())
}

func printHelp() {
	fmt.Println(`dbgp-mcp: DBGp protocol bridge MCP server

A Model Context Protocol (MCP) server that accepts inbound DBGp debugger
engine connections (Xdebug and compatible script-language debuggers) and
exposes breakpoints, stepping, stack/variable inspection, and expression
evaluation to an AI assistant client as MCP tools.

USAGE:
    dbgp-mcp [OPTIONS]

OPTIONS:
    -config <path>     Path to configuration file (JSON)
    -mode <mode>        Capability mode: 'readonly' or 'full' (default: full)
    -host <host>        Override listen host for inbound engine connections
    -port <port>        Override listen port for inbound engine connections
    -version            Show version and exit
    -help               Show this help message

CONFIGURATION:
    Create a JSON configuration file to customize behavior:

    {
        "listenHost": "0.0.0.0",
        "listenPort": 9003,
        "commandTimeoutMs": 30000,
        "maxDepth": 3,
        "maxChildren": 128,
        "maxData": 2048,
        "mode": "full",
        "allowModify": true,
        "allowExecute": true,
        "maxSessions": 10,
        "containerPathPrefix": "/app",
        "hostPathPrefix": "/home/dev/project"
    }

MCP INTEGRATION:
    Add to your MCP client configuration:

    Claude Code (~/.claude.json):
    {
        "mcpServers": {
            "dbgp-mcp": {
                "command": "dbgp-mcp",
                "args": ["--mode", "full"]
            }
        }
    }

TOOLS:
    Session management:
        dbgp_list_sessions, dbgp_session_state, dbgp_set_active, dbgp_close_session

    Breakpoints (full mode only):
        dbgp_set_breakpoint, dbgp_remove_breakpoint, dbgp_update_breakpoint, dbgp_list_breakpoints

    Execution control (full mode only):
        dbgp_continue, dbgp_step_into, dbgp_step_over, dbgp_step_out, dbgp_stop, dbgp_detach

    Inspection:
        dbgp_stack, dbgp_contexts, dbgp_variables, dbgp_variable_get, dbgp_eval, dbgp_source,
        dbgp_snapshot, dbgp_read_output

For more information, visit: https://github.com/dbgp-mcp/dbgp-mcp`)
}
