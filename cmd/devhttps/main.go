package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/devhttps/cmd/devhttps/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Serve   commands.ServeCmd `cmd:"" default:"withargs" help:"Serve a directory over HTTPS (default)"`
		Cert    commands.CertCmd  `cmd:"" help:"Manage the self-signed certificate"`
		Wait    commands.WaitCmd  `cmd:"" help:"Wait until a server answers over HTTPS"`
	}
)

func main() {
	// interrupt is the only way to stop the server
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("devhttps"),
		kong.Description("Local HTTPS static file server for secure-context development."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
