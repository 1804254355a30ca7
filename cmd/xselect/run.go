package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"go.klb.dev/xselect/internal/atom"
	"go.klb.dev/xselect/internal/clip"
	"go.klb.dev/xselect/internal/selection"
	"go.klb.dev/xselect/internal/x11"
)

func run(ctx context.Context, v *viper.Viper, files []string, stdin io.Reader, stdout io.Writer) error {
	setupLogging(v)

	opts, err := loadOptions(v)
	if err != nil {
		return err
	}
	if opts.out && len(files) > 0 {
		return fmt.Errorf("--out takes no FILE arguments")
	}
	slog.Debug("using selection", "selection", opts.selection.String())

	conn, err := x11.Dial(opts.display)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return transfer(ctx, conn, opts, files, stdin, stdout)
}

// transfer runs one --in or --out against an established connection.
func transfer(ctx context.Context, conn x11.Conn, opts options, files []string, stdin io.Reader, stdout io.Writer) error {
	atoms, err := atom.NewResolver(conn).Table()
	if err != nil {
		return err
	}
	b, err := clip.New(conn, atoms, opts.selection, opts.clip)
	if err != nil {
		return err
	}

	if opts.out {
		data, err := b.Read(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	data, err := readInput(stdin, stdout, files, opts.filter)
	if err != nil {
		return err
	}
	err = b.Write(ctx, data)
	if opts.selection != selection.CutBuffer && errors.Is(err, context.Canceled) {
		// Interrupted while serving: ownership goes away with the connection.
		slog.Info("interrupted, releasing selection", "selection", opts.selection.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", b.Name(), err)
	}
	return nil
}
