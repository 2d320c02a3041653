// Command rar2fs mounts a host directory of RAR archives as a read-only
// FUSE filesystem, per §6's mount-time contract: `rar2fs [OPTIONS] SOURCE
// MOUNT`.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/pflag"

	"github.com/nunogt/rar2fs/internal/options"
	"github.com/nunogt/rar2fs/internal/rarfs"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := options.New()
	flags := opts.BindFlags(pflag.CommandLine)
	debug := pflag.Bool("debug", false, "enable FUSE debug logging")
	pflag.Parse()

	opts.Apply(flags)

	args := pflag.Args()
	if len(args) != 2 {
		log.Printf("usage: rar2fs [OPTIONS] SOURCE MOUNT")
		return 1
	}
	source, mount := args[0], args[1]

	if fi, err := os.Stat(source); err != nil || !fi.IsDir() {
		log.Printf("rar2fs: %s is not a directory", source)
		return 1
	}
	if fi, err := os.Stat(mount); err != nil || !fi.IsDir() {
		log.Printf("rar2fs: %s is not a directory", mount)
		return 1
	}

	debugLogger := log.New(os.Stdout, "rar2fs: ", 0)
	errorLogger := log.New(os.Stderr, "rar2fs: ", 0)

	debugLogger.Printf(
		"mounting %s at %s (seek-length=%s, max-unpack-size=%s, recursive=%v)",
		source, mount,
		humanize.IBytes(uint64(opts.Int(options.SeekLength))),
		humanize.IBytes(uint64(opts.Int(options.MaxUnpackSize))),
		opts.Bool(options.Recursive),
	)

	state := rarfs.NewState(source, opts, debugLogger, errorLogger)
	server := fuseutil.NewFileSystemServer(rarfs.New(state))

	cfg := &fuse.MountConfig{
		ReadOnly:    true,
		ErrorLogger: errorLogger,
	}
	if *debug {
		cfg.DebugLogger = debugLogger
	}

	mfs, err := fuse.Mount(mount, server, cfg)
	if err != nil {
		errorLogger.Printf("mount: %v", err)
		return 2
	}

	if err := mfs.Join(context.Background()); err != nil {
		errorLogger.Printf("join: %v", err)
		return 2
	}
	return 0
}
