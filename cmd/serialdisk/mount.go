package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
	"github.com/aligator/serialdisk/config"
	"github.com/aligator/serialdisk/engine"
	"github.com/aligator/serialdisk/hosttree"
	"github.com/aligator/serialdisk/link"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// queueSize is the count of export batches buffered in async mode.
const queueSize = 64

func mountCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mount [flags] PATH",
		Short: "Serve the folder PATH as disk drive",
		Long: `Serve the folder PATH as disk drive.

The folder is loaded into memory once. Everything the remote writes is copied back into
the folder. Stop with ^C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mountConfig(afero.NewOsFs(), configPath, cmd.Flags(), args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return mount(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Configuration file, JSON with comments or YAML")
	cmd.Flags().StringP("port", "p", "", "Serial port or tcp://host:port (default from the configuration)")
	cmd.Flags().Int("baud", 0, "Baud rate (default from the configuration)")
	cmd.Flags().String("snapshot", "", "Save a snapshot of the volume to this file on exit")
	cmd.Flags().String("export", "", "Export mode, sync or async (default from the configuration)")

	return cmd
}

// mountConfig loads the configuration and applies the flags which were set on top.
func mountConfig(fs afero.Fs, path string, flags *pflag.FlagSet, args []string) (config.Config, error) {
	cfg, err := config.Load(fs, path)
	if err != nil {
		return config.Config{}, err
	}

	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("baud") {
		cfg.Baud, _ = flags.GetInt("baud")
	}
	if flags.Changed("snapshot") {
		cfg.SnapshotPath, _ = flags.GetString("snapshot")
	}
	if flags.Changed("export") {
		mode, _ := flags.GetString("export")
		cfg.ExportMode = config.ExportMode(mode)
	}
	if len(args) > 0 {
		cfg.MountPath = args[0]
	}

	if cfg.MountPath == "" {
		return config.Config{}, checkpoint.Wrap(config.ErrInvalid, errors.New("no folder to mount"))
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// mount serves cfg.MountPath until ctx is canceled or the link fails.
func mount(ctx context.Context, cfg config.Config) error {
	g, err := cfg.Geometry()
	if err != nil {
		return err
	}
	layout, err := serialdisk.NewLayout(g)
	if err != nil {
		return err
	}
	log.Infof("Volume: %s partition, TOS %s, %s (%d clusters of %s)", cfg.PartitionType, cfg.TOS,
		humanize.IBytes(uint64(layout.TotalSectors)*uint64(layout.BytesPerSector)),
		layout.Clusters, humanize.IBytes(uint64(layout.ClusterBytes())))

	start := time.Now()
	hostFs := afero.NewOsFs()
	v, mapping, err := hosttree.Import(hostFs, cfg.MountPath, g)
	if err != nil {
		return err
	}
	log.Debugf("Ready in %v", time.Since(start))

	applier := hosttree.NewApplier(afero.NewBasePathFs(hostFs, cfg.MountPath))
	var (
		sink  hosttree.Sink = applier
		queue *hosttree.Queue
	)
	if cfg.ExportMode == config.ExportAsync {
		queue = hosttree.NewQueue(applier, queueSize)
		sink = queue
	}
	v.SetObserver(hosttree.NewExporter(mapping, sink))

	l, err := link.Open(cfg.Port, cfg.Baud)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"port": cfg.Port, "baud": cfg.Baud}).Info("Serial disk ready. Press ^C to exit.")

	eng := engine.New(v, engine.WithCompressionThreshold(cfg.CompressionThreshold))
	serveErr := serve(ctx, eng, l, queue)

	// The volume is not used concurrently any more.
	if queue == nil {
		if err := applier.Retry(); err != nil {
			log.Errorf("Export incomplete: %v", err)
		}
	}
	if pending := applier.Pending(); pending > 0 {
		log.Errorf("%d changes could not be written to %s", pending, cfg.MountPath)
	}
	log.Infof("Served %d commands", eng.Commands())

	if cfg.SnapshotPath != "" {
		if err := saveSnapshot(hostFs, v, cfg.SnapshotPath); err != nil {
			log.Errorf("Snapshot failed: %v", err)
			if serveErr == nil {
				serveErr = err
			}
		}
	}
	return serveErr
}

// serve runs the engine, the export queue and the shutdown watcher.
func serve(ctx context.Context, eng *engine.Engine, l *link.Link, queue *hosttree.Queue) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-ctx.Done()
		// Serve blocks in Read, closing the link releases it.
		if err := l.Close(); err != nil && !errors.Is(err, link.ErrClosed) {
			log.Debugf("Closing the link: %v", err)
		}
		return nil
	})

	if queue != nil {
		// The queue outlives ctx until Serve stopped submitting, then Close drains it.
		group.Go(func() error {
			return queue.Run(context.WithoutCancel(ctx))
		})
	}

	group.Go(func() error {
		defer cancel()
		if queue != nil {
			defer queue.Close()
		}
		err := eng.Serve(ctx, l)
		if errors.Is(err, link.ErrClosed) {
			return nil
		}
		if serialdisk.IsContractViolation(err) {
			log.Errorf("Volume corrupted, stopping: %v", err)
		}
		return ignoreCanceled(err)
	})

	return group.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func saveSnapshot(fs afero.Fs, v *serialdisk.Volume, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return checkpoint.From(err)
	}
	if err := v.SaveSnapshot(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return checkpoint.From(err)
	}

	info, err := fs.Stat(path)
	if err == nil {
		log.Infof("Snapshot saved to %s (%s)", path, humanize.IBytes(uint64(info.Size())))
	}
	return nil
}
