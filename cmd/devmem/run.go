package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/born-ml/devmem/internal/backend/host"
	"github.com/born-ml/devmem/internal/memory"
	"github.com/born-ml/devmem/internal/parallel"
	"github.com/born-ml/devmem/internal/tensor"
	"github.com/spf13/cobra"
)

// runOptions describes a synthetic workload: every iteration allocates one
// storage arena, slices it into equal float32 views and releases everything.
type runOptions struct {
	device    string
	deviceID  int
	strategy  string
	iters     int
	workers   int
	size      uint64
	views     int
	clear     bool
	pageSize  uint64
	maxPooled int
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic allocation workload and print allocator stats",
		Long: `The run command allocates an arena per iteration through the chosen
allocator, carves it into tensor views, releases them, and prints the
allocator statistics afterwards.

Example:
  devmem run --strategy pooled --iters 1000 --size 65536 --views 16
  devmem run --strategy naive --json
  devmem run --workers 8 --iters 10000
  devmem run --clear -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd.OutOrStdout(), opts, jsonOut)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.device, "device", "cpu", "Device type")
	flags.IntVar(&opts.deviceID, "device-id", 0, "Device ordinal")
	flags.StringVar(&opts.strategy, "strategy", "pooled", "Allocator strategy (naive or pooled)")
	flags.IntVar(&opts.iters, "iters", 100, "Number of arena allocations")
	flags.IntVar(&opts.workers, "workers", 1, "Concurrent workers sharing the allocator")
	flags.Uint64Var(&opts.size, "size", 1<<16, "Arena size in bytes")
	flags.IntVar(&opts.views, "views", 8, "Tensor views carved from each arena")
	flags.BoolVar(&opts.clear, "clear", false, "Release pooled memory before printing stats")
	flags.Uint64Var(&opts.pageSize, "page-size", memory.DefaultPageSize, "Pool size class granularity in bytes")
	flags.IntVar(&opts.maxPooled, "max-pooled", 0, "Max free buffers kept per size class (0 = unlimited)")
	return cmd
}

func runWorkload(out io.Writer, opts runOptions, asJSON bool) error {
	devType, err := tensor.ParseDeviceType(opts.device)
	if err != nil {
		return err
	}
	typ, err := memory.ParseAllocatorType(opts.strategy)
	if err != nil {
		return err
	}
	if opts.views < 1 {
		return fmt.Errorf("views must be at least 1, got %d", opts.views)
	}

	config := memory.PoolConfig{PageSize: opts.pageSize, MaxPooledPerSize: opts.maxPooled}
	host.Register()

	m := memory.NewManager(memory.WithPoolConfig(config))
	dev := tensor.Device{Type: devType, ID: opts.deviceID}
	alloc, err := m.GetOrCreateAllocator(dev, typ)
	if err != nil {
		return err
	}

	dtype := tensor.Float32()
	viewBytes := opts.size / uint64(opts.views) / dtype.ElemBytes() * dtype.ElemBytes()
	shape := tensor.Shape{int64(viewBytes / dtype.ElemBytes())}

	err = parallel.Run(opts.iters, func(i int) error {
		if err := runIteration(alloc, dev, opts, shape, viewBytes); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		return nil
	}, parallel.Config{Workers: opts.workers, MinBatch: 1})
	if err != nil {
		return err
	}

	if opts.clear {
		m.Clear()
	}
	return writeStats(out, m.Snapshot(), asJSON)
}

func runIteration(alloc memory.Allocator, dev tensor.Device, opts runOptions, shape tensor.Shape, viewBytes uint64) error {
	storage, err := memory.AllocStorage(alloc, dev, opts.size, tensor.AllocAlignment, tensor.Float32())
	if err != nil {
		return err
	}

	handles := make([]*memory.Handle, 0, opts.views)
	var errs []error
	for v := 0; v < opts.views; v++ {
		h, err := storage.AllocTensor(uint64(v)*viewBytes, shape, tensor.Float32())
		if err != nil {
			errs = append(errs, err)
			break
		}
		handles = append(handles, h)
	}

	for _, h := range handles {
		errs = append(errs, h.Release())
	}
	errs = append(errs, storage.Release())
	return errors.Join(errs...)
}
