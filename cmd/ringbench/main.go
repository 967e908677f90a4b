// File: cmd/ringbench/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ringbench streams a byte pattern through one ring with a single producer
// and several guarded readers, verifies every byte and reports throughput.
//
// Device-backed spaces (device, managed, pinned) run on the software
// emulator unless -device=none is given or another device has been
// registered.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/momentics/hioload-ring/affinity"
	"github.com/momentics/hioload-ring/api"
	"github.com/momentics/hioload-ring/control"
	"github.com/momentics/hioload-ring/device"
	"github.com/momentics/hioload-ring/device/emulator"
	"github.com/momentics/hioload-ring/memory"
	"github.com/momentics/hioload-ring/ring"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagCapacity = flag.String("capacity", "", "Ring capacity, e.g. 4MiB. Overrides HIOLOAD_RING_CAPACITY.")
	flagSpace    = flag.String("space", "", "Backing space: system, pinned, device or managed. Overrides HIOLOAD_RING_SPACE.")
	flagDevice   = flag.String("device", "", "Device behind non-system spaces: emulator or none. Overrides HIOLOAD_RING_DEVICE.")
	flagTotal    = flag.String("total", "256MiB", "Bytes to stream through the ring.")
	flagChunk    = flag.String("chunk", "64KiB", "Bytes per write and per read.")
	flagReaders  = flag.Int("readers", 2, "Number of guarded readers.")
	flagTimeout  = flag.Duration("timeout", time.Minute, "Abort the run after this long.")
	flagDebug    = flag.Bool("debug", false, "Report every failed condition through klog.")
	flagQuiet    = flag.Bool("quiet", false, "Disable the progress bar.")
	flagPin      = flag.Bool("pin", false, "Pin the producer and each reader to its own CPU.")
)

// pattern is the expected byte at logical offset off.
func pattern(off uint64) byte { return byte(off % 251) }

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	plane := control.NewPlane()
	plane.Config.LoadEnv()
	overrides := map[string]any{}
	if *flagCapacity != "" {
		overrides[control.KeyRingCapacity] = *flagCapacity
	}
	if *flagSpace != "" {
		overrides[control.KeyRingSpace] = *flagSpace
	}
	if *flagDevice != "" {
		overrides[control.KeyDevice] = *flagDevice
	}
	if *flagDebug {
		overrides[control.KeyDebug] = true
	}
	if len(overrides) > 0 {
		must.M(plane.SetConfig(overrides))
	}
	plane.Config.BindDebugFlag()

	opts := must.M1(ring.OptionsFromConfig(plane.Config))
	opts.Name = "ringbench"
	if opts.Space != api.SpaceSystem {
		switch name := plane.Config.String(control.KeyDevice, "emulator"); name {
		case "emulator":
			if !device.Enabled() {
				dev := emulator.New()
				device.Register(dev)
				defer device.Unregister(dev)
				klog.V(1).Infof("using %s device for %s ring", dev.Name(), opts.Space)
			}
		case "none":
			klog.V(1).Infof("no device for %s ring", opts.Space)
		default:
			klog.Exitf("unknown device %q, want emulator or none", name)
		}
	}

	total := int(must.M1(humanize.ParseBytes(*flagTotal)))
	chunk := int(must.M1(humanize.ParseBytes(*flagChunk)))
	if chunk > opts.Capacity {
		chunk = opts.Capacity
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	rings := ring.NewRegistry(plane)
	defer func() { _ = rings.Close() }()
	r := must.M1(rings.Create(opts))
	klog.Infof("%s", r)

	// Readers pin offset 0 before the producer starts so nothing is lost.
	guards := make([]*ring.Guarantee, *flagReaders)
	for i := range guards {
		guards[i] = must.M1(r.OpenGuaranteeAt(0))
	}

	var bar *progressbar.ProgressBar
	if !*flagQuiet {
		bar = progressbar.NewOptions64(int64(total),
			progressbar.OptionSetDescription(fmt.Sprintf("%s ring, %d readers", opts.Space, *flagReaders)),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	var cpus []int
	if *flagPin {
		cpus = must.M1(affinity.Allowed())
	}

	start := time.Now()
	var (
		wg   sync.WaitGroup
		errs = make([]error, len(guards)+1)
	)
	for i, g := range guards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer g.Release()
			defer pin(cpus, i+1)()
			var onRead func(int)
			if i == 0 && bar != nil {
				onRead = func(n int) { _ = bar.Add(n) }
			}
			errs[i+1] = errors.WithMessagef(consume(ctx, g, chunk, onRead), "reader %d", i)
		}()
	}
	unpin := pin(cpus, 0)
	errs[0] = errors.WithMessage(produce(ctx, r, total, chunk), "producer")
	unpin()
	_ = r.Close()
	wg.Wait()
	elapsed := time.Since(start)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	rings.Collect()
	memory.PublishStats(plane.Metrics)
	failed := false
	for _, err := range errs {
		if err != nil {
			klog.Errorf("%+v", err)
			failed = true
		}
	}
	rate := uint64(float64(total) / elapsed.Seconds())
	klog.Infof("streamed %s to %d readers in %s (%s/s per reader)",
		humanize.IBytes(uint64(total)), len(guards), elapsed.Round(time.Millisecond), humanize.IBytes(rate))
	if klog.V(1).Enabled() {
		for k, v := range plane.Stats() {
			klog.Infof("  %s = %v", k, v)
		}
	}
	klog.Flush()
	if failed {
		os.Exit(1)
	}
}

// pin binds the calling goroutine to the slot-th allowed CPU when pinning
// is enabled, returning the undo function.
func pin(cpus []int, slot int) func() {
	if len(cpus) == 0 {
		return func() {}
	}
	cpu := affinity.Spread(cpus, slot)
	unpin, err := affinity.Pin(cpu)
	if err != nil {
		klog.Warningf("pin slot %d to cpu %d: %v", slot, cpu, err)
		return func() {}
	}
	return unpin
}

// syncIfDevice waits for queued transfers when the ring lives off-host.
func syncIfDevice(ctx context.Context, space api.Space) error {
	if space.HostAccessible() {
		return nil
	}
	return device.Synchronize(ctx)
}

// streamContext binds a fresh device stream to ctx when a device is present.
func streamContext(ctx context.Context) (context.Context, error) {
	dev := device.Current()
	if dev == nil {
		return ctx, nil
	}
	s, err := dev.NewStream()
	if err != nil {
		return nil, err
	}
	return device.WithStream(ctx, s), nil
}

func produce(ctx context.Context, r *ring.Ring, total, chunk int) error {
	ctx, err := streamContext(ctx)
	if err != nil {
		return err
	}
	src := make([]byte, chunk)
	for written := 0; written < total; {
		n := min(chunk, total-written)
		res, err := r.ReserveWait(ctx, n)
		if err != nil {
			return err
		}
		for i := range src[:n] {
			src[i] = pattern(res.Offset() + uint64(i))
		}
		if err := res.CopyFrom(ctx, 0, api.HostPtr(src), api.SpaceSystem, n); err != nil {
			_ = res.Abandon()
			return err
		}
		if err := syncIfDevice(ctx, r.Space()); err != nil {
			_ = res.Abandon()
			return err
		}
		if err := res.Commit(n); err != nil {
			return err
		}
		written += n
	}
	return nil
}

func consume(ctx context.Context, g *ring.Guarantee, chunk int, onRead func(int)) error {
	ctx, err := streamContext(ctx)
	if err != nil {
		return err
	}
	r := g.Ring()
	dst := make([]byte, chunk)
	for {
		err := r.WaitFor(ctx, g.Offset()+1)
		if api.StatusOf(err) == api.StatusEndOfData {
			return nil
		}
		if err != nil {
			return err
		}
		n := min(chunk, g.Available())
		if err := g.Read(ctx, api.HostPtr(dst), api.SpaceSystem, n); err != nil {
			return err
		}
		if err := syncIfDevice(ctx, r.Space()); err != nil {
			return err
		}
		off := g.Offset()
		for i, b := range dst[:n] {
			if want := pattern(off + uint64(i)); b != want {
				return errors.Errorf("byte at offset %d is %#x, want %#x", off+uint64(i), b, want)
			}
		}
		if err := g.Advance(n); err != nil {
			return err
		}
		if onRead != nil {
			onRead(n)
		}
	}
}
