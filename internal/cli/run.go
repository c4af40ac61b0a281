// File: internal/cli/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The run command brings up two registries, a host and a device, joined by
// one link, pushes WRITE events from host to device and reports what
// arrived. The link is an in-process pipe unless --listen names a TCP
// address, in which case the device listens and the host dials. With
// --local-host the host also serves a local producer through the passthrough
// bridge, and every bridged read reaches the device as one more WRITE.

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/xlinkd/api"
	"github.com/momentics/xlinkd/control"
	"github.com/momentics/xlinkd/dispatcher"
	"github.com/momentics/xlinkd/ipc"
	"github.com/momentics/xlinkd/pool"
	"github.com/momentics/xlinkd/protocol"
	"github.com/momentics/xlinkd/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Events  int
	Size    int
	Listen    string
	Timeout   time.Duration
	LocalHost bool
}

// RunSummary is the run command's output.
type RunSummary struct {
	HostRegistry   string         `json:"host_registry"`
	DeviceRegistry string         `json:"device_registry"`
	Transport      string         `json:"transport"`
	Sent           int            `json:"sent"`
	Passthrough    int            `json:"passthrough"`
	Received       int64          `json:"received"`
	PayloadBytes   int64          `json:"payload_bytes"`
	Elapsed        time.Duration  `json:"elapsed_ns"`
	Host           map[string]any `json:"host_probes"`
	Device         map[string]any `json:"device_probes"`
}

// linkDevice is the software device id both ends use for the link.
var linkDevice = api.MakeSWDeviceID(api.InterfaceEthernet, 1)

// passthroughChannel carries the local producer's messages.
const passthroughChannel = 1

// localEndpoint is the local producer's side of the bridge channels.
type localEndpoint interface {
	ipc.Endpoint
	Send(channel uint16, data []byte) error
	SendHandle(channel uint16, handle uint32) error
	Close() error
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a host/device loopback over one link",
		Long: `Start a host and a device registry joined by one link and send
WRITE events from the host. The device multiplexer reads each payload off
the link, as an upper-layer consumer would.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			log, err := control.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary, err := runLoopback(ctx, cfg, *opts, log)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), rootOpts.Format, summary)
		},
	}
	cmd.Flags().IntVarP(&opts.Events, "events", "n", 16, "number of WRITE events to send")
	cmd.Flags().IntVar(&opts.Size, "size", 64, "payload size in bytes")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "TCP address for the link (default: in-process pipe)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "give up if the device has not received every event")
	cmd.Flags().BoolVar(&opts.LocalHost, "local-host", false, "also bridge as many local passthrough reads onto the link")
	return cmd
}

// sink is the device-side multiplexer: it pulls the payload of write
// events off the link and returns the event.
type sink struct {
	reg   *dispatcher.Registry
	tr    api.Transport
	ctx   context.Context
	log   *zap.Logger
	want  int64
	count atomic.Int64
	bytes atomic.Int64
	done  chan struct{}
}

func (s *sink) DeliverReceived(ev *pool.Event) error {
	if ev.Header.Type.CarriesPayload() && ev.Header.Size > 0 {
		buf := make([]byte, ev.Header.Size)
		n, err := s.tr.Read(s.ctx, ev.Interface, ev.Handle.SWDeviceID, buf, time.Second)
		if err != nil {
			s.log.Warn("payload read failed", zap.Uint32("id", ev.Header.ID), zap.Error(err))
		}
		s.bytes.Add(int64(n))
	}
	s.reg.DestroyEvent(ev)
	if s.count.Add(1) == s.want {
		close(s.done)
	}
	return nil
}

// connectLink returns the two ends of the link, attached to their transports.
func connectLink(ctx context.Context, listen string, hostTr, devTr *transport.ConnTransport, log *zap.Logger) (string, func(), error) {
	if listen == "" {
		h, d := net.Pipe()
		if err := multierr.Combine(hostTr.Attach(linkDevice, h), devTr.Attach(linkDevice, d)); err != nil {
			return "", nil, err
		}
		return "pipe", func() {}, nil
	}

	attached := make(chan struct{}, 1)
	ln, err := transport.Listen(transport.ListenerConfig{
		Addr:       listen,
		SWDeviceID: linkDevice,
		Transport:  devTr,
		Logger:     log,
		OnAttach:   func(net.Conn) { attached <- struct{}{} },
	})
	if err != nil {
		return "", nil, err
	}
	serveCtx, cancel := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- ln.Serve(serveCtx) }()
	closeFn := func() {
		cancel()
		if err := <-served; err != nil {
			log.Warn("listener stopped", zap.Error(err))
		}
	}
	if _, err := transport.Dial(ctx, hostTr, "tcp", ln.Addr().String(), linkDevice); err != nil {
		closeFn()
		return "", nil, err
	}
	select {
	case <-attached:
	case <-ctx.Done():
		closeFn()
		return "", nil, ctx.Err()
	}
	return "tcp " + ln.Addr().String(), closeFn, nil
}

func runLoopback(ctx context.Context, cfg control.Config, opts RunOptions, log *zap.Logger) (RunSummary, error) {
	if opts.Events <= 0 || opts.Size <= 0 {
		return RunSummary{}, fmt.Errorf("%w: events and size must be positive", api.ErrInvalidArgument)
	}
	hostTr, devTr := transport.NewConnTransport(), transport.NewConnTransport()
	defer hostTr.Close()
	defer devTr.Close()

	kind, closeLink, err := connectLink(ctx, opts.Listen, hostTr, devTr, log)
	if err != nil {
		return RunSummary{}, err
	}
	defer closeLink()

	hostCfg := cfg
	hostOpts := []dispatcher.Option{
		dispatcher.WithLogger(log.Named("host")),
		dispatcher.WithRegisterer(prometheus.NewRegistry()),
	}
	var ep localEndpoint
	passthrough := 0
	if opts.LocalHost {
		ep = newLocalEndpoint()
		defer ep.Close()
		hostCfg.LocalHost = true
		hostOpts = append(hostOpts, dispatcher.WithIPCEndpoint(ep))
		passthrough = opts.Events
	}

	var host *dispatcher.Registry
	hostAlloc := pool.NewHeapAllocator()
	host, err = dispatcher.Init(hostCfg, hostTr, hostAlloc,
		dispatcher.MultiplexerFunc(func(ev *pool.Event) error {
			host.DestroyEvent(ev)
			return nil
		}), hostOpts...)
	if err != nil {
		return RunSummary{}, err
	}

	s := &sink{tr: devTr, ctx: ctx, log: log, want: int64(opts.Events + passthrough), done: make(chan struct{})}
	device, err := dispatcher.Init(cfg, devTr, pool.NewHeapAllocator(), s,
		dispatcher.WithLogger(log.Named("device")),
		dispatcher.WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		return RunSummary{}, multierr.Append(err, host.Destroy())
	}
	s.reg = device

	handle := &api.Handle{DeviceName: "loopback", SWDeviceID: linkDevice}
	teardown := func() error {
		return multierr.Combine(host.Destroy(), device.Destroy())
	}
	if err := multierr.Combine(device.Start(0, handle), host.Start(0, handle)); err != nil {
		return RunSummary{}, multierr.Append(err, teardown())
	}

	start := time.Now()
	var registered []uint64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sendWrites(gctx, host, hostAlloc, handle, opts, cfg.PacketAlignment); err != nil {
			return err
		}
		if ep == nil {
			return nil
		}
		var err error
		registered, err = sendPassthrough(gctx, host, hostAlloc, ep, handle, opts, hostCfg)
		return err
	})
	g.Go(func() error {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		select {
		case <-s.done:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		case <-timer.C:
			return fmt.Errorf("%w: device received %d of %d events", api.ErrTimeout, s.count.Load(), s.want)
		}
	})
	runErr := g.Wait()
	elapsed := time.Since(start)

	summary := RunSummary{
		HostRegistry:   host.ID().String(),
		DeviceRegistry: device.ID().String(),
		Transport:      kind,
		Sent:           opts.Events,
		Passthrough:    passthrough,
		Received:       s.count.Load(),
		PayloadBytes:   s.bytes.Load(),
		Elapsed:        elapsed,
		Host:           host.Probes().Dump(),
		Device:         device.Probes().Dump(),
	}
	// closing the link first unblocks any read still in progress
	closeErr := multierr.Combine(hostTr.Close(), devTr.Close())
	tornDown := teardown()
	freeErr := freeRegistered(hostAlloc, registered, cfg.PacketAlignment)
	if err := multierr.Combine(runErr, tornDown, closeErr, freeErr); err != nil {
		return summary, err
	}
	return summary, nil
}

// backoff waits a millisecond unless ctx ends first.
func backoff(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Millisecond):
		return nil
	}
}

// createEvent takes an event on link 0, waiting while the pool is empty.
func createEvent(ctx context.Context, host *dispatcher.Registry, t protocol.EventType, h *api.Handle, channel uint16, size uint32) (*pool.Event, error) {
	for {
		ev, err := host.CreateEvent(0, t, h, channel, size, 0)
		if !errors.Is(err, api.ErrPoolExhausted) {
			return ev, err
		}
		if err := backoff(ctx); err != nil {
			return nil, err
		}
	}
}

// sendWrites submits opts.Events WRITE events with allocator-owned payloads.
func sendWrites(ctx context.Context, host *dispatcher.Registry, alloc api.Allocator, h *api.Handle, opts RunOptions, align int) error {
	for i := 0; i < opts.Events; i++ {
		ev, err := createEvent(ctx, host, protocol.WriteReq, h, uint16(i%16), uint32(opts.Size))
		if err != nil {
			return err
		}
		buf, phys, err := alloc.Allocate(opts.Size, align, api.MemoryNormal)
		if err != nil {
			host.DestroyEvent(ev)
			return err
		}
		fill(buf, i)
		ev.SetPayload(buf, phys, true)
		if err := host.Submit(api.OriginTX, ev); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

// sendPassthrough plays the local producer: even requests read a volatile
// message into a bridge scratch buffer, odd ones publish a DMA buffer and
// send its handle. It returns the physical addresses of the published
// buffers, which stay owned by the producer.
func sendPassthrough(ctx context.Context, host *dispatcher.Registry, alloc *pool.HeapAllocator, ep localEndpoint,
	h *api.Handle, opts RunOptions, cfg control.Config) ([]uint64, error) {
	table := host.Bridge().Buffers()
	var registered []uint64
	for i := 0; i < opts.Events; i++ {
		typ := protocol.PassthruReadToBufferReq
		if i%2 == 1 {
			typ = protocol.PassthruReadReq
			buf, phys, err := alloc.Allocate(opts.Size, cfg.PacketAlignment, api.MemoryDMA)
			if err != nil {
				return registered, err
			}
			fill(buf, i)
			registered = append(registered, phys)
			if err := ep.SendHandle(passthroughChannel, table.Register(buf, phys)); err != nil {
				return registered, err
			}
		} else {
			msg := make([]byte, min(opts.Size, cfg.IPCScratchSize))
			fill(msg, i)
			if err := ep.Send(passthroughChannel, msg); err != nil {
				return registered, err
			}
		}

		// one queued request at a time leaves the bridge an event for its response
		for host.Bridge().Pending() > 0 {
			if err := backoff(ctx); err != nil {
				return registered, err
			}
		}
		ev, err := createEvent(ctx, host, typ, h, passthroughChannel, 0)
		if err != nil {
			return registered, err
		}
		for {
			err = host.SubmitPassthrough(ev)
			if !errors.Is(err, api.ErrQueueFull) {
				break
			}
			if err = backoff(ctx); err != nil {
				break
			}
		}
		if err != nil {
			host.DestroyEvent(ev)
			return registered, fmt.Errorf("passthrough %d: %w", i, err)
		}
	}
	return registered, nil
}

// freeRegistered releases the producer's published buffers by physical
// address. Buffers already gone from the allocator are skipped.
func freeRegistered(alloc *pool.HeapAllocator, registered []uint64, align int) error {
	var errs error
	for _, phys := range registered {
		buf, ok := alloc.Lookup(phys)
		if !ok {
			continue
		}
		errs = multierr.Append(errs, alloc.Deallocate(buf, phys, align, api.MemoryDMA))
	}
	return errs
}

func fill(buf []byte, seed int) {
	for j := range buf {
		buf[j] = byte(seed + j)
	}
}

func printSummary(w io.Writer, format string, s RunSummary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err := fmt.Fprintf(w, "link: %s\nhost: %s\ndevice: %s\nsent: %d\npassthrough: %d\nreceived: %d\npayload bytes: %d\nelapsed: %s\n",
		s.Transport, s.HostRegistry, s.DeviceRegistry, s.Sent, s.Passthrough, s.Received, s.PayloadBytes, s.Elapsed)
	return err
}
