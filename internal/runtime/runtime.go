package runtime

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openxrd/openxrd/internal/acceptor"
	"github.com/openxrd/openxrd/internal/compositor"
	"github.com/openxrd/openxrd/internal/device"
	"github.com/openxrd/openxrd/internal/device/discover"
	"github.com/openxrd/openxrd/internal/device/simdevice"
	"github.com/openxrd/openxrd/internal/dispatch"
	"github.com/openxrd/openxrd/internal/shm"
	"github.com/openxrd/openxrd/internal/telemetry"
)

// BuildID is the build-identifier string the server writes into
// shared memory at startup; the client library must match it
// byte-for-byte. A real release process would stamp this at link time
// (-ldflags); the fixed string here is a stand-in so the wire
// contract has something concrete to compare against.
const BuildID = "openxrd-core-1"

// Options configures a Runtime's bootstrap, folding together every
// environment/deployment toggle.
type Options struct {
	SocketPath       string // empty = DefaultSocketPath()
	LockPath         string // empty = DefaultLockPath()
	MaxClients       int    // 0 = DefaultMaxClients
	RefreshRateHz    int    // 0 = 60
	GPU              GPUBackend
	RelaxPermissions bool // allow any local user to connect, for multi-user testing
	ExitOnDisconnect bool // test mode: exit once a client connection drops
}

// DefaultMaxClients bounds the thread-slot table (MAX_CLIENTS),
// generous enough for a primary plus several overlays/debug tools.
const DefaultMaxClients = 16

func (o Options) withDefaults() Options {
	if o.SocketPath == "" {
		o.SocketPath = DefaultSocketPath()
	}
	if o.LockPath == "" {
		o.LockPath = DefaultLockPath()
	}
	if o.MaxClients <= 0 {
		o.MaxClients = DefaultMaxClients
	}
	if o.RefreshRateHz <= 0 {
		o.RefreshRateHz = 60
	}
	return o
}

// Runtime owns every component the bootstrap brings up: the lockfile,
// the listening endpoint, the device catalog and its backing drivers,
// the shared-memory segment, the compositor base, the acceptor, and
// the dispatch server.
type Runtime struct {
	opts Options

	lock     *LockFile
	listener net.Listener
	segment  shm.Segment
	devices  []device.Device

	comp     *compositor.Base
	stopPres func()
	server   *dispatch.Server
	acc      *acceptor.Acceptor

	control      shutdownSource
	disconnected chan struct{} // closed once, only when Options.ExitOnDisconnect is set
}

// New brings up every component in dependency order: single-instance
// guard, listening socket/pipe, device discovery and catalog
// construction, shared-memory segment, graphics bundle and system
// compositor, dispatch server, acceptor. Any failure
// aborts startup and unwinds whatever was already brought up.
func New(opts Options) (rt *Runtime, err error) {
	opts = opts.withDefaults()

	lock, err := AcquireLock(opts.LockPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			lock.Release()
		}
	}()

	listener, err := Listen(opts.SocketPath, opts.RelaxPermissions)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			listener.Close()
		}
	}()

	registry := discover.NewRegistry()
	registry.Register(simdevice.Prober{})
	found, skipped, err := registry.ProbeAll()
	if err != nil {
		return nil, fmt.Errorf("runtime: device discovery: %w", err)
	}
	if len(skipped) > 0 {
		telemetry.Infof("runtime: skipped unsupported device backends: %v", skipped)
	}

	startupTimestamp := currentUnixNano()
	catalog := shm.NewCatalog(1, startupTimestamp)
	devices := make([]device.Device, 0, len(found))
	roles := shm.NewRoleAssignments()
	for _, f := range found {
		if err := catalog.AddOrigin(shm.TrackingOrigin{Name: f.Entry.OriginName}); err != nil {
			return nil, fmt.Errorf("runtime: add origin: %w", err)
		}
		idx, err := catalog.AddDevice(f.Entry)
		if err != nil {
			return nil, fmt.Errorf("runtime: add device: %w", err)
		}
		devices = append(devices, f.Device)
		assignRole(&roles, f.Entry, idx)
	}
	catalog.SetRoles(roles)
	catalog.Publish()

	segment, err := shm.NewSegment("openxrd")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			segment.Close()
		}
	}()
	shm.EncodeHeader(segment.Bytes(), catalog.Version, startupTimestamp, BuildID)
	if err := shm.EncodeCatalog(segment.Bytes(), catalog); err != nil {
		return nil, fmt.Errorf("runtime: encode catalog into shared memory: %w", err)
	}

	bundle, err := selectBundle(opts.GPU)
	if err != nil {
		return nil, fmt.Errorf("runtime: graphics bundle: %w", err)
	}

	presenter, stopPres := newPresenter(opts.RefreshRateHz)
	ring := shm.NewRing()
	ring.AttachSegment(segment.Bytes())
	comp := compositor.NewBase(bundle, ring, presenter)

	disconnected := make(chan struct{})
	var disconnectOnce sync.Once
	var onDisconnect func()
	if opts.ExitOnDisconnect {
		onDisconnect = func() {
			disconnectOnce.Do(func() { close(disconnected) })
		}
	}

	server := dispatch.New(dispatch.Config{
		Catalog:          catalog,
		Ring:             ring,
		Segment:          segment,
		BuildID:          BuildID,
		StartupTimestamp: startupTimestamp,
		RefreshRateHz:    opts.RefreshRateHz,
		Compositor:       comp,
		Devices:          devices,
		MaxClients:       opts.MaxClients,
		OnDisconnect:     onDisconnect,
	})

	acc := acceptor.New(listener, opts.MaxClients, server.HandleConnection)

	control := shutdownSource(NewControlWatcher())

	rt = &Runtime{
		opts:         opts,
		lock:         lock,
		listener:     listener,
		segment:      segment,
		devices:      devices,
		comp:         comp,
		stopPres:     stopPres,
		server:       server,
		acc:          acc,
		control:      control,
		disconnected: disconnected,
	}
	return rt, nil
}

// assignRole fills in the well-known role table entry a newly
// published device qualifies for. The first HMD/left/right
// controller/gamepad/hand-tracker
// discovered wins its role; a later device of the same type does not
// displace it (role reassignment on disconnect/reconnect is handled
// by a future discovery pass re-running this same rule over the
// then-current catalog, not by this one-shot bootstrap walk).
func assignRole(roles *shm.RoleAssignments, entry shm.DeviceEntry, idx int) {
	switch entry.Type {
	case shm.DeviceHMD:
		if roles.Head < 0 {
			roles.Head = idx
		}
	case shm.DeviceLeftHandController:
		if roles.Left < 0 {
			roles.Left = idx
		}
	case shm.DeviceRightHandController:
		if roles.Right < 0 {
			roles.Right = idx
		}
	case shm.DeviceGamepad:
		if roles.Gamepad < 0 {
			roles.Gamepad = idx
		}
	case shm.DeviceHandTracker:
		if roles.LeftHandTracker < 0 {
			roles.LeftHandTracker = idx
		} else if roles.RightHandTracker < 0 {
			roles.RightHandTracker = idx
		}
	}
}

// garbageCollectPeriod paces the once-per-frame deferred-destruction
// drain to the configured refresh rate.
func garbageCollectPeriod(refreshRateHz int) time.Duration {
	if refreshRateHz <= 0 {
		refreshRateHz = 60
	}
	return time.Second / time.Duration(refreshRateHz)
}

// Run accepts connections and drains the deferred-destruction stack
// once per frame until ctx is canceled, the operator requests shutdown
// via the control watcher, or the acceptor's listener fails. It
// returns once every per-client listener has drained.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := rt.acc.Run()
		cancel()
		return err
	})
	g.Go(func() error {
		ticker := time.NewTicker(garbageCollectPeriod(rt.opts.RefreshRateHz))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := rt.comp.GarbageCollect(); err != nil {
					telemetry.Errorf("runtime: garbage collect: %v", err)
				}
			}
		}
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-rt.control.ShutdownRequested():
			telemetry.Infof("runtime: shutdown requested via control input")
			cancel()
		case <-rt.disconnected:
			telemetry.Infof("runtime: exiting on client disconnect (test mode)")
			cancel()
		}
		return nil
	})

	<-gctx.Done()
	rt.acc.Shutdown()
	return g.Wait()
}

// Shutdown releases every resource Run does not already own the
// lifetime of: the control watcher, the presenter, device drivers, the
// shared-memory segment, and the single-instance lockfile. Call after
// Run returns.
func (rt *Runtime) Shutdown() error {
	rt.control.Close()
	rt.stopPres()
	for _, d := range rt.devices {
		if err := d.Destroy(); err != nil {
			telemetry.Warnf("runtime: device destroy: %v", err)
		}
	}
	if err := rt.segment.Close(); err != nil {
		telemetry.Warnf("runtime: segment close: %v", err)
	}
	return rt.lock.Release()
}
