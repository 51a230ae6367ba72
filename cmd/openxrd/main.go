// Command openxrd is the system XR runtime service: a single
// listening endpoint that every client process on the host connects
// to, brokering device access, GPU swapchains, and the per-frame
// layer composite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openxrd/openxrd/internal/runtime"
	"github.com/openxrd/openxrd/internal/telemetry"
)

func main() {
	var (
		socketPath       = flag.String("socket", "", "listening socket/pipe path (default: platform runtime dir)")
		lockPath         = flag.String("lock", "", "single-instance lockfile path (default: platform runtime dir)")
		maxClients       = flag.Int("max-clients", runtime.DefaultMaxClients, "maximum concurrent client connections")
		refreshRateHz    = flag.Int("refresh-rate", 60, "compositor target refresh rate in Hz")
		gpuFlag          = flag.String("gpu", "auto", "graphics bundle: auto, vulkan, or software")
		relaxPerms       = flag.Bool("relax-socket-permissions", false, "allow any local user to connect (default: owner only)")
		exitOnDisconnect = flag.Bool("exit-on-disconnect", false, "exit once a client connection drops (test mode)")
	)
	flag.Parse()

	backend, err := parseGPUBackend(*gpuFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	resolvedSocket := *socketPath
	if resolvedSocket == "" {
		resolvedSocket = runtime.DefaultSocketPath()
	}
	opts := runtime.Options{
		SocketPath:       resolvedSocket,
		LockPath:         *lockPath,
		MaxClients:       *maxClients,
		RefreshRateHz:    *refreshRateHz,
		GPU:              backend,
		RelaxPermissions: *relaxPerms,
		ExitOnDisconnect: *exitOnDisconnect,
	}

	rt, err := runtime.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "openxrd: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry.Infof("openxrd: listening on %s", resolvedSocket)
	runErr := rt.Run(ctx)
	if shutErr := rt.Shutdown(); shutErr != nil {
		telemetry.Warnf("openxrd: shutdown: %v", shutErr)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "openxrd: %v\n", runErr)
		os.Exit(1)
	}
}

func parseGPUBackend(s string) (runtime.GPUBackend, error) {
	switch s {
	case "", "auto":
		return runtime.GPUAuto, nil
	case "vulkan":
		return runtime.GPUVulkan, nil
	case "software":
		return runtime.GPUSoftware, nil
	default:
		return runtime.GPUAuto, fmt.Errorf("openxrd: unknown -gpu value %q (want auto, vulkan, or software)", s)
	}
}
