package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// listentest stands in for a dependency while exercising the entrypoint:
// it binds TCP ports after an optional delay, so readiness retries can be
// observed end to end.
type flagOptions struct {
	Ports       []int `long:"port" description:"TCP port to accept and immediately close connections on (repeatable)"`
	GRPCPort    int   `long:"grpc-port" description:"port serving the standard gRPC health service"`
	StartDelay  int   `long:"start-delay" description:"seconds to wait before binding any port"`
	RunDuration int   `long:"run-duration" description:"seconds to run before exiting (0 runs until signalled)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if len(opts.Ports) == 0 && opts.GRPCPort == 0 {
		fmt.Println("At least one --port or --grpc-port is required")
		os.Exit(1)
	}

	fmt.Printf("Running Listentest, opts: %+v...\n", opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if opts.RunDuration > 0 {
		fmt.Printf("Using RUN DURATION of %d seconds\n", opts.RunDuration)
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}

	if opts.StartDelay > 0 {
		fmt.Printf("Delaying start by %d seconds\n", opts.StartDelay)
		select {
		case <-time.After(time.Duration(opts.StartDelay) * time.Second):
		case receivedSignal := <-sig:
			fmt.Printf("Listentest received signal during delay: %v\n", receivedSignal)
			return
		}
	}

	var wg sync.WaitGroup
	var listeners []net.Listener
	for _, port := range opts.Ports {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			fmt.Printf("Failed to listen on port %d: %v\n", port, err)
			os.Exit(1)
		}
		listeners = append(listeners, listener)

		wg.Add(1)
		go func() {
			defer wg.Done()
			accept(listener)
		}()
	}

	var grpcServer *grpc.Server
	if opts.GRPCPort > 0 {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.GRPCPort))
		if err != nil {
			fmt.Printf("Failed to listen on gRPC port %d: %v\n", opts.GRPCPort, err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, health.NewServer())

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := grpcServer.Serve(listener); err != nil {
				fmt.Printf("gRPC server stopped: %v\n", err)
			}
		}()
	}

	fmt.Printf("Listentest is ready\n")

	select {
	case receivedSignal := <-sig:
		fmt.Printf("Listentest received signal: %v\n", receivedSignal)
	case <-ctx.Done():
		fmt.Printf("Listentest timed out\n")
	}

	for _, listener := range listeners {
		listener.Close()
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	wg.Wait()

	fmt.Printf("Listentest stopped\n")
}

func accept(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}
