package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"xdao.co/proofs/logging"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casconfig"
	"xdao.co/proofs/storage/casregistry"
	"xdao.co/proofs/storage/grpccas"

	_ "xdao.co/proofs/storage/gateway"
	_ "xdao.co/proofs/storage/gitobj"
	_ "xdao.co/proofs/storage/ipfs"
	_ "xdao.co/proofs/storage/localfs"
	_ "xdao.co/proofs/storage/memcas"
	_ "xdao.co/proofs/storage/rediscas"
	_ "xdao.co/proofs/storage/s3cas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("xdao-casgrpcd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "", "CAS backend name (default localfs)")
	casConfig := fs.String("cas-config", "", "CAS config file (JSON or YAML); --backend then names the preferred write target")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "Log level")
	logFormat := fs.String("log-format", "console", "Log format: console|json")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return proof.ExitOK
	}

	logger, err := logging.New(errOut, *logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return proof.ExitUsage
	}
	ctx, logger, _ = logging.WithRun(ctx, logger, "xdao-casgrpcd")

	cas, closeFn, err := openStore(*casConfig, *backend)
	if err != nil {
		logger.Error().Err(err).Msg("open store")
		return proof.ExitUsage
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error().Err(err).Msg("listen")
		return proof.ExitFailure
	}

	logger.Info().Str("addr", lis.Addr().String()).Str("backend", *backend).Msg("xdao-casgrpcd listening")
	if err := serve(ctx, lis, cas); err != nil {
		logger.Error().Err(err).Msg("serve")
		return proof.ExitFailure
	}
	return proof.ExitOK
}

func openStore(path, backend string) (storage.CAS, func() error, error) {
	if path == "" {
		if backend == "" {
			backend = "localfs"
		}
		return casregistry.Open(backend, casregistry.UsageDaemon)
	}
	cfg, err := casconfig.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg.Open(casregistry.UsageDaemon, backend)
}

// serve runs the CAS service on lis until ctx is done, then drains
// in-flight RPCs.
func serve(ctx context.Context, lis net.Listener, cas storage.CAS) error {
	logger := zerolog.Ctx(ctx)
	s := grpc.NewServer(grpc.UnaryInterceptor(logRPC(logger)))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		s.GracefulStop()
		return nil
	}
}

func logRPC(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(logger.WithContext(ctx), req)
		ev := logger.Debug()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("elapsed", time.Since(start)).Msg("rpc")
		return resp, err
	}
}
