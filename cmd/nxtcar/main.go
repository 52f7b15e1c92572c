package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/namani/nxtcar/car"
	"github.com/namani/nxtcar/device"
	"github.com/namani/nxtcar/internal/config"
	"github.com/namani/nxtcar/internal/logger"
	"github.com/namani/nxtcar/nxt"
)

var (
	configPath string
	simulate   bool
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "nxtcar",
		Short: "Drive a LEGO NXT car from its touch and ultrasonic sensors.",
		Long: `Connects to an NXT brick, wires the configured touch and ultrasonic
sensors to their motors, and runs until interrupted. Touch sensors start
and stop their motor; an ultrasonic sensor reverses the driving
direction when an obstacle comes too close.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "nxtcar.yaml", "path to configuration file")
	rootCmd.Flags().BoolVar(&simulate, "sim", false, "drive a simulated brick instead of hardware")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// brickDevices adapts an nxt.Brick to the car's device resolver.
type brickDevices struct {
	b *nxt.Brick
}

func (d brickDevices) Motor(port string) (device.Motor, error) {
	p, err := nxt.ParseOutputPort(port)
	if err != nil {
		return nil, err
	}
	return d.b.Motor(p), nil
}

func (d brickDevices) Touch(port int) (device.Touch, error) {
	p, err := nxt.ParseInputPort(port)
	if err != nil {
		return nil, err
	}
	return d.b.Touch(p)
}

func (d brickDevices) Range(port int) (device.Range, error) {
	p, err := nxt.ParseInputPort(port)
	if err != nil {
		return nil, err
	}
	return d.b.Ultrasonic(p)
}

func run(ctx context.Context) error {
	level, ok := logger.ParseLevel(logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", logLevel)
	}
	log := logger.New(level)
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	var brick *nxt.Brick
	switch {
	case simulate:
		sim, conn := nxt.NewSimulator(cfg.Brick.Name)
		g.Go(func() error {
			err := sim.Run(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		})
		brick, err = nxt.NewBrick(conn, cfg.Brick.Name)
	case cfg.Brick.TCPAddr != "":
		brick, err = nxt.ConnectTCP(ctx, cfg.Brick.TCPAddr, cfg.Brick.Name)
	case cfg.Brick.SerialPort != "":
		brick, err = nxt.Connect(cfg.Brick.SerialPort, cfg.Brick.Name)
	default:
		err = fmt.Errorf("config: no brick link configured")
	}
	if err != nil {
		// Device discovery failures are fatal; there is no retry.
		return err
	}
	defer brick.Close()
	log.Infof("connected to brick %q", brick.Name())

	srv := newServer(log)
	c, err := car.New(cfg, brickDevices{brick}, srv.resultCallback, log)
	if err != nil {
		return err
	}
	srv.car = c

	if cfg.Listen != "" {
		httpSrv := &http.Server{
			Handler:     srv.router(),
			Addr:        cfg.Listen,
			ReadTimeout: 15 * time.Second,
		}
		g.Go(func() error {
			log.Infof("status server listening on %s", cfg.Listen)
			if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return httpSrv.Close()
		})
	}

	g.Go(func() error { return c.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("clean shutdown")
	return nil
}
