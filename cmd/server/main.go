// Command server runs the HTTP/1.1 origin server: it dispatches requests to
// either a local static-file responder or a remote FastCGI application
// server, per the configuration file it's pointed at.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fcgiserver/config"
	"fcgiserver/fastcgi"
	"fcgiserver/httpserver"
	"fcgiserver/service"
)

var (
	configPath string
	dumpConfig bool
)

func main() {
	root := &cobra.Command{
		Use:   "server",
		Short: "HTTP origin server with a static-file and FastCGI backend",
		RunE:  runServer,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML configuration file")
	root.Flags().BoolVar(&dumpConfig, "dump-config", false, "print the resolved configuration as JSON and exit")

	root.AddCommand(newProbeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// noopConfig satisfies service.Config for services like httpserver.Server
// that are fully configured at construction time and have no Init method.
type noopConfig struct{}

func (noopConfig) Get(string) service.Config      { return nil }
func (noopConfig) Unmarshal(out interface{}) error { return nil }

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}

	return config.Load(configPath)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if dumpConfig {
		out, err := config.DumpJSON(cfg)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	upstream, err := fastcgi.Dial(cfg.FastCGIAddress(), cfg.Static.Webroot, log.WithField("component", "fastcgi"))
	if err != nil {
		return fmt.Errorf("dialing fastcgi upstream %s: %w", cfg.FastCGIAddress(), err)
	}
	defer upstream.Close()

	router := httpserver.NewRouter(log.WithField("component", "router"))
	statics := httpserver.NewStatics(cfg.Static.Webroot, log.WithField("component", "static"))
	router.Route(cfg.Static.PublicPrefix, "GET", statics)
	router.RouteAny("/", upstream)

	addr := fmt.Sprintf(":%d", cfg.Listen.Port)
	server := httpserver.NewServer(addr, router, log.WithField("component", "http"))

	container := service.NewContainer(log)
	container.Register("http", server)

	// httpserver.Server takes all its configuration through NewServer, so
	// it has no Init method for the container to call; this just flips its
	// status to StatusOK so Serve will start it.
	if err := container.Init(noopConfig{}); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		container.Stop()
	}()

	log.Infof("listening on %s, fastcgi upstream %s", addr, cfg.FastCGIAddress())

	return container.Serve()
}
