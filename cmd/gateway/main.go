package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/clock"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/gateways/mirra"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/gateways/mirra/network"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/logging"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/radio/serial"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/storage"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const nodeUpdatesBuffer = 16

type options struct {
	configPath     string
	mode           string
	node           string
	commInterval   uint
	sampleInterval uint
}

func parseOptions() options {
	var o options
	flag.StringVar(&o.configPath, "config", "gateway.yaml", "gateway configuration file")
	flag.StringVar(&o.mode, "mode", "run", "run | discovery | schedule | add | remove | intervals")
	flag.StringVar(&o.node, "node", "", "node address AAAA:BBBB for add and remove")
	flag.UintVar(&o.commInterval, "comm-interval", 0, "new global comm interval in seconds")
	flag.UintVar(&o.sampleInterval, "sample-interval", 0, "new global sample interval in seconds")
	flag.Parse()
	return o
}

func main() {
	o := parseOptions()

	conf, err := utils.ConfigurationParser(o.configPath, entities.GatewayConfig{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", o.configPath, err)
		os.Exit(1)
	}
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", o.configPath, err)
		os.Exit(1)
	}

	log := logging.NewLogrus(conf.LogLevel, os.Stdout).Get("gateway")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, o, conf, log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, o options, conf entities.GatewayConfig, log *logrus.Entry) error {
	store, err := storage.NewYAMLStore(conf.Storage.StatePath)
	if err != nil {
		return err
	}
	measurements, err := storage.OpenSQLiteLog(conf.Storage.MeasurementsPath)
	if err != nil {
		return err
	}
	defer measurements.Close()

	// only the radio modes own the modem
	var modem radio.Radio
	if o.mode == "run" || o.mode == "discovery" {
		airtime, err := radio.NewAirtime(conf.Radio)
		if err != nil {
			return err
		}
		m, err := serial.Open(conf.Radio, airtime, log.WithField("layer", "modem"))
		if err != nil {
			return err
		}
		defer m.Close()
		modem = m
	}
	gateway := mirra.NewGateway(conf, modem, store, measurements, clock.System{}, log)

	switch o.mode {
	case "run":
		return run(ctx, gateway, conf, measurements, log)
	case "discovery":
		err := gateway.Discovery(ctx)
		if errors.Is(err, mirra.ErrRegistryFull) {
			log.Warn(err)
			return nil
		}
		return err
	case "schedule":
		return gateway.WriteSchedule(os.Stdout)
	case "add", "remove":
		address, err := entities.ParseAddress(o.node)
		if err != nil {
			return err
		}
		if o.mode == "remove" {
			return gateway.RemoveNode(address)
		}
		node, err := gateway.AddNode(address)
		if err == nil {
			log.Infof("%s scheduled at %d", node.Address, node.NextCommTime)
		}
		return err
	case "intervals":
		params := gateway.Registry().Parameters()
		if o.commInterval > 0 {
			params.CommInterval = uint32(o.commInterval)
		}
		if o.sampleInterval > 0 {
			params.SampleInterval = uint32(o.sampleInterval)
		}
		return gateway.SetParameters(params)
	}
	return errors.Errorf("unknown mode %q", o.mode)
}

func run(ctx context.Context, gateway *mirra.Gateway, conf entities.GatewayConfig, measurements storage.MeasurementLog, log *logrus.Entry) error {
	if conf.Upload.Enabled {
		handler := network.NewAMQPHandler(network.NewAmqpSession(conf.Upload.URL), log.WithField("layer", "amqp"))
		if err := handler.Start(); err != nil {
			log.Errorf("uploads disabled: %v", err)
		} else {
			defer handler.Stop()
			if err := wireBroker(gateway, handler, conf, measurements, log); err != nil {
				return err
			}
		}
	}

	system := clock.System{}
	for {
		next, err := gateway.Wake(ctx)
		if err != nil && ctx.Err() == nil {
			log.Errorf("wake: %v", err)
		}
		log.Infof("sleeping until %s", next.Format("2006-01-02 15:04:05"))
		if err := system.SleepUntil(ctx, next); err != nil {
			log.Info("stopped")
			return nil
		}
	}
}

func wireBroker(gateway *mirra.Gateway, handler network.Messaging, conf entities.GatewayConfig, measurements storage.MeasurementLog, log *logrus.Entry) error {
	publisher := network.NewMsgPublisher(handler, conf.Upload.Exchange, conf.Upload.TopicPrefix)
	uploader, err := mirra.NewUploader(conf.Upload, conf.GatewayID, publisher, measurements, log.WithField("phase", "upload"))
	if err != nil {
		return err
	}
	gateway.SetUploader(uploader)

	// a gateway without node updates still serves and uploads
	_ = gateway.SubscribeNodeUpdates(network.NewMsgSubscriber(handler, conf.Upload.Exchange, conf.GatewayID), nodeUpdatesBuffer)
	return nil
}
