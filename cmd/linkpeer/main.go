package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/hostlink/pkg/framework"
	"github.com/robotalks/hostlink/pkg/link"
	"github.com/robotalks/hostlink/pkg/link/env"
	"github.com/robotalks/hostlink/pkg/link/mqtt"
)

var (
	dropRatio = 0.0
	nackRatio = 0.0
	fwVersion = link.DefaultFWVersion
	heartbeat = 5 * time.Second
)

func init() {
	env.SetupFlags()
	flag.Float64Var(&dropRatio, "drop", dropRatio, "Ratio of commands silently dropped")
	flag.Float64Var(&nackRatio, "nack", nackRatio, "Ratio of commands answered with NACK")
	flag.StringVar(&fwVersion, "fw", fwVersion, "Firmware version reported")
	flag.DurationVar(&heartbeat, "heartbeat", heartbeat, "Interval of debug heartbeat messages, 0 disables")
}

// heartbeater prints a debug message periodically like a device does.
type heartbeater struct {
	link  *link.Link
	every time.Duration
	last  time.Time
	count int
}

func (h *heartbeater) Control(ctx fx.ControlContext) error {
	if h.every <= 0 || ctx.Time().Sub(h.last) < h.every {
		return nil
	}
	h.last = ctx.Time()
	h.count++
	return h.link.Debug.Printf("heartbeat %d", h.count)
}

func main() {
	if err := env.Parse(); err != nil {
		log.Fatalln(err)
	}
	conf := env.Default()

	runner := fx.NewRunner().HandleSignals()
	l, port, err := conf.NewLink(runner.Context)
	if err != nil {
		log.Fatalln(err)
	}
	defer port.Close()

	responder := link.NewResponder(l.Queue, l.Dir())
	responder.DropRatio, responder.NackRatio = dropRatio, nackRatio
	responder.FWVersion = fwVersion
	l.Receiver.Handler = responder

	loop := fx.NewLoop()
	loop.Interval = conf.Interval
	loop.Add(l)
	loop.AddController(fx.PrLvLow, &heartbeater{link: l, every: heartbeat, last: time.Now()})

	if conf.MQTTBrokerURL != "" {
		client, err := mqtt.NewClientFromURL(conf.MQTTBrokerURL, "linkpeer-"+conf.NodeID)
		if err != nil {
			log.Fatalln(err)
		}
		if err := client.Connect(); err != nil {
			log.Fatalln(err)
		}
		defer client.Close()
		reporter := mqtt.NewReporter(client, conf.NodeID)
		reporter.Status, reporter.StatusEvery = l, 100
		reporter.Watch(l.FSM)
		loop.Add(reporter)
	}

	glog.Infof("peer %s running as %s on %s", conf.NodeID, l.Dir(), conf.Port)
	runner.Go(loop)
	if err := runner.Wait(); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}
