package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	fx "github.com/robotalks/hostlink/pkg/framework"
	"github.com/robotalks/hostlink/pkg/link"
	"github.com/robotalks/hostlink/pkg/link/env"
	"github.com/robotalks/hostlink/pkg/link/mqtt"
	"github.com/robotalks/hostlink/pkg/link/protocol"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool
	// Timeout bounds commands waiting for acks.
	Timeout time.Duration

	Shell   *ishell.Shell
	Config  *env.Config
	Session *Session
}

// Session is an open link with its running loop.
type Session struct {
	Ctx    context.Context
	Cancel func()
	Link   *link.Link
	Loop   *fx.Loop
	MQTT   *mqtt.Client
	Bridge *mqtt.Bridge

	port io.Closer
	done chan struct{}
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     2 * time.Second,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an open link.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Session == nil {
			c.Err(fmt.Errorf("link not open"))
			return
		}
		fn(c)
	}
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Open opens the link configured by Config.
func (s *Shell) Open() error {
	sess := &Session{done: make(chan struct{})}
	sess.Ctx, sess.Cancel = context.WithCancel(context.Background())
	var err error
	if sess.Link, sess.port, err = s.Config.NewLink(sess.Ctx); err != nil {
		sess.Cancel()
		return err
	}
	sess.Link.Receiver.Handler = link.HandlePacketFunc(s.printPacket)
	sess.Loop = fx.NewLoop()
	sess.Loop.Interval = s.Config.Interval
	sess.Loop.Add(sess.Link)

	if s.Config.MQTTBrokerURL != "" {
		if err = s.startMQTT(sess); err != nil {
			sess.Cancel()
			sess.port.Close()
			return err
		}
	}

	s.Close()
	s.Session = sess
	go func() {
		defer close(sess.done)
		if err := sess.Loop.Run(sess.Ctx); err != nil && err != context.Canceled {
			s.Shell.Printf("link stopped: %v\n", err)
		}
	}()
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", s.Config.Port))
	return nil
}

func (s *Shell) startMQTT(sess *Session) error {
	client, err := mqtt.NewClientFromURL(s.Config.MQTTBrokerURL, "hostlink-"+s.Config.NodeID)
	if err != nil {
		return err
	}
	if err = client.Connect(); err != nil {
		return fmt.Errorf("connect MQTT: %w", err)
	}
	reporter := mqtt.NewReporter(client, s.Config.NodeID)
	reporter.Status = sess.Link
	reporter.StatusEvery = 100
	reporter.Watch(sess.Link.FSM)
	sess.Loop.Add(reporter)
	sess.Bridge = mqtt.NewBridge(sess.Link, sess.Link.Dir(), reporter)
	sess.Bridge.Start(client)
	sess.MQTT = client
	return nil
}

// Close closes the current link.
func (s *Shell) Close() {
	sess := s.Session
	if sess == nil {
		return
	}
	s.Session = nil
	sess.Cancel()
	sess.port.Close()
	<-sess.done
	if sess.MQTT != nil {
		sess.Bridge.Close()
		sess.MQTT.Close()
	}
	s.Shell.SetPrompt(closedPrompt)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen {
		if s.Interactive {
			s.Shell.Printf("Opening %s ...\n", s.Config.Port)
		}
		if err := s.Open(); err != nil {
			log.Fatalf("open %q failed: %v", s.Config.Port, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// PrintResult prints v as JSON or text.
func (s *Shell) PrintResult(c *ishell.Context, v interface{}) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(v)
}

func (s *Shell) printPacket(ctx context.Context, pkt *protocol.Packet) {
	glog.V(2).Infof("rx %s", pkt)
	switch pkt.Header.Type {
	case protocol.EvtPrintDbgMsg:
		s.Shell.Printf("[dbg] %s\n", protocol.ASCIIString(pkt.Payload))
	case protocol.ResFWVersion:
		s.Shell.Printf("[fw] %s\n", protocol.ASCIIString(pkt.Payload))
	default:
		s.Shell.Printf("< %s %s\n", pkt, protocol.HexString(pkt.Payload))
	}
}

var (
	// OpenCmd opens the link.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Config.Port = c.Args[0]
			}
			if err := s.Open(); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the link.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	if err := env.Parse(); err != nil {
		log.Fatalln(err)
	}
	New(env.NewConfig()).WithAutoOpen(true).Run(flag.Args()...)
}
