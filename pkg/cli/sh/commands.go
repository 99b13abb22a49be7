package sh

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

func init() {
	AddCmds(&SendCmd, &PrintCmd, &LEDCmd, &VersionCmd, &StatusCmd)
}

var typeNames = map[string]protocol.TypeCode{
	"led-on":      protocol.CmdTurnOnLED,
	"led-off":     protocol.CmdTurnOffLED,
	"fw-version":  protocol.CmdGetFWVersion,
	"handler-err": protocol.EvtHandlerError,
	"dbg":         protocol.EvtPrintDbgMsg,
	"ack":         protocol.ResAck,
	"nack":        protocol.ResNack,
}

// ParseTypeCode parses a type code from a number or a name.
func ParseTypeCode(s string) (protocol.TypeCode, error) {
	if typ, ok := typeNames[strings.ToLower(s)]; ok {
		return typ, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid type code %q", s)
	}
	return protocol.TypeCode(n), nil
}

// ParsePayload parses hex bytes, separated by spaces or not.
func ParsePayload(args []string) ([]byte, error) {
	var text string
	for _, arg := range args {
		text += strings.TrimPrefix(strings.TrimPrefix(arg, "0x"), "0X")
	}
	return hex.DecodeString(text)
}

type resultView struct {
	Outcome    string `json:"outcome"`
	Attempts   int    `json:"attempts"`
	Retries    int    `json:"retries"`
	SendErrors int    `json:"send_errors,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (v resultView) String() string {
	s := fmt.Sprintf("%s attempts=%d retries=%d", v.Outcome, v.Attempts, v.Retries)
	if v.Error != "" {
		s += " error=" + v.Error
	}
	return s
}

func viewResult(res queue.Result) resultView {
	v := resultView{
		Outcome:    res.Outcome.String(),
		Attempts:   res.Attempts,
		Retries:    res.Retries,
		SendErrors: res.SendErrors,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

func doCommand(c *ishell.Context, typ protocol.TypeCode, payload []byte) {
	s := ShellFrom(c)
	ctx, cancel := context.WithTimeout(s.Session.Ctx, s.Timeout)
	defer cancel()
	res, err := s.Session.Link.Do(ctx, typ, payload)
	if err != nil && res.Outcome != queue.OutcomeDropped {
		c.Err(err)
		return
	}
	s.PrintResult(c, viewResult(res))
}

var (
	// SendCmd sends a packet.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "[-a] TYPE [PAYLOAD-HEX...], -a waits for ack",
		Func: MustBeOpen(func(c *ishell.Context) {
			args := c.Args
			var ack bool
			if len(args) > 0 && args[0] == "-a" {
				ack, args = true, args[1:]
			}
			if len(args) == 0 {
				c.Err(fmt.Errorf("type code expected"))
				return
			}
			typ, err := ParseTypeCode(args[0])
			if err != nil {
				c.Err(err)
				return
			}
			payload, err := ParsePayload(args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			if ack {
				doCommand(c, typ, payload)
				return
			}
			if err := ShellFrom(c).Session.Link.Send(typ, payload, false); err != nil {
				c.Err(err)
			}
		}),
	}

	// PrintCmd sends a debug message.
	PrintCmd = ishell.Cmd{
		Name:    "print",
		Aliases: []string{"p"},
		Help:    "TEXT...",
		Func: MustBeOpen(func(c *ishell.Context) {
			if err := ShellFrom(c).Session.Link.Debug.Print(strings.Join(c.Args, " ")); err != nil {
				c.Err(err)
			}
		}),
	}

	// LEDCmd turns the LED on or off.
	LEDCmd = ishell.Cmd{
		Name: "led",
		Help: "on|off",
		Func: MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("on or off expected"))
				return
			}
			switch c.Args[0] {
			case "on", "1":
				doCommand(c, protocol.CmdTurnOnLED, nil)
			case "off", "0":
				doCommand(c, protocol.CmdTurnOffLED, nil)
			default:
				c.Err(fmt.Errorf("on or off expected"))
			}
		}),
	}

	// VersionCmd requests the firmware version.
	VersionCmd = ishell.Cmd{
		Name:    "version",
		Aliases: []string{"ver"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			doCommand(c, protocol.CmdGetFWVersion, nil)
		}),
	}

	// StatusCmd prints the link status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: MustBeOpen(func(c *ishell.Context) {
			s := ShellFrom(c)
			status := s.Session.Link.Status()
			if !s.OutputJSON {
				c.Println(status.String())
				return
			}
			s.PrintResult(c, map[string]interface{}{
				"state":         status.Tx.State.String(),
				"retry_count":   status.Tx.RetryCount,
				"pending":       status.Pending,
				"free":          status.Free,
				"tx_queue":      status.TxQueue,
				"tx":            status.Tx,
				"rx":            status.Rx,
				"last_send_err": fmt.Sprint(status.Tx.LastSendError),
			})
		}),
	}
)
