package mqtt

import (
	"encoding/hex"

	"github.com/golang/glog"

	"github.com/robotalks/hostlink/pkg/framework"
	"github.com/robotalks/hostlink/pkg/link"
	"github.com/robotalks/hostlink/pkg/link/fsm"
	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

// Topics relative to the node.
const (
	TopicReport = "report"
	TopicState  = "state"
	TopicStatus = "status"
	TopicTx     = "tx"
	TopicSend   = "send"
)

// StatusSource provides the link status, usually a *link.Link.
type StatusSource interface {
	Status() link.Status
}

// Reporter publishes link activities.
// It implements fsm.CompletionHandler, fsm.StateNotifier and fsm.TxNotifier.
type Reporter struct {
	Pub    Publisher
	NodeID string
	Status StatusSource
	// StatusEvery publishes status every N control iterations, 0 disables it.
	StatusEvery uint64
}

// NewReporter creates a Reporter.
func NewReporter(pub Publisher, nodeID string) *Reporter {
	return &Reporter{Pub: pub, NodeID: nodeID}
}

// Topic returns the full topic of a node topic.
func (r *Reporter) Topic(name string) string {
	return NodeTopic(r.NodeID, name)
}

// NodeTopic returns the topic of name under node.
func NodeTopic(nodeID, name string) string {
	return nodeID + "/" + name
}

// Watch registers the reporter to the FSM hooks.
func (r *Reporter) Watch(f *fsm.FSM) {
	f.Completion = r
	f.Notifier = r
	f.TxNotifier = r
}

// HandleCompletion implements fsm.CompletionHandler.
func (r *Reporter) HandleCompletion(req *queue.Request, res queue.Result) {
	fields := Fields{
		"source":      req.Source.String(),
		"type":        int(req.Packet.Header.Type),
		"type_name":   req.Packet.Header.Type.String(),
		"dir":         req.Packet.Header.Dir.String(),
		"payload":     hex.EncodeToString(req.Packet.Payload),
		"ack":         req.AckRequired,
		"outcome":     res.Outcome.String(),
		"attempts":    res.Attempts,
		"retries":     res.Retries,
		"send_errors": res.SendErrors,
	}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	r.publish(TopicReport, fields)
}

// StateChanged implements fsm.StateNotifier.
func (r *Reporter) StateChanged(from, to fsm.State) {
	r.publish(TopicState, Fields{"from": from.String(), "to": to.String()})
}

// FrameSent implements fsm.TxNotifier.
func (r *Reporter) FrameSent(frame []byte, attempt int, err error) {
	if !glog.V(2) {
		return
	}
	fields := Fields{"frame": protocol.HexString(frame), "attempt": attempt}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.publish(TopicTx, fields)
}

// Control implements framework.Controller.
func (r *Reporter) Control(ctx framework.ControlContext) error {
	if r.Status == nil || r.StatusEvery == 0 || ctx.Iteration()%r.StatusEvery != 0 {
		return nil
	}
	return r.PublishStatus()
}

// PublishStatus publishes the current link status.
func (r *Reporter) PublishStatus() error {
	s := r.Status.Status()
	fields := Fields{
		"state":         s.Tx.State.String(),
		"retry_count":   s.Tx.RetryCount,
		"pending":       s.Pending,
		"free":          s.Free,
		"tx_queue":      s.TxQueue,
		"frames":        s.Tx.Frames,
		"acked":         s.Tx.Acked,
		"nacked":        s.Tx.Nacked,
		"timeouts":      s.Tx.Timeouts,
		"dropped":       s.Tx.Dropped,
		"send_failures": s.Tx.SendFailures,
		"rx_frames":     s.Rx.Frames,
		"rx_errors":     s.Rx.Errors,
		"crc_errors":    s.Rx.CrcErrors,
	}
	if s.Tx.ConsecutiveSendFailures > 0 && s.Tx.LastSendError != nil {
		fields["send_error"] = s.Tx.LastSendError.Error()
	}
	data, err := Encode(fields)
	if err != nil {
		return err
	}
	r.Pub.Pub(r.Topic(TopicStatus), data)
	return nil
}

// AddToLoop implements framework.LoopAdder.
func (r *Reporter) AddToLoop(loop *framework.Loop) {
	loop.AddController(framework.PrLvReport, r)
}

func (r *Reporter) publish(name string, fields Fields) {
	data, err := Encode(fields)
	if err != nil {
		glog.Errorf("encode %s report: %v", name, err)
		return
	}
	r.Pub.Pub(r.Topic(name), data)
}
