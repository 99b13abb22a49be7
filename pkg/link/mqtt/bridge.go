package mqtt

import (
	"encoding/hex"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/hostlink/pkg/link"
	"github.com/robotalks/hostlink/pkg/link/protocol"
	"github.com/robotalks/hostlink/pkg/link/queue"
)

// Bridge submits requests received from <node>/send to the link.
//
// A send message carries:
//
//	type     number, the type code
//	payload  string, hex encoded, optional
//	ack      bool, optional
//
// Rejected messages are reported to <node>/report.
type Bridge struct {
	Sub    link.Submitter
	Dir    protocol.Direction
	Report *Reporter

	sub *Subscription
}

// NewBridge creates a Bridge submitting frames in dir.
func NewBridge(sub link.Submitter, dir protocol.Direction, report *Reporter) *Bridge {
	return &Bridge{Sub: sub, Dir: dir, Report: report}
}

// Start subscribes the send topic.
func (b *Bridge) Start(s Subscriber) {
	b.sub = s.Sub(b.Report.Topic(TopicSend), b.handleSend)
}

// Close unsubscribes the send topic.
func (b *Bridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Close()
}

// EncodeSend encodes a send message.
func EncodeSend(typ protocol.TypeCode, payload []byte, ackRequired bool) ([]byte, error) {
	return Encode(Fields{
		"type":    int(typ),
		"payload": hex.EncodeToString(payload),
		"ack":     ackRequired,
	})
}

func (b *Bridge) handleSend(topic string, data []byte) {
	if err := b.submit(data); err != nil {
		glog.Warningf("reject %s: %v", topic, err)
		b.Report.publish(TopicReport, Fields{
			"source":  queue.SourceRemote.String(),
			"outcome": "rejected",
			"error":   err.Error(),
		})
	}
}

func (b *Bridge) submit(data []byte) error {
	fields, err := DecodeReport(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	typ, ok := fields["type"].(float64)
	if !ok || typ < 0 || typ > 0xff || typ != float64(int(typ)) {
		return fmt.Errorf("invalid type %v", fields["type"])
	}
	payload, err := hex.DecodeString(fields.GetString("payload"))
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	pkt, err := protocol.NewPacket(protocol.TypeCode(typ), b.Dir, payload)
	if err != nil {
		return err
	}
	return b.Sub.Submit(queue.SourceRemote, pkt, fields.GetBool("ack"))
}
