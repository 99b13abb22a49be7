package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/robotalks/hostlink/pkg/link/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/hostlink/"
	nodeID  = "+"
)

func init() {
	if val := os.Getenv("HOSTLINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&nodeID, "node", nodeID, "Node ID to monitor, + for all.")
}

func formatFields(fields mqtt.Fields) string {
	items := make([]string, 0, len(fields))
	for _, key := range fields.Keys() {
		items = append(items, key+"="+formatValue(fields[key]))
	}
	return strings.Join(items, " ")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t") {
			return "\"" + val + "\""
		}
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	client, err := mqtt.NewClientFromURL(mqttURL, "")
	if err != nil {
		log.Fatalln(err)
	}
	if err := client.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer client.Close()

	client.Sub(nodeID+"/#", mqtt.Handler(func(topic string, payload []byte) {
		if strings.HasSuffix(topic, "/"+mqtt.TopicSend) {
			return
		}
		fields, err := mqtt.DecodeReport(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, formatFields(fields))
	}))
	<-(chan struct{})(nil)
}
