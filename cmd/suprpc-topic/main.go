// suprpc-topic is a pub/sub demo client: it either subscribes to a
// topic and prints deliveries, or publishes one message.
package main

import (
	"flag"
	"os"
	"os/signal"

	"go.uber.org/zap/zapcore"

	"github.com/sis-shen/suprpc-json/client"
	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
)

func main() {
	ip := flag.String("ip", "127.0.0.1", "topic server address")
	port := flag.Int("port", 9070, "topic server port")
	key := flag.String("topic", "news", "topic key")
	publish := flag.String("publish", "", "publish this message instead of subscribing")
	flag.Parse()

	if err := suplog.Init(false, "", zapcore.InfoLevel); err != nil {
		suplog.S().Fatalf("init logger: %v", err)
	}

	cli, err := client.NewTopicClient(message.Address{IP: *ip, Port: *port})
	if err != nil {
		suplog.S().Fatalf("topic client: %v", err)
	}
	defer cli.Shutdown()

	if err := cli.Create(*key); err != nil {
		suplog.S().Fatalf("create topic %s: %v", *key, err)
	}

	if *publish != "" {
		if err := cli.Publish(*key, *publish); err != nil {
			suplog.S().Fatalf("publish: %v", err)
		}
		suplog.S().Infof("published %q to %s", *publish, *key)
		return
	}

	if err := cli.Subscribe(*key, func(topicKey, topicMsg string) {
		suplog.S().Infof("[%s] %s", topicKey, topicMsg)
	}); err != nil {
		suplog.S().Fatalf("subscribe: %v", err)
	}
	suplog.S().Infof("subscribed to %s, waiting for messages (ctrl-c to quit)", *key)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
	_ = cli.Cancel(*key)
}
