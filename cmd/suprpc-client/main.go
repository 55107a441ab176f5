// suprpc-client exercises a running Add server with the three call
// styles: synchronous, future-based, and callback-based.
package main

import (
	"flag"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/sis-shen/suprpc-json/client"
	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
)

func main() {
	ip := flag.String("ip", "127.0.0.1", "server or registry address")
	port := flag.Int("port", 9090, "server or registry port")
	useRegistry := flag.Bool("registry", false, "treat the address as a registry server and discover providers")
	flag.Parse()

	if err := suplog.Init(false, "", zapcore.DebugLevel); err != nil {
		suplog.S().Fatalf("init logger: %v", err)
	}

	cli, err := client.NewRpcClient(*useRegistry, message.Address{IP: *ip, Port: *port})
	if err != nil {
		suplog.S().Fatalf("client: %v", err)
	}
	defer cli.Shutdown()

	// Synchronous call.
	result, err := cli.Call("Add", map[string]any{"num1": 33, "num2": 44})
	if err != nil {
		suplog.S().Fatalf("sync Add: %v", err)
	}
	suplog.S().Infof("sync Add(33, 44) = %v", result)

	// Future-based call.
	future, err := cli.CallAsync("Add", map[string]any{"num1": 99, "num2": 1})
	if err != nil {
		suplog.S().Fatalf("async Add: %v", err)
	}
	result, err = future.Result()
	if err != nil {
		suplog.S().Fatalf("async Add: %v", err)
	}
	suplog.S().Infof("async Add(99, 1) = %v", result)

	// Callback-based call.
	done := make(chan struct{})
	err = cli.CallWithCallback("Add", map[string]any{"num1": 55, "num2": 44}, func(result any, err error) {
		if err != nil {
			suplog.S().Errorf("callback Add: %v", err)
		} else {
			suplog.S().Infof("callback Add(55, 44) = %v", result)
		}
		close(done)
	})
	if err != nil {
		suplog.S().Fatalf("callback Add: %v", err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		suplog.S().Error("callback call did not complete")
	}
}
