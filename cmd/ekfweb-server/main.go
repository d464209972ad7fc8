// Command ekfweb-server hosts an ekfweb room that relays attitude estimates
// from senders such as ekf-replay to any number of websocket viewers.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/stratux/goflying-ekf/ekfweb"
)

func main() {
	addr := flag.String("addr", fmt.Sprintf(":%d", ekfweb.Port), "The address for the attitude publication.")
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// get the room going
	r := ekfweb.NewRoom()
	go r.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(ekfweb.Path, r)
	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	glog.Infof("ekfweb: starting web server on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		glog.Fatalf("ekfweb: ListenAndServe: %v", err)
	}
}
