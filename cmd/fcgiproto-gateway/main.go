// Command fcgiproto-gateway is a demonstration FastCGI responder that
// wires pkg/fastcgi's sans-I/O Connection to a real net.Listener, the way
// a FastCGI server's accept loop wires a protocol engine to net.Conn. It
// answers every request with an HTML page listing the request's FCGI
// params and body, and exposes Prometheus metrics plus a hot-reloadable
// YAML config.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mevdschee/fcgiproto/internal/config"
	"github.com/mevdschee/fcgiproto/internal/metrics"
	"github.com/mevdschee/fcgiproto/internal/reload"
	"github.com/mevdschee/fcgiproto/pkg/fastcgi"
)

func main() {
	configPath := flag.String("config", "fcgiproto-gateway.yaml", "path to gateway config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	m := metrics.New()

	gw, err := newGateway(cfg, m)
	if err != nil {
		log.Fatalf("new gateway: %v", err)
	}

	watcher, err := reload.New(*configPath, 50*time.Millisecond, func() {
		newCfg, err := config.Load(*configPath)
		if err != nil {
			log.Printf("config reload failed: %v", err)
			return
		}
		if err := gw.applyConfig(newCfg); err != nil {
			log.Printf("config reload rejected: %v", err)
			return
		}
		log.Printf("config reloaded from %s", *configPath)
	})
	if err != nil {
		log.Fatalf("config watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		log.Fatalf("start config watcher: %v", err)
	}
	defer watcher.Stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics listening on %s", cfg.Metrics.Addr)
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("fcgiproto-gateway listening on %s", cfg.Server.Addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("accept error: %v", err)
			continue
		}
		go gw.handleConn(conn)
	}
}

// gateway holds the live, hot-reloadable set of accepted roles and static
// FCGI_GET_VALUES entries shared by every connection it accepts.
type gateway struct {
	mu         sync.RWMutex
	roles      []fastcgi.Role
	fcgiValues map[string]string

	metrics *metrics.Metrics
}

func newGateway(cfg *config.Config, m *metrics.Metrics) (*gateway, error) {
	roles, err := cfg.Roles()
	if err != nil {
		return nil, err
	}
	return &gateway{roles: roles, fcgiValues: cfg.FCGIValues, metrics: m}, nil
}

func (g *gateway) applyConfig(cfg *config.Config) error {
	roles, err := cfg.Roles()
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles = roles
	g.fcgiValues = cfg.FCGIValues
	return nil
}

func (g *gateway) snapshot() ([]fastcgi.Role, map[string]string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roles, g.fcgiValues
}

// pendingRequest buffers a request's body until Stdin EOF, mirroring
// asyncio-server.py's (params, keep_connection, bytearray) tuple.
type pendingRequest struct {
	params   fastcgi.ParamList
	keepConn bool
	role     fastcgi.Role
	started  time.Time
	body     bytes.Buffer
}

func (g *gateway) handleConn(netConn net.Conn) {
	defer netConn.Close()

	roles, fcgiValues := g.snapshot()
	conn := fastcgi.NewConnection(roles, fcgiValues)
	pending := make(map[uint16]*pendingRequest)

	g.metrics.ConnectionsTotal.Inc()
	g.metrics.ActiveConnections.Inc()
	defer g.metrics.ActiveConnections.Dec()

	buf := make([]byte, 65536)
	for {
		n, err := netConn.Read(buf)
		if n > 0 {
			g.metrics.BytesInTotal.Add(float64(n))
			if closeConn := g.feed(conn, netConn, pending, buf[:n]); closeConn {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// feed drives one Connection.FeedData call plus the resulting application
// logic, the way FastCGIProtocol.data_received does in the reference
// example. It returns true when the caller should close the connection.
func (g *gateway) feed(conn *fastcgi.Connection, netConn net.Conn, pending map[uint16]*pendingRequest, data []byte) bool {
	events, err := conn.FeedData(data)
	if err != nil {
		g.metrics.ProtocolErrors.Inc()
		log.Printf("protocol error: %v", err)
		return true
	}

	closeConn := false
	for _, ev := range events {
		switch e := ev.(type) {
		case *fastcgi.RequestBegin:
			pending[e.ID] = &pendingRequest{params: e.Params, keepConn: e.KeepConnection, role: e.Role, started: time.Now()}

		case *fastcgi.RequestData:
			req, ok := pending[e.ID]
			if !ok {
				continue
			}
			if len(e.Data) > 0 {
				req.body.Write(e.Data)
				continue
			}
			delete(pending, e.ID)
			if err := g.respond(conn, e.ID, req); err != nil {
				log.Printf("respond: %v", err)
				closeConn = true
				continue
			}
			g.metrics.ObserveRequest(req.role, req.started)
			if !req.keepConn {
				closeConn = true
			}

		case *fastcgi.RequestAbort:
			delete(pending, e.ID)
			_ = conn.EndRequest(e.ID)

		case *fastcgi.RequestSecondaryData:
			// Filter-role secondary data stream. It arrives only when the
			// config accepts the filter role; the demo gateway replies as
			// a responder and ignores it.
		}
	}

	out := conn.DataToSend()
	if len(out) > 0 {
		g.metrics.BytesOutTotal.Add(float64(len(out)))
		if _, err := netConn.Write(out); err != nil {
			log.Printf("write: %v", err)
			return true
		}
	}
	return closeConn
}

func (g *gateway) respond(conn *fastcgi.Connection, id uint16, req *pendingRequest) error {
	var rows bytes.Buffer
	for _, p := range req.params {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%s</td></tr>", p.Name, p.Value)
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body>
<h2>FCGI parameters</h2>
<table>
%s
</table>
<h2>Request body</h2>
<pre>%s</pre>
</body>
</html>
`, rows.String(), req.body.String())

	status := 200
	if err := conn.SendHeaders(id, []fastcgi.HeaderField{
		{Key: []byte("Content-Length"), Value: []byte(fmt.Sprintf("%d", len(body)))},
		{Key: []byte("Content-Type"), Value: []byte("text/html; charset=UTF-8")},
	}, &status); err != nil {
		return err
	}
	return conn.SendData(id, []byte(body), true)
}
