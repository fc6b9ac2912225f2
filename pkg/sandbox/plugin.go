package sandbox

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake identifies the worker subprocess protocol. The magic cookie is
// checked by the child before it does anything else, rejecting accidental
// direct invocation outside a supervising host.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AGENTRUN_SANDBOX_WORKER",
	MagicCookieValue: "strixrun-agentrun-sandbox-v1",
}

// pluginMap is the single named plugin exposed by a worker subprocess: a
// minimal net/rpc ping used to confirm liveness and learn the HTTP address
// the worker bound for the real execute/register_agent/health traffic,
// which travels over pkg/rpc's chi-based server instead of go-plugin's own
// wire protocol.
func pluginMap(addrFn func() string) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		"worker": &workerPlugin{addrFn: addrFn},
	}
}

type pingReply struct{ Addr string }

type workerRPCServer struct{ addrFn func() string }

func (s *workerRPCServer) Ping(_ any, reply *pingReply) error {
	reply.Addr = s.addrFn()
	return nil
}

// workerRPC is the host-side stub for the subprocess's ping method.
type workerRPC struct{ client *rpc.Client }

func (c *workerRPC) Ping() (string, error) {
	var reply pingReply
	if err := c.client.Call("Plugin.Ping", new(any), &reply); err != nil {
		return "", err
	}
	return reply.Addr, nil
}

type workerPlugin struct{ addrFn func() string }

func (p *workerPlugin) Server(*plugin.MuxBroker) (any, error) {
	return &workerRPCServer{addrFn: p.addrFn}, nil
}

func (p *workerPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (any, error) {
	return &workerRPC{client: c}, nil
}
