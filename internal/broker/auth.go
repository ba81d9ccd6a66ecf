package broker

import (
	"bytes"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// GatewayAuthHookOptions contains configuration settings for the hook.
type GatewayAuthHookOptions struct {
	Username string
	Password string
	// Prefix confines clients to the hub's topic root. Empty means no
	// topic restriction.
	Prefix string
}

// GatewayAuthHook authenticates gateways against the configured shared
// credentials and confines them to the hub topic prefix. With no
// credentials configured, connections are open (local development).
type GatewayAuthHook struct {
	mqtt.HookBase
	config *GatewayAuthHookOptions
}

func (h *GatewayAuthHook) ID() string {
	return "gateway-auth-hook"
}

func (h *GatewayAuthHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
	}, []byte{b})
}

func (h *GatewayAuthHook) Init(config any) error {
	if _, ok := config.(*GatewayAuthHookOptions); !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}
	h.config = config.(*GatewayAuthHookOptions)
	h.Log.Info("initialised", "prefix", h.config.Prefix)
	return nil
}

func (h *GatewayAuthHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	if h.config.Username == "" && h.config.Password == "" {
		return true
	}
	ok := string(pk.Connect.Username) == h.config.Username &&
		string(pk.Connect.Password) == h.config.Password
	if !ok {
		h.Log.Warn("rejected client with bad credentials",
			"client", cl.ID, "remote", cl.Net.Remote)
	}
	return ok
}

func (h *GatewayAuthHook) OnACLCheck(cl *mqtt.Client, topic string, write bool) bool {
	if h.config.Prefix == "" {
		return true
	}
	if topic == h.config.Prefix || strings.HasPrefix(topic, h.config.Prefix+"/") {
		return true
	}
	h.Log.Warn("rejected access outside topic prefix",
		"client", cl.ID, "topic", topic, "write", write)
	return false
}
