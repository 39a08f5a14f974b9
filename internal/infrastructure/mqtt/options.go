package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
	keepAlive      = 60 * time.Second

	// Passed to paho's Disconnect, which takes milliseconds.
	disconnectQuiesceMillis = 1000

	maxQoS = 2
)

// Presence values on {prefix}/system/status.
const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// presence is the retained message announcing whether the bridge is up.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// clientOptions maps cfg onto paho options: broker URL, credentials,
// reconnect backoff, TLS, and an offline will on the presence topic.
// Sessions are clean; subscriptions are restored by the client itself.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(scheme + "://" + net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay)).
		SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay)).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	will := presencePayload(cfg.Broker.ClientID, statusOffline, "unexpected_disconnect")
	opts.SetWill(NewTopics(cfg.TopicPrefix).SystemStatus(), string(will), 1, true)
	return opts
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func presencePayload(clientID, status, reason string) []byte {
	payload, err := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return []byte(`{"status":"` + status + `"}`)
	}
	return payload
}
