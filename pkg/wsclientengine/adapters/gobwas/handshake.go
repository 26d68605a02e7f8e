package wsadaptergobwas

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// GUID appended to the client key to compute the accept key.
//
// https://www.rfc-editor.org/rfc/rfc6455.html#section-1.3
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// User agent sent in the upgrade request
const userAgent = "gowaithook"

// Client side of the opening handshake
type clientHandshake struct {
	// Sec-WebSocket-Key sent to the server
	key string
	// Serialized upgrade request
	request []byte
	// Upgrade request, kept to parse the response
	httpRequest *http.Request
}

// Build the upgrade request for the target URL.
func newClientHandshake(target *url.URL) (*clientHandshake, error) {
	if target == nil {
		return nil, fmt.Errorf("handshake target must not be nil")
	}
	key, err := newKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate the handshake key: %w", err)
	}
	req := &http.Request{
		Method:     http.MethodGet,
		URL:        target,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       target.Host,
		Header: http.Header{
			"Upgrade":               []string{"websocket"},
			"Connection":            []string{"Upgrade"},
			"Sec-WebSocket-Key":     []string{key},
			"Sec-WebSocket-Version": []string{strconv.Itoa(ProtocolVersion)},
			"User-Agent":            []string{userAgent},
		},
	}
	buf := new(bytes.Buffer)
	if err := req.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to serialize the upgrade request: %w", err)
	}
	return &clientHandshake{key: key, request: buf.Bytes(), httpRequest: req}, nil
}

// Raw HTTP upgrade request to write to the transport.
func (h *clientHandshake) Request() []byte {
	return h.request
}

// Websocket protocol version requested by the handshake.
func (h *clientHandshake) Version() int {
	return ProtocolVersion
}

// Validate the raw server response.
func (h *clientHandshake) Complete(response []byte) error {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(response)), h.httpRequest)
	if err != nil {
		return fmt.Errorf("malformed handshake response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("unexpected handshake response status: %s", resp.Status)
	}
	if !strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") {
		return fmt.Errorf("unexpected Upgrade header in handshake response: %q", resp.Header.Get("Upgrade"))
	}
	if !headerContainsToken(resp.Header, "Connection", "upgrade") {
		return fmt.Errorf("unexpected Connection header in handshake response: %q", resp.Header.Get("Connection"))
	}
	if accept := resp.Header.Get("Sec-WebSocket-Accept"); accept != ComputeAcceptKey(h.key) {
		return fmt.Errorf("invalid Sec-WebSocket-Accept in handshake response: %q", accept)
	}
	return nil
}

// # Description
//
// Compute the Sec-WebSocket-Accept value a server must answer for the provided client key.
func ComputeAcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Generate a random base64 encoded 16 bytes key.
func newKey() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(nonce), nil
}

// Check whether one of the comma separated values of the header equals the token.
func headerContainsToken(header http.Header, name string, token string) bool {
	for _, value := range header.Values(name) {
		for _, item := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(item), token) {
				return true
			}
		}
	}
	return false
}
