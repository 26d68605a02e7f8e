package wsclientengine

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for WebsocketConnectionConfigurationOptions unit tests
type WebsocketConnectionOptionsUnitTestSuite struct {
	suite.Suite
}

// Run WebsocketConnectionOptionsUnitTestSuite test suite
func TestWebsocketConnectionOptionsUnitTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketConnectionOptionsUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test methods used to set options.
func (suite *WebsocketConnectionOptionsUnitTestSuite) TestSetters() {
	opts := NewWebsocketConnectionConfigurationOptions().
		WithHost("waithook.herokuapp.com").
		WithPort(8443).
		WithPath("my-path").
		WithSSL(true).
		WithTLSMinVersion(tls.VersionTLS12).
		WithTLSInsecureSkipVerify(true).
		WithReadBufferSize(128).
		WithMaxHandshakeSize(1024).
		WithDialTimeoutMs(1).
		WithWriteTimeoutMs(2).
		WithCloseTimeoutMs(3)
	require.Equal(suite.T(), "waithook.herokuapp.com", opts.Host)
	require.Equal(suite.T(), 8443, opts.Port)
	require.Equal(suite.T(), "my-path", opts.Path)
	require.NotNil(suite.T(), opts.SSL)
	require.True(suite.T(), *opts.SSL)
	require.Equal(suite.T(), uint16(tls.VersionTLS12), opts.TLSMinVersion)
	require.True(suite.T(), opts.TLSInsecureSkipVerify)
	require.Equal(suite.T(), 128, opts.ReadBufferSize)
	require.Equal(suite.T(), 1024, opts.MaxHandshakeSize)
	require.Equal(suite.T(), int64(1), opts.DialTimeoutMs)
	require.Equal(suite.T(), int64(2), opts.WriteTimeoutMs)
	require.Equal(suite.T(), int64(3), opts.CloseTimeoutMs)
}

// Test option validation
func (suite *WebsocketConnectionOptionsUnitTestSuite) TestValidate() {
	require.NoError(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions()))
	require.NoError(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithTLSMinVersion(tls.VersionTLS13)))
	require.Error(suite.T(), Validate(nil))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithHost("")))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithPort(0)))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithPort(70000)))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithTLSMinVersion(1)))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithReadBufferSize(0)))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithMaxHandshakeSize(0)))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithDialTimeoutMs(-1)))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithWriteTimeoutMs(-1)))
	require.Error(suite.T(), Validate(NewWebsocketConnectionConfigurationOptions().WithCloseTimeoutMs(-1)))
}

// Test TLS is chosen by the port unless explicitly set
func (suite *WebsocketConnectionOptionsUnitTestSuite) TestUseTLS() {
	require.False(suite.T(), NewWebsocketConnectionConfigurationOptions().UseTLS())
	require.Nil(suite.T(), NewWebsocketConnectionConfigurationOptions().TLSConfig())
	require.True(suite.T(), NewWebsocketConnectionConfigurationOptions().WithPort(443).UseTLS())
	require.False(suite.T(), NewWebsocketConnectionConfigurationOptions().WithPort(443).WithSSL(false).UseTLS())
	require.True(suite.T(), NewWebsocketConnectionConfigurationOptions().WithSSL(true).UseTLS())
	cfg := NewWebsocketConnectionConfigurationOptions().
		WithHost("example.com").
		WithPort(443).
		WithTLSMinVersion(tls.VersionTLS12).
		WithTLSInsecureSkipVerify(true).
		TLSConfig()
	require.NotNil(suite.T(), cfg)
	require.Equal(suite.T(), "example.com", cfg.ServerName)
	require.Equal(suite.T(), uint16(tls.VersionTLS12), cfg.MinVersion)
	require.True(suite.T(), cfg.InsecureSkipVerify)
}

// Test handshake URL construction
func (suite *WebsocketConnectionOptionsUnitTestSuite) TestHandshakeURL() {
	require.Equal(suite.T(), "ws://localhost/test-ruby", HandshakeURL("localhost", 80, "test-ruby", false).String())
	require.Equal(suite.T(), "ws://localhost/test-ruby", HandshakeURL("localhost", 80, "/test-ruby", false).String())
	require.Equal(suite.T(), "wss://waithook.herokuapp.com/my-path", HandshakeURL("waithook.herokuapp.com", 443, "my-path", true).String())
	require.Equal(suite.T(), "ws://127.0.0.1:3012/", HandshakeURL("127.0.0.1", 3012, "", false).String())
	require.Equal(suite.T(), "wss://localhost:80/p", HandshakeURL("localhost", 80, "p", true).String())
	require.Equal(suite.T(), "ws://[::1]:8080/p", HandshakeURL("::1", 8080, "p", false).String())
	require.Equal(suite.T(), "ws://localhost/p?a=b", HandshakeURL("localhost", 80, "p?a=b", false).String())
}
