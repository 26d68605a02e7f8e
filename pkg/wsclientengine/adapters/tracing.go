package adapters

// Constants used for tracing purpose
const (
	// Instrumentation library package name
	pkgName = "gowaithook.adapters"
	// Instrumentation library package version
	pkgVersion = "0.0.0"
	// Namespace used by the spans, attributes and events
	namespace = "transport"
	// Name of the span used to instrument Open method call
	spanOpen = namespace + "." + "open"

	// Name of the attribute used to provide the target host
	attrHost = "server.address"
	// Name of the attribute used to provide the target port
	attrPort = "server.port"
	// Name of the attribute used to indicate whether TLS is used
	attrTLS = namespace + "." + "tls"
	// Name of the attribute used to provide the local address of the opened stream
	attrLocalAddr = namespace + "." + "local_address"
)
