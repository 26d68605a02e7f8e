package waithook

// Constants used for tracing purpose.
const (
	// Package name used by lib. tracer
	pkgName = "gowaithook.waithook"
	// Package version
	pkgVersion = "0.0.0"
	// Namespace used by spans and attributes
	namespace = "waithook"

	// Name of span used to trace webhook forwarding
	spanForward = namespace + ".forward"

	// Attribute used to store the forwarding method
	attrMethod = "http.request.method"
	// Attribute used to store the forwarding target
	attrUrl = "url.full"
	// Attribute used to store the forwarding response status code
	attrStatusCode = "http.response.status_code"
)
