package swagger

import _ "embed"

// OpenAPI is the lanes HTTP API document.
//
//go:embed openapi.yaml
var OpenAPI []byte
