package config

import "strings"

// SNAPIFY_HTTP_PORT maps to http.port.
var envKeyReplacer = strings.NewReplacer(".", "_")
