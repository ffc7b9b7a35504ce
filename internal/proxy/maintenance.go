package proxy

import (
	"io"
	"net/http"
)

// maintenanceHTML is served with 503 whenever the upstream cannot be
// reached, either because the cached health state is down or because a
// forward failed mid-flight.
const maintenanceHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Service Unavailable</title>
<style>
body{font-family:system-ui,sans-serif;background:#f4f4f5;color:#27272a;display:flex;align-items:center;justify-content:center;height:100vh;margin:0}
.card{background:#fff;border-radius:8px;box-shadow:0 1px 4px rgba(0,0,0,.12);padding:2.5rem 3rem;text-align:center;max-width:28rem}
h1{font-size:1.4rem;margin:0 0 .75rem}
p{margin:0;color:#52525b}
</style>
</head>
<body>
<div class="card">
<h1>Temporarily unavailable</h1>
<p>The service is down for maintenance. Please try again in a few minutes.</p>
</div>
</body>
</html>
`

// ServeMaintenance writes the maintenance page with 503.
func ServeMaintenance(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, maintenanceHTML)
}
