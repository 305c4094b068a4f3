package httpapi

import "net/http"

// ServeCrossdomain and ServeRobots serve the two fixed static assets the
// teacher server exposed at well-known paths, in place of its per-ID badge
// and thumbnail lookups (which have no equivalent here — this server has no
// per-video static assets, only the variants themselves).

const crossdomainXML = `<?xml version="1.0"?>
<!DOCTYPE cross-domain-policy SYSTEM "http://www.adobe.com/xml/dtds/cross-domain-policy.dtd">
<cross-domain-policy>
  <allow-access-from domain="*" secure="false"/>
</cross-domain-policy>
`

const robotsTxt = `User-agent: *
Disallow: /video/
`

func ServeCrossdomain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(crossdomainXML))
}

func ServeRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(robotsTxt))
}
