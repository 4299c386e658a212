// Package generic implements the generic artifact ecosystem.
//
// [Generic] reads artifacts.lock.yaml, a flat list of files to download:
//
//	metadata:
//	  version: "1.0"
//	artifacts:
//	  - download_url: https://example.com/tool-1.2.tar.gz
//	    checksum: sha256:...
//	    filename: tool.tar.gz   # optional, defaults to the URL's base name
//
// Every artifact must carry a checksum. Files are materialized by file name
// directly below deps/generic; no package manager consumes them, so Render
// produces no directives.
package generic
