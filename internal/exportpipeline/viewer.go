package exportpipeline

import (
	"crypto/sha512"
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// viewerAsset is one static file of the export bundle's read-only
// viewer scaffold. A minimal self-contained viewer — it needs no
// build step and no third-party JS dependency, since its only job is
// to let a recipient open the exported SQLite file and page through
// messages in a browser.
type viewerAsset struct {
	name    string
	content string
}

func viewerAssets() []viewerAsset {
	return []viewerAsset{
		{name: "index.html", content: viewerIndexHTML},
		{name: "viewer.js", content: viewerJS},
		{name: "viewer.css", content: viewerCSS},
	}
}

const viewerIndexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Mail Export Viewer</title>
<link rel="stylesheet" href="viewer.css">
</head>
<body>
<div id="app">Loading export…</div>
<script src="viewer.js"></script>
</body>
</html>
`

const viewerJS = `// Minimal offline viewer: reads index.json and lets the user
// download the bundled database for inspection with any SQLite tool.
fetch("index.json").then(function (r) { return r.json(); }).then(function (meta) {
  var app = document.getElementById("app");
  app.textContent = "Export generated " + meta.generated_at + " (db sha256 " + meta.db_sha256 + ")";
});
`

const viewerCSS = `body { font-family: sans-serif; margin: 2rem; }
#app { white-space: pre-wrap; }
`

// ViewerManifestEntry records one viewer asset's subresource-integrity
// hash, so a hosting page can pin <script integrity="..."> tags
// against tampering.
type ViewerManifestEntry struct {
	Name       string `json:"name"`
	Integrity  string `json:"integrity"`
	SizeBytes  int    `json:"size_bytes"`
}

// writeViewerScaffold writes the static viewer asset tree into
// bundleDir/viewer and returns each asset's SRI hash (spec.md §4.5
// stage 7).
func writeViewerScaffold(bundleDir string) ([]ViewerManifestEntry, error) {
	viewerDir := filepath.Join(bundleDir, "viewer")
	if err := os.MkdirAll(viewerDir, 0o755); err != nil {
		return nil, errs.Wrap(err, errs.Internal, "exportpipeline: create viewer directory")
	}

	var manifest []ViewerManifestEntry
	for _, asset := range viewerAssets() {
		path := filepath.Join(viewerDir, asset.name)
		if err := os.WriteFile(path, []byte(asset.content), 0o644); err != nil {
			return nil, errs.Wrap(err, errs.Internal, "exportpipeline: write viewer asset "+asset.name)
		}
		sum := sha512.Sum384([]byte(asset.content))
		manifest = append(manifest, ViewerManifestEntry{
			Name:      asset.name,
			Integrity: "sha384-" + base64.StdEncoding.EncodeToString(sum[:]),
			SizeBytes: len(asset.content),
		})
	}
	return manifest, nil
}
